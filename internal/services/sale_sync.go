package services

import (
	"net/url"
	"strconv"

	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
	"conta-sync-service/internal/transform"
)

const saleResource = "sales"

// SyncSales mirrors the sales listing of the legacy API generation. The
// endpoint is a plain paged GET; pages start at zero there.
func (p *Pipeline) SyncSales() (*SyncResult, error) {
	runID, log := p.runLogger(models.TableSales)

	watermark, err := p.watermarks.LastSync(p.tenantID, models.TableSales)
	if err != nil {
		return nil, err
	}

	items, err := contaazul.FetchAllPages(0, p.cfg.PageSize, func(page int) ([]record.Record, error) {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("size", strconv.Itoa(p.cfg.PageSize))
		return p.legacy.List(saleResource, params)
	})
	if err != nil {
		log.Error().Err(err).Msg("Sale fetch failed")
		return nil, err
	}

	// Sales carry no update timestamp, so the change filter fails open and
	// every fetched sale is rewritten under its merge key.
	changed := transform.FilterUpdatedSince(items, watermark)
	rows := make([]record.Record, 0, len(changed))
	for _, rec := range changed {
		rows = append(rows, transform.FlattenSale(rec))
	}

	if err := p.writer.Flush(models.TableSales, rows, "id"); err != nil {
		return nil, err
	}

	log.Info().Int("examined", len(items)).Int("synced", len(rows)).Msg("Sales synced")
	return &SyncResult{
		Message:    "Sales synced successfully",
		TotalItems: len(rows),
		Examined:   len(items),
		LastSync:   formatWatermark(watermark),
		RunID:      runID,
	}, nil
}
