package services

import (
	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
	"conta-sync-service/internal/transform"
)

const categoryResource = "categorias"

// SyncCategories mirrors the category tree into the warehouse. Categories
// are the partition key of the event fan-out, so they are synced first.
func (p *Pipeline) SyncCategories() (*SyncResult, error) {
	runID, log := p.runLogger(models.TableCategories)

	watermark, err := p.watermarks.LastSync(p.tenantID, models.TableCategories)
	if err != nil {
		return nil, err
	}

	items, err := contaazul.FetchAllPages(1, p.cfg.PageSize, func(page int) ([]record.Record, error) {
		return p.api.Search(categoryResource, nil, page, p.cfg.PageSize, "")
	})
	if err != nil {
		log.Error().Err(err).Msg("Category fetch failed")
		return nil, err
	}

	changed := transform.FilterUpdatedSince(items, watermark)
	rows := make([]record.Record, 0, len(changed))
	for _, rec := range changed {
		rows = append(rows, transform.FlattenCategory(rec))
	}

	if err := p.writer.Flush(models.TableCategories, rows, "id"); err != nil {
		return nil, err
	}

	log.Info().Int("examined", len(items)).Int("synced", len(rows)).Msg("Categories synced")
	return &SyncResult{
		Message:    "Categories synced successfully",
		TotalItems: len(rows),
		Examined:   len(items),
		LastSync:   formatWatermark(watermark),
		RunID:      runID,
	}, nil
}
