package services

import (
	"errors"
	"fmt"

	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
	"conta-sync-service/internal/transform"
)

const (
	receivableResource = "contas-a-receber"
	payableResource    = "contas-a-pagar"
)

// SyncReceivables runs the category fan-out over receivable events. The
// optional dates bound the due-date filter (YYYY-MM-DD).
func (p *Pipeline) SyncReceivables(fromDate, toDate string) (*SyncResult, error) {
	return p.syncEvents(models.TableReceivables, receivableResource, models.CategoryKindRevenue, fromDate, toDate)
}

// SyncPayables runs the category fan-out over payable events.
func (p *Pipeline) SyncPayables(fromDate, toDate string) (*SyncResult, error) {
	return p.syncEvents(models.TablePayables, payableResource, models.CategoryKindExpense, fromDate, toDate)
}

// syncEvents implements the category-scoped fan-out: the search endpoint has
// no bulk listing, so each top-level category of the matching kind is paged
// separately and every item is tagged with its originating category. A
// category that exhausts its retry budget is skipped, logged and reported;
// the run continues with partial data.
func (p *Pipeline) syncEvents(table, resource, kind, fromDate, toDate string) (*SyncResult, error) {
	runID, log := p.runLogger(table)

	watermark, err := p.watermarks.LastSync(p.tenantID, table)
	if err != nil {
		return nil, err
	}

	categories, err := p.topLevelCategories(kind)
	if err != nil {
		return nil, err
	}

	rate := contaazul.NewRateState(p.cfg.RequestDelay)
	rate.SetSleep(p.sleep)

	var all []record.Record
	var skipped []string

	for _, cat := range categories {
		catID := cat.Str("id")
		if catID == nil {
			continue
		}

		items, err := p.fetchCategory(resource, cat, fromDate, toDate, rate)
		if err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				log.Warn().Str("category", *catID).Msg("Category abandoned after retry budget, continuing")
				skipped = append(skipped, *catID)
				continue
			}
			log.Error().Err(err).Str("category", *catID).Msg("Event fetch failed")
			return nil, err
		}
		all = append(all, items...)
	}

	changed := transform.FilterUpdatedSince(all, watermark)
	rows := make([]record.Record, 0, len(changed))
	for _, rec := range changed {
		rows = append(rows, transform.FlattenFinancialEvent(rec, kind))
	}

	if err := p.writer.Flush(table, rows, "id"); err != nil {
		return nil, err
	}

	log.Info().Int("examined", len(all)).Int("synced", len(rows)).Int("skipped_categories", len(skipped)).Msg("Events synced")
	return &SyncResult{
		Message:           fmt.Sprintf("%s synced successfully", table),
		TotalItems:        len(rows),
		Examined:          len(all),
		LastSync:          formatWatermark(watermark),
		SkippedCategories: skipped,
		RunID:             runID,
	}, nil
}

// topLevelCategories selects the previously-synced categories of the target
// kind that have no parent. Fanning out over true top-level categories only
// is narrower and cheaper than one fetch per leaf.
func (p *Pipeline) topLevelCategories(kind string) ([]record.Record, error) {
	exists, err := p.store.TableExists(models.TableCategories)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("no synced categories found, run a category sync first")
	}

	rows, err := p.store.QueryAll(models.TableCategories)
	if err != nil {
		return nil, err
	}

	var out []record.Record
	for _, row := range rows {
		tipo := row.Str("tipo")
		if tipo == nil || *tipo != kind {
			continue
		}
		if row.Get("categoria_pai_id") != nil {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// fetchCategory pages one category's events under the run's rate state.
// Every 429 that survives the client's own retries doubles the inter-request
// delay for the rest of the run and consumes one attempt from the category
// budget.
func (p *Pipeline) fetchCategory(resource string, cat record.Record, fromDate, toDate string, rate *contaazul.RateState) ([]record.Record, error) {
	catID := cat.Str("id")
	catName := cat.Str("nome")

	filter := map[string]interface{}{"categoria_id": *catID}
	if fromDate != "" {
		filter["data_vencimento_de"] = fromDate
	}
	if toDate != "" {
		filter["data_vencimento_ate"] = toDate
	}

	attempts := p.cfg.CategoryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		items, err := contaazul.FetchAllPages(1, p.cfg.PageSize, func(page int) ([]record.Record, error) {
			rate.Wait()
			return p.api.Search(resource, filter, page, p.cfg.PageSize, "")
		})
		if err == nil {
			for _, item := range items {
				item["categoria_id"] = *catID
				if catName != nil {
					item["categoria_nome"] = *catName
				}
			}
			return items, nil
		}
		if contaazul.IsStatus(err, 429) {
			rate.Penalize()
			continue
		}
		return nil, err
	}

	return nil, ErrRetriesExhausted
}
