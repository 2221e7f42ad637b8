package warehouse

import (
	"fmt"

	"conta-sync-service/internal/record"

	"github.com/rs/zerolog"
)

// Store is the subset of warehouse operations the writer needs.
type Store interface {
	TableExists(table string) (bool, error)
	Append(table string, rows []record.Record) error
	DeleteWhereKeyIn(table, keyField string, values []interface{}) error
}

// WatermarkRecorder records one sync-log entry after a successful flush.
type WatermarkRecorder interface {
	RecordSync(tenantID, table string, count int) error
}

// Writer buffers nothing itself; callers hand it bounded batches. With a
// merge key it deletes the batch's key set before appending, emulating
// replace-on-conflict over an append-only store. A failed write leaves the
// watermark untouched so the next run retries the same window.
type Writer struct {
	store      Store
	watermarks WatermarkRecorder
	tenantID   string
	log        zerolog.Logger
}

func NewWriter(store Store, watermarks WatermarkRecorder, tenantID string, log zerolog.Logger) *Writer {
	return &Writer{
		store:      store,
		watermarks: watermarks,
		tenantID:   tenantID,
		log:        log.With().Str("component", "warehouse-writer").Str("tenant", tenantID).Logger(),
	}
}

// Flush writes one batch and records the watermark. An empty batch still
// records a zero-count entry: "nothing changed" is a successful sync.
func (w *Writer) Flush(table string, rows []record.Record, mergeKey string) error {
	if len(rows) > 0 {
		if mergeKey != "" {
			exists, err := w.store.TableExists(table)
			if err != nil {
				return err
			}
			if exists {
				keys := mergeKeyValues(rows, mergeKey)
				if len(keys) > 0 {
					if err := w.store.DeleteWhereKeyIn(table, mergeKey, keys); err != nil {
						return fmt.Errorf("failed to replace existing rows in %s: %w", table, err)
					}
				}
			}
		}

		if err := w.store.Append(table, rows); err != nil {
			return err
		}
	}

	if err := w.watermarks.RecordSync(w.tenantID, table, len(rows)); err != nil {
		return fmt.Errorf("failed to record sync watermark for %s: %w", table, err)
	}

	w.log.Info().Str("table", table).Int("rows", len(rows)).Msg("Flushed batch")
	return nil
}

func mergeKeyValues(rows []record.Record, mergeKey string) []interface{} {
	seen := make(map[interface{}]bool)
	var values []interface{}
	for _, row := range rows {
		v := row[mergeKey]
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values
}
