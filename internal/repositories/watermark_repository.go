package repositories

import (
	"database/sql"
	"time"

	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
)

// WatermarkRepository is the append-only per-(tenant, table) sync log. The
// current watermark is the max synced_at per table; entries are never
// rewritten, so watermark values cannot move backward.
type WatermarkRepository interface {
	LastSync(tenantID, table string) (*time.Time, error)
	RecordSync(tenantID, table string, count int) error
	ListWatermarks(tenantID string) ([]*models.SyncWatermark, error)
}

type watermarkRepository struct {
	db *sql.DB
}

func NewWatermarkRepository(db *sql.DB) WatermarkRepository {
	return &watermarkRepository{db: db}
}

func (r *watermarkRepository) LastSync(tenantID, table string) (*time.Time, error) {
	var last sql.NullTime
	query := `
		SELECT MAX(synced_at)
		FROM sync_watermarks
		WHERE tenant_id = ? AND table_name = ?
	`
	err := r.db.QueryRow(query, tenantID, table).Scan(&last)
	if err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.In(record.CivilTZ)
	return &t, nil
}

func (r *watermarkRepository) RecordSync(tenantID, table string, count int) error {
	query := `
		INSERT INTO sync_watermarks (tenant_id, table_name, synced_at, record_count)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, tenantID, table, time.Now().In(record.CivilTZ), count)
	return err
}

func (r *watermarkRepository) ListWatermarks(tenantID string) ([]*models.SyncWatermark, error) {
	query := `
		SELECT w.id, w.tenant_id, w.table_name, w.synced_at, w.record_count
		FROM sync_watermarks w
		INNER JOIN (
			SELECT table_name, MAX(synced_at) AS synced_at
			FROM sync_watermarks
			WHERE tenant_id = ?
			GROUP BY table_name
		) latest ON w.table_name = latest.table_name AND w.synced_at = latest.synced_at
		WHERE w.tenant_id = ?
		ORDER BY w.table_name
	`
	rows, err := r.db.Query(query, tenantID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []*models.SyncWatermark
	for rows.Next() {
		m := &models.SyncWatermark{}
		err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.TableName,
			&m.SyncedAt,
			&m.RecordCount,
		)
		if err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return marks, nil
}
