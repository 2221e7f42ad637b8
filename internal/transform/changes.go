package transform

import (
	"time"

	"conta-sync-service/internal/record"
)

// timestampFields are tried in priority order: update-time variants first,
// then creation-time variants. The first present and parseable field wins.
var timestampFields = []string{
	"data_alteracao",
	"data_atualizacao",
	"updated_at",
	"data_criacao",
	"data_cadastro",
	"created_at",
}

// WasUpdatedSince reports whether the record changed after the watermark.
// No watermark means first sync: always true. A record where no candidate
// field parses is also true — reprocessing is preferred over silently
// dropping changed data.
func WasUpdatedSince(rec record.Record, watermark *time.Time) bool {
	if watermark == nil {
		return true
	}

	for _, field := range timestampFields {
		s := rec.Str(field)
		if s == nil {
			continue
		}
		if t, ok := record.ParseTimestamp(*s); ok {
			return t.After(*watermark)
		}
	}

	return true
}

// FilterUpdatedSince keeps the records that changed after the watermark.
func FilterUpdatedSince(recs []record.Record, watermark *time.Time) []record.Record {
	if watermark == nil {
		return recs
	}
	var out []record.Record
	for _, rec := range recs {
		if WasUpdatedSince(rec, watermark) {
			out = append(out, rec)
		}
	}
	return out
}
