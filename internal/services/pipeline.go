package services

import (
	"database/sql"
	"errors"
	"net/url"
	"time"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
	"conta-sync-service/internal/repositories"
	"conta-sync-service/internal/warehouse"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRetriesExhausted marks a sub-unit (one category, one event) abandoned
// after its local retry budget. Callers degrade to partial success instead
// of aborting the run.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RemoteAPI is what the sync pipeline needs from the Conta Azul client.
type RemoteAPI interface {
	Search(resource string, filter map[string]interface{}, page, pageSize int, sortAsc string) ([]record.Record, error)
	List(resource string, params url.Values) ([]record.Record, error)
	GetSub(resource, parentID, sub string) ([]record.Record, error)
}

// Store is the warehouse read access used by fan-out selection, dependent
// fetches and account aggregates.
type Store interface {
	TableExists(table string) (bool, error)
	QueryAll(table string) ([]record.Record, error)
	SumWhere(table, column string, where map[string]interface{}) (float64, error)
}

// Flusher writes one transformed batch with replace-on-merge-key semantics
// and records the sync watermark.
type Flusher interface {
	Flush(table string, rows []record.Record, mergeKey string) error
}

// SyncResult is the JSON outcome returned to the trigger endpoint. A zero
// TotalItems with a 200 status means "no data to sync"; TotalItems lower
// than Examined with skipped diagnostics means partial success.
type SyncResult struct {
	Message           string   `json:"message"`
	TotalItems        int      `json:"total_items"`
	Examined          int      `json:"examined,omitempty"`
	LastSync          string   `json:"last_sync,omitempty"`
	SkippedCategories []string `json:"skipped_categories,omitempty"`
	SkippedEvents     []string `json:"skipped_events,omitempty"`
	RunID             string   `json:"run_id"`
}

// Pipeline runs the incremental extraction of one tenant: remote fetch,
// change filtering, flattening and batched warehouse writes. One pipeline
// per sync run; runs for the same tenant must be serialized externally.
type Pipeline struct {
	tenantID   string
	api        RemoteAPI
	legacy     RemoteAPI
	store      Store
	writer     Flusher
	watermarks repositories.WatermarkRepository
	cfg        config.SyncConfig
	log        zerolog.Logger
	sleep      func(time.Duration)
	now        func() time.Time
}

func NewPipeline(
	tenantID string,
	api RemoteAPI,
	legacy RemoteAPI,
	store Store,
	writer Flusher,
	watermarks repositories.WatermarkRepository,
	cfg config.SyncConfig,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		tenantID:   tenantID,
		api:        api,
		legacy:     legacy,
		store:      store,
		writer:     writer,
		watermarks: watermarks,
		cfg:        cfg,
		log:        log.With().Str("component", "sync").Str("tenant", tenantID).Logger(),
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// BuildPipeline wires a run-scoped pipeline for one tenant: namespace-bound
// warehouse client, batch writer and one API client per generation. Ensures
// the tenant namespace exists.
func BuildPipeline(
	db *sql.DB,
	cfg *config.Config,
	tenant *models.Tenant,
	tokens *TokenService,
	watermarks repositories.WatermarkRepository,
	log zerolog.Logger,
) (*Pipeline, error) {
	namespace := cfg.Sync.NamespacePrefix + tenant.Namespace

	wh := warehouse.NewClient(db, namespace, log)
	if err := wh.EnsureNamespace(); err != nil {
		return nil, err
	}

	writer := warehouse.NewWriter(wh, watermarks, tenant.ID, log)
	api := contaazul.NewClient(cfg.ContaAzul.BaseURL, tokens.Source(tenant.ID, models.GenerationV2), log)
	legacy := contaazul.NewClient(cfg.ContaAzul.LegacyBaseURL, tokens.Source(tenant.ID, models.GenerationLegacy), log)

	return NewPipeline(tenant.ID, api, legacy, wh, writer, watermarks, cfg.Sync, log), nil
}

func (p *Pipeline) runLogger(table string) (string, zerolog.Logger) {
	runID := uuid.NewString()
	return runID, p.log.With().Str("run_id", runID).Str("table", table).Logger()
}

func formatWatermark(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
