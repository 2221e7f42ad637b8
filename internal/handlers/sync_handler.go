package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/repositories"
	"conta-sync-service/internal/services"
)

// SyncHandler exposes the per-entity sync triggers. A per-process guard
// rejects overlapping runs for the same tenant: the warehouse write path is
// not safe under concurrent flushes to overlapping merge keys.
type SyncHandler struct {
	db              *sql.DB
	cfg             *config.Config
	tenantRepo      repositories.TenantRepository
	tokenService    *services.TokenService
	watermarkRepo   repositories.WatermarkRepository
	log             zerolog.Logger
	processingMutex sync.Mutex
	activeTenants   map[string]bool
}

func NewSyncHandler(
	db *sql.DB,
	cfg *config.Config,
	tenantRepo repositories.TenantRepository,
	tokenService *services.TokenService,
	watermarkRepo repositories.WatermarkRepository,
	log zerolog.Logger,
) *SyncHandler {
	return &SyncHandler{
		db:            db,
		cfg:           cfg,
		tenantRepo:    tenantRepo,
		tokenService:  tokenService,
		watermarkRepo: watermarkRepo,
		log:           log.With().Str("component", "sync-handler").Logger(),
		activeTenants: make(map[string]bool),
	}
}

func (h *SyncHandler) SyncCategories(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func(p *services.Pipeline, r *http.Request) (*services.SyncResult, error) {
		return p.SyncCategories()
	})
}

func (h *SyncHandler) SyncReceivables(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func(p *services.Pipeline, r *http.Request) (*services.SyncResult, error) {
		fromDate, toDate, err := dateRange(r)
		if err != nil {
			return nil, err
		}
		return p.SyncReceivables(fromDate, toDate)
	})
}

func (h *SyncHandler) SyncPayables(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func(p *services.Pipeline, r *http.Request) (*services.SyncResult, error) {
		fromDate, toDate, err := dateRange(r)
		if err != nil {
			return nil, err
		}
		return p.SyncPayables(fromDate, toDate)
	})
}

func (h *SyncHandler) SyncSales(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func(p *services.Pipeline, r *http.Request) (*services.SyncResult, error) {
		return p.SyncSales()
	})
}

func (h *SyncHandler) SyncFinancialAccounts(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func(p *services.Pipeline, r *http.Request) (*services.SyncResult, error) {
		return p.SyncFinancialAccounts()
	})
}

func (h *SyncHandler) SyncInstallments(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, func(p *services.Pipeline, r *http.Request) (*services.SyncResult, error) {
		return p.SyncInstallments()
	})
}

func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	if !h.acquire(tenantID) {
		respondWithError(w, http.StatusConflict, "Sync already in progress", "A sync run for this tenant is already in progress")
		return
	}
	defer h.release(tenantID)

	pipeline, status, errLabel, message := h.buildPipeline(tenantID)
	if pipeline == nil {
		respondWithError(w, status, errLabel, message)
		return
	}

	results, err := pipeline.SyncAll()
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Full sync completed",
		"results": results,
	})
}

func (h *SyncHandler) runSync(w http.ResponseWriter, r *http.Request, fn func(*services.Pipeline, *http.Request) (*services.SyncResult, error)) {
	tenantID := mux.Vars(r)["tenant"]

	if !h.acquire(tenantID) {
		respondWithError(w, http.StatusConflict, "Sync already in progress", "A sync run for this tenant is already in progress")
		return
	}
	defer h.release(tenantID)

	pipeline, status, errLabel, message := h.buildPipeline(tenantID)
	if pipeline == nil {
		respondWithError(w, status, errLabel, message)
		return
	}

	result, err := fn(pipeline, r)
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) buildPipeline(tenantID string) (*services.Pipeline, int, string, string) {
	tenant, err := h.tenantRepo.GetTenant(tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrTenantNotFound) {
			return nil, http.StatusNotFound, "Tenant not found", "No tenant registered with id " + tenantID
		}
		return nil, http.StatusInternalServerError, "Failed to resolve tenant", err.Error()
	}

	pipeline, err := services.BuildPipeline(h.db, h.cfg, tenant, h.tokenService, h.watermarkRepo, h.log)
	if err != nil {
		return nil, http.StatusInternalServerError, "Failed to prepare sync", err.Error()
	}
	return pipeline, 0, "", ""
}

func (h *SyncHandler) respondSyncError(w http.ResponseWriter, err error) {
	var badInput *badRequestError
	switch {
	case errors.As(err, &badInput):
		respondWithError(w, http.StatusBadRequest, "Invalid request", badInput.Error())
	case errors.Is(err, contaazul.ErrNoAccessToken):
		respondWithError(w, http.StatusUnauthorized, "No access token found", "Please authenticate first")
	default:
		respondWithError(w, http.StatusInternalServerError, "Sync failed", err.Error())
	}
}

func (h *SyncHandler) acquire(tenantID string) bool {
	h.processingMutex.Lock()
	defer h.processingMutex.Unlock()
	if h.activeTenants[tenantID] {
		return false
	}
	h.activeTenants[tenantID] = true
	return true
}

func (h *SyncHandler) release(tenantID string) {
	h.processingMutex.Lock()
	defer h.processingMutex.Unlock()
	delete(h.activeTenants, tenantID)
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

// dateRange reads the optional from/to query parameters (YYYY-MM-DD).
func dateRange(r *http.Request) (string, string, error) {
	fromDate := r.URL.Query().Get("from")
	toDate := r.URL.Query().Get("to")

	for _, d := range []string{fromDate, toDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return "", "", &badRequestError{msg: "Invalid date format. Use YYYY-MM-DD"}
		}
	}
	return fromDate, toDate, nil
}
