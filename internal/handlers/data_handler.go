package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/repositories"
	"conta-sync-service/internal/warehouse"
)

// DataHandler serves the synced warehouse data back out: table listings with
// their latest watermarks, raw table reads and the net position summary.
type DataHandler struct {
	db            *sql.DB
	cfg           *config.Config
	tenantRepo    repositories.TenantRepository
	watermarkRepo repositories.WatermarkRepository
	log           zerolog.Logger
}

func NewDataHandler(
	db *sql.DB,
	cfg *config.Config,
	tenantRepo repositories.TenantRepository,
	watermarkRepo repositories.WatermarkRepository,
	log zerolog.Logger,
) *DataHandler {
	return &DataHandler{
		db:            db,
		cfg:           cfg,
		tenantRepo:    tenantRepo,
		watermarkRepo: watermarkRepo,
		log:           log.With().Str("component", "data-handler").Logger(),
	}
}

var syncedTables = []string{
	models.TableCategories,
	models.TableReceivables,
	models.TablePayables,
	models.TableSales,
	models.TableFinancialAccounts,
	models.TableInstallments,
	models.TableSettlements,
}

func (h *DataHandler) store(tenantID string) (*warehouse.Client, int, string) {
	namespace, err := h.tenantRepo.ResolveNamespace(tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrTenantNotFound) {
			return nil, http.StatusNotFound, "Tenant not found"
		}
		return nil, http.StatusInternalServerError, err.Error()
	}
	return warehouse.NewClient(h.db, h.cfg.Sync.NamespacePrefix+namespace, h.log), 0, ""
}

// ListTables returns the tenant's synced tables with their latest watermark
// entries.
func (h *DataHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	store, status, message := h.store(tenantID)
	if store == nil {
		respondWithError(w, status, "Failed to list tables", message)
		return
	}

	marks, err := h.watermarkRepo.ListWatermarks(tenantID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list tables", err.Error())
		return
	}
	markByTable := make(map[string]*models.SyncWatermark, len(marks))
	for _, m := range marks {
		markByTable[m.TableName] = m
	}

	var tables []map[string]interface{}
	for _, table := range syncedTables {
		exists, err := store.TableExists(table)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to list tables", err.Error())
			return
		}
		if !exists {
			continue
		}
		info := map[string]interface{}{"name": table}
		if m, ok := markByTable[table]; ok {
			info["last_sync"] = m.SyncedAt
			info["last_record_count"] = m.RecordCount
		}
		tables = append(tables, info)
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Successfully listed synced tables",
		"tables":  tables,
	})
}

// ReadTable returns every row of one synced table.
func (h *DataHandler) ReadTable(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	table := mux.Vars(r)["table"]

	if !isSyncedTable(table) {
		respondWithError(w, http.StatusNotFound, "Unknown table", "Table "+table+" is not a synced table")
		return
	}

	store, status, message := h.store(tenantID)
	if store == nil {
		respondWithError(w, status, "Failed to read table", message)
		return
	}

	exists, err := store.TableExists(table)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to read table", err.Error())
		return
	}
	if !exists {
		respondWithError(w, http.StatusNotFound, "Table not synced", "Table "+table+" has not been synced for this tenant")
		return
	}

	rows, err := store.QueryAll(table)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to read table", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"table":     table,
		"total":     len(rows),
		"data":      rows,
	})
}

// NetPositionSummary returns sum(nao_pago) - sum(pago) over the payables
// table: the outstanding net payable position.
func (h *DataHandler) NetPositionSummary(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	store, status, message := h.store(tenantID)
	if store == nil {
		respondWithError(w, status, "Failed to compute summary", message)
		return
	}

	unpaid, err := store.SumWhere(models.TablePayables, "nao_pago", nil)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute summary", err.Error())
		return
	}
	paid, err := store.SumWhere(models.TablePayables, "pago", nil)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to compute summary", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":    tenantID,
		"net_position": unpaid - paid,
		"unpaid_total": unpaid,
		"paid_total":   paid,
	})
}

func isSyncedTable(table string) bool {
	for _, t := range syncedTables {
		if t == table {
			return true
		}
	}
	return false
}
