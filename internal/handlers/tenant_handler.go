package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/rs/zerolog"

	"conta-sync-service/internal/models"
	"conta-sync-service/internal/repositories"
)

// TenantHandler manages the tenant directory: each registered tenant owns an
// isolated warehouse namespace and two credential slots.
type TenantHandler struct {
	tenantRepo repositories.TenantRepository
	log        zerolog.Logger
}

func NewTenantHandler(tenantRepo repositories.TenantRepository, log zerolog.Logger) *TenantHandler {
	return &TenantHandler{
		tenantRepo: tenantRepo,
		log:        log.With().Str("component", "tenant-handler").Logger(),
	}
}

var namespacePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type registerTenantRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// RegisterTenant creates or updates one tenant. The namespace becomes part of
// a schema name, so it is restricted to lowercase identifier characters.
func (h *TenantHandler) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	var req registerTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", "Body must be JSON with id, name and namespace")
		return
	}

	if req.ID == "" || req.Namespace == "" {
		respondWithError(w, http.StatusBadRequest, "Missing fields", "id and namespace are required")
		return
	}
	if !namespacePattern.MatchString(req.Namespace) {
		respondWithError(w, http.StatusBadRequest, "Invalid namespace", "namespace must match [a-z0-9_]+")
		return
	}

	tenant := &models.Tenant{ID: req.ID, Name: req.Name, Namespace: req.Namespace}
	if err := h.tenantRepo.UpsertTenant(tenant); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to register tenant", err.Error())
		return
	}

	h.log.Info().Str("tenant", tenant.ID).Str("namespace", tenant.Namespace).Msg("Tenant registered")
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Tenant registered successfully",
		"tenant":  tenant,
	})
}

// ListTenants returns the tenant directory.
func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenantRepo.ListTenants()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list tenants", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total":   len(tenants),
		"tenants": tenants,
	})
}
