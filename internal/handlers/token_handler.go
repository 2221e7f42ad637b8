package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"conta-sync-service/internal/models"
	"conta-sync-service/internal/repositories"
	"conta-sync-service/internal/services"
)

type TokenHandler struct {
	tokenService *services.TokenService
	log          zerolog.Logger
}

func NewTokenHandler(tokenService *services.TokenService, log zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
		log:          log.With().Str("component", "token-handler").Logger(),
	}
}

// RefreshToken refreshes the tenant's credential for one API generation
// (query parameter "generation", default v2). A still-valid token is left
// untouched.
func (h *TokenHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]

	generation := r.URL.Query().Get("generation")
	if generation == "" {
		generation = models.GenerationV2
	}
	if generation != models.GenerationLegacy && generation != models.GenerationV2 {
		respondWithError(w, http.StatusBadRequest, "Invalid generation", "generation must be legacy or v2")
		return
	}

	cred, err := h.tokenService.Current(tenantID, generation)
	if err == nil && !h.tokenService.IsExpired(cred) {
		respondWithJSON(w, http.StatusOK, map[string]string{
			"message": "Token is still valid",
		})
		return
	}

	if _, err := h.tokenService.Refresh(tenantID, generation); err != nil {
		if errors.Is(err, repositories.ErrTokenNotFound) {
			respondWithError(w, http.StatusNotFound, "No token found", "No credential stored for this tenant and generation")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to refresh token", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Token refreshed successfully",
	})
}

// ListTokens reports the expiry state of every stored credential.
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	creds, err := h.tokenService.List()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list tokens", err.Error())
		return
	}

	entries := make([]map[string]interface{}, 0, len(creds))
	for _, cred := range creds {
		entry := map[string]interface{}{
			"tenant_id":  cred.TenantID,
			"generation": cred.Generation,
			"expired":    h.tokenService.IsExpired(cred),
		}
		if cred.ExpiresAt.Valid {
			entry["expires_at"] = cred.ExpiresAt.Time
		}
		entries = append(entries, entry)
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(entries),
		"tokens": entries,
	})
}
