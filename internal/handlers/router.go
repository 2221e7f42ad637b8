package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/repositories"
	"conta-sync-service/internal/services"
)

func SetupRouter(db *sql.DB, cfg *config.Config, log zerolog.Logger) *mux.Router {
	tenantRepo := repositories.NewTenantRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)
	watermarkRepo := repositories.NewWatermarkRepository(db)
	tokenService := services.NewTokenService(tokenRepo, cfg.OAuth, log)

	syncHandler := NewSyncHandler(db, cfg, tenantRepo, tokenService, watermarkRepo, log)
	tenantHandler := NewTenantHandler(tenantRepo, log)
	tokenHandler := NewTokenHandler(tokenService, log)
	dataHandler := NewDataHandler(db, cfg, tenantRepo, watermarkRepo, log)

	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	api.Use(loggingMiddleware(log))
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/sync/{tenant}", syncHandler.SyncAll).Methods(http.MethodGet)
	api.HandleFunc("/sync/{tenant}/categories", syncHandler.SyncCategories).Methods(http.MethodGet)
	api.HandleFunc("/sync/{tenant}/receivables", syncHandler.SyncReceivables).Methods(http.MethodGet)
	api.HandleFunc("/sync/{tenant}/payables", syncHandler.SyncPayables).Methods(http.MethodGet)
	api.HandleFunc("/sync/{tenant}/sales", syncHandler.SyncSales).Methods(http.MethodGet)
	api.HandleFunc("/sync/{tenant}/accounts", syncHandler.SyncFinancialAccounts).Methods(http.MethodGet)
	api.HandleFunc("/sync/{tenant}/installments", syncHandler.SyncInstallments).Methods(http.MethodGet)

	api.HandleFunc("/tenants", tenantHandler.RegisterTenant).Methods(http.MethodPost)
	api.HandleFunc("/tenants", tenantHandler.ListTenants).Methods(http.MethodGet)

	api.HandleFunc("/tokens", tokenHandler.ListTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{tenant}/refresh", tokenHandler.RefreshToken).Methods(http.MethodGet)

	api.HandleFunc("/data/{tenant}", dataHandler.ListTables).Methods(http.MethodGet)
	api.HandleFunc("/data/{tenant}/summary", dataHandler.NetPositionSummary).Methods(http.MethodGet)
	api.HandleFunc("/data/{tenant}/{table}", dataHandler.ReadTable).Methods(http.MethodGet)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	return router
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("Request")
			next.ServeHTTP(w, r)
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
	}
	respondWithJSON(w, http.StatusOK, response)
}

func respondWithError(w http.ResponseWriter, code int, errLabel, message string) {
	respondWithJSON(w, code, map[string]string{"error": errLabel, "message": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
