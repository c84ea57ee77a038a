package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hmukwana/trade-alerts-firebase/internal/api/middleware"
	"github.com/hmukwana/trade-alerts-firebase/internal/auth"
	httpmw "github.com/hmukwana/trade-alerts-firebase/internal/middleware"
)

// SetupRouter настраивает роутинг для API.
// authService == nil отключает проверку токена, limiter == nil отключает ограничение частоты.
func (h *Handler) SetupRouter(authService *auth.Service, limiter *httpmw.RateLimiter) *mux.Router {
	r := mux.NewRouter()

	r.Use(httpmw.RequestLogger(h.logger))
	r.Use(httpmw.CORS)

	// Публичные маршруты
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	}

	// Защищенные маршруты
	api := r.PathPrefix("/api").Subrouter()
	if limiter != nil {
		api.Use(limiter.RateLimit)
	}
	api.Use(middleware.AuthMiddleware(authService))

	// RPC оператора
	api.HandleFunc("/rpc/createMasterTrade", h.HandleCreateMasterTrade).Methods("POST")
	api.HandleFunc("/rpc/resetDashboard", h.HandleResetDashboard).Methods("POST")

	// Триггеры документов
	api.HandleFunc("/triggers/user-created", h.HandleUserCreated).Methods("POST")
	api.HandleFunc("/triggers/user-deleted", h.HandleUserDeleted).Methods("POST")
	api.HandleFunc("/triggers/master-trade-created", h.HandleMasterTradeCreated).Methods("POST")
	api.HandleFunc("/triggers/master-trade-updated", h.HandleMasterTradeUpdated).Methods("POST")
	api.HandleFunc("/triggers/monthly", h.HandleMonthly).Methods("POST")

	// Master trades
	api.HandleFunc("/master-trades/{id}", h.HandleGetMasterTrade).Methods("GET")
	api.HandleFunc("/master-trades/{id}/status", h.HandleUpdateMasterTradeStatus).Methods("PUT")

	// Dashboards & trades
	api.HandleFunc("/dashboards/{uid}", h.HandleGetDashboard).Methods("GET")
	api.HandleFunc("/users/{uid}/trades", h.HandleGetUserTrades).Methods("GET")

	// Activity Logs
	api.HandleFunc("/logs", h.HandleGetLogs).Methods("GET")

	return r
}

// HandleHealth возвращает статус здоровья сервиса
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.reader.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	h.respondSuccess(w, "OK", map[string]string{
		"status": "healthy",
	})
}
