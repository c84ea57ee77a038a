package api

import (
	"fmt"
	"net/http"

	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

type ResetDashboardRequest struct {
	UserID     string   `json:"userId"`
	NewBalance *float64 `json:"newBalance"`
}

type CreateMasterTradeResponse struct {
	Master models.MasterTrade          `json:"master"`
	Result copytrading.ExecutionResult `json:"result"`
}

// HandleCreateMasterTrade создает мастер-сделку и рассылает ее подписчикам
func (h *Handler) HandleCreateMasterTrade(w http.ResponseWriter, r *http.Request) {
	var req copytrading.CreateMasterTradeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	master, result, err := h.service.CreateMasterTrade(r.Context(), req)
	resp := CreateMasterTradeResponse{
		Master: master,
		Result: result,
	}

	switch {
	case err == nil:
		h.respondSuccess(w, "Master trade created", resp)
	case master.ID != "":
		// мастер-сделка сохранена: клиент повторяет запрос с тем же idempotencyKey
		h.respondFailureWithData(w, r, err, resp)
	default:
		h.respondFailure(w, r, err)
	}
}

// HandleResetDashboard сбрасывает дашборд пользователя к новому балансу
func (h *Handler) HandleResetDashboard(w http.ResponseWriter, r *http.Request) {
	var req ResetDashboardRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.UserID == "" || req.NewBalance == nil {
		h.respondFailure(w, r, fmt.Errorf("%w: userId and newBalance are required", models.ErrValidation))
		return
	}

	if err := h.service.ResetDashboard(r.Context(), req.UserID, *req.NewBalance); err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "Dashboard reset", map[string]any{
		"userId":     req.UserID,
		"newBalance": *req.NewBalance,
	})
}
