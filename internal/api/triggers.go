package api

import (
	"fmt"
	"net/http"

	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

type UserDeletedRequest struct {
	UID string `json:"uid"`
}

type MasterTradeCreatedRequest struct {
	ID string `json:"id"`
}

type MasterTradeUpdatedRequest struct {
	Before models.MasterTrade `json:"before"`
	After  models.MasterTrade `json:"after"`
}

// HandleUserCreated инициализирует нового пользователя
func (h *Handler) HandleUserCreated(w http.ResponseWriter, r *http.Request) {
	var req copytrading.UserRecord
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.OnUserCreated(r.Context(), req); err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "User initialized", nil)
}

// HandleUserDeleted помечает пользователя удаленным
func (h *Handler) HandleUserDeleted(w http.ResponseWriter, r *http.Request) {
	var req UserDeletedRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.UID == "" {
		h.respondFailure(w, r, fmt.Errorf("%w: uid is required", models.ErrValidation))
		return
	}

	if err := h.service.OnUserDeleted(r.Context(), req.UID); err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "User deleted", nil)
}

// HandleMasterTradeCreated рассылает мастер-сделку, записанную в обход RPC
func (h *Handler) HandleMasterTradeCreated(w http.ResponseWriter, r *http.Request) {
	var req MasterTradeCreatedRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.ID == "" {
		h.respondFailure(w, r, fmt.Errorf("%w: id is required", models.ErrValidation))
		return
	}

	result, err := h.service.OnMasterTradeCreated(r.Context(), req.ID)
	h.respondExecution(w, r, "Master trade propagated", result, err)
}

// HandleMasterTradeUpdated рассчитывает дочерние сделки при смене статуса
func (h *Handler) HandleMasterTradeUpdated(w http.ResponseWriter, r *http.Request) {
	var req MasterTradeUpdatedRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.OnMasterTradeUpdated(r.Context(), req.Before, req.After)
	h.respondExecution(w, r, "Master trade update processed", result, err)
}

// HandleMonthly запускает месячный rollover
func (h *Handler) HandleMonthly(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.OnSchedule(r.Context())
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "Rollover completed", result)
}
