package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// HandleGetMasterTrade возвращает мастер-сделку
func (h *Handler) HandleGetMasterTrade(w http.ResponseWriter, r *http.Request) {
	master, err := h.reader.GetMasterTrade(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "", master)
}

// HandleUpdateMasterTradeStatus сохраняет статус мастер-сделки и запускает расчет
func (h *Handler) HandleUpdateMasterTradeStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.UpdateMasterTradeStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	h.respondExecution(w, r, "Status updated", result, err)
}

// HandleGetDashboard возвращает дашборд пользователя
func (h *Handler) HandleGetDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.reader.GetDashboard(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "", dashboard)
}

// HandleGetUserTrades возвращает историю сделок пользователя
func (h *Handler) HandleGetUserTrades(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50, 100)

	trades, err := h.reader.GetUserTrades(r.Context(), mux.Vars(r)["uid"], limit, offset)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "", trades)
}

// HandleGetLogs возвращает логи активности; userId в query фильтрует по пользователю
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 100, 500)

	logs, err := h.reader.GetLogs(r.Context(), r.URL.Query().Get("userId"), limit, offset)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	h.respondSuccess(w, "", logs)
}
