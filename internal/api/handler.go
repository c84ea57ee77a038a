package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/hmukwana/trade-alerts-firebase/internal/metrics"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

// Reader - выборки для чтения, которые отдает API
type Reader interface {
	GetMasterTrade(ctx context.Context, id string) (models.MasterTrade, error)
	GetDashboard(ctx context.Context, userID string) (models.Dashboard, error)
	GetUserTrades(ctx context.Context, userID string, limit, offset int) ([]models.Trade, error)
	GetLogs(ctx context.Context, userID string, limit, offset int) ([]models.ActivityLog, error)
	Ping(ctx context.Context) error
}

// Handler обрабатывает API запросы
type Handler struct {
	service *copytrading.Service
	reader  Reader
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(
	service *copytrading.Service,
	reader Reader,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service: service,
		reader:  reader,
		metrics: m,
		logger:  logger,
	}
}

// Helper функции для JSON ответов

type ErrorResponse struct {
	Error string `json:"error"`
	Data  any    `json:"data,omitempty"` // частичный итог, если операция успела обработать часть пользователей
}

type SuccessResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handler) respondSuccess(w http.ResponseWriter, message string, data any) {
	h.respondJSON(w, http.StatusOK, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// respondFailure переводит ошибку сервиса в HTTP статус
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	h.respondFailureWithData(w, r, err, nil)
}

// respondFailureWithData отвечает ошибкой вместе с частичным итогом
func (h *Handler) respondFailureWithData(w http.ResponseWriter, r *http.Request, err error, data any) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}

	h.respondJSON(w, status, ErrorResponse{Error: err.Error(), Data: data})
}

// respondExecution отвечает итогом рассылки или расчета; сбой части пользователей дает 503 с итогом
func (h *Handler) respondExecution(w http.ResponseWriter, r *http.Request, message string, result copytrading.ExecutionResult, err error) {
	switch {
	case err == nil:
		h.respondSuccess(w, message, result)
	case result.TotalCount > 0:
		h.respondFailureWithData(w, r, err, result)
	default:
		h.respondFailure(w, r, err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON разбирает тело запроса; при ошибке сам отвечает 400
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	return true
}

// pagination читает limit/offset из query; некорректные значения заменяются значениями по умолчанию
func pagination(r *http.Request, defLimit, maxLimit int) (limit, offset int) {
	limit = defLimit

	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}

	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	return limit, offset
}
