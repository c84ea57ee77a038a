package copytrading

import (
	"fmt"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

// UserRecord - данные нового аккаунта от провайдера аутентификации
type UserRecord struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// CreateMasterTradeRequest - запрос оператора на создание мастер-сделки.
// Повтор запроса с тем же IdempotencyKey не создает вторую мастер-сделку.
type CreateMasterTradeRequest struct {
	Price          float64 `json:"price"`
	TP             float64 `json:"tp"`
	SL             float64 `json:"sl"`
	Type           string  `json:"type"` // "Buy" или "Sell"
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

// UserResult - результат операции для одного пользователя
type UserResult struct {
	UserID    string `json:"userId"`
	TradeID   string `json:"tradeId,omitempty"`
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped,omitempty"` // повторная доставка, изменений нет
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// ExecutionResult - результат рассылки или расчета по всем пользователям
type ExecutionResult struct {
	MasterID     string       `json:"masterId"`
	TotalCount   int          `json:"totalCount"`
	SuccessCount int          `json:"successCount"`
	SkippedCount int          `json:"skippedCount"`
	FailedCount  int          `json:"failedCount"`
	Results      []UserResult `json:"results"`
}

// IsFullSuccess возвращает true если все операции успешны
func (r *ExecutionResult) IsFullSuccess() bool {
	return r.FailedCount == 0
}

// IsPartialSuccess возвращает true если есть и успешные и неуспешные операции
func (r *ExecutionResult) IsPartialSuccess() bool {
	return r.SuccessCount > 0 && r.FailedCount > 0
}

// IsFullFailure возвращает true если все операции неуспешны
func (r *ExecutionResult) IsFullFailure() bool {
	return r.SuccessCount == 0 && r.TotalCount > 0
}

// Err возвращает ErrTransient, если часть пользователей не обработана.
// Повторная доставка безопасна: рассылка и расчет идемпотентны.
func (r *ExecutionResult) Err(action string) error {
	if r.FailedCount == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s of %s failed for %d of %d users",
		models.ErrTransient, action, r.MasterID, r.FailedCount, r.TotalCount)
}

// add учитывает результат одного пользователя
func (r *ExecutionResult) add(res UserResult) {
	switch {
	case !res.Success:
		r.FailedCount++
	case res.Skipped:
		r.SkippedCount++
		r.SuccessCount++
	default:
		r.SuccessCount++
	}

	r.Results = append(r.Results, res)
}

// RolloverResult - итог месячного rollover
type RolloverResult struct {
	Period       string   `json:"period"` // YYYY-MM в SCHEDULE_TZ
	TotalCount   int      `json:"totalCount"`
	SuccessCount int      `json:"successCount"`
	SkippedCount int      `json:"skippedCount"` // уже перенесены за этот месяц
	FailedCount  int      `json:"failedCount"`
	Failed       []string `json:"failed,omitempty"` // id пользователей с ошибкой
}

// Outcome - итог мастер-сделки с точки зрения расчета
type Outcome int

const (
	OutcomeOpen      Outcome = iota // сделка не закрыта, рассчитывать нечего
	OutcomeWin                      // +reward
	OutcomeLoss                     // -risk
	OutcomeBreakeven                // 0, отдельный счетчик
	OutcomeVoid                     // сделка отменена, без движения баланса и статистики
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpen:
		return models.TradeStatusActive
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	case OutcomeBreakeven:
		return "breakeven"
	case OutcomeVoid:
		return "void"
	default:
		return "unknown"
	}
}

// IsTerminal возвращает true если по итогу нужно рассчитать дочерние сделки
func (o Outcome) IsTerminal() bool {
	return o != OutcomeOpen
}
