package copytrading

import (
	"fmt"
	"math"
	"strings"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/shopspring/decimal"
)

const maxIdempotencyKeyLen = 128

// OutcomeFor классифицирует статус мастер-сделки (без учета регистра).
// Неизвестный итоговый статус считается breakeven: сделка закрыта без движения баланса.
func OutcomeFor(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", models.TradeStatusActive, "open", "pending":
		return OutcomeOpen
	case "win":
		return OutcomeWin
	case "loss":
		return OutcomeLoss
	case "canceled", "cancelled", "void":
		return OutcomeVoid
	default:
		return OutcomeBreakeven
	}
}

// NormalizeTradeType приводит направление к каноническому виду "Buy"/"Sell"
func NormalizeTradeType(tradeType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(tradeType)) {
	case "buy":
		return models.TradeBuy, nil
	case "sell":
		return models.TradeSell, nil
	default:
		return "", fmt.Errorf("%w: type must be Buy or Sell, got %q", models.ErrValidation, tradeType)
	}
}

// RiskRewardRatio возвращает reward:risk мастер-сделки.
// Buy: (tp - price) / (price - sl); Sell: (price - tp) / (sl - price).
func RiskRewardRatio(tradeType string, price, tp, sl float64) (float64, error) {
	p, t, s := decimal.NewFromFloat(price), decimal.NewFromFloat(tp), decimal.NewFromFloat(sl)

	var reward, risk decimal.Decimal

	switch tradeType {
	case models.TradeBuy:
		reward, risk = t.Sub(p), p.Sub(s)
	case models.TradeSell:
		reward, risk = p.Sub(t), s.Sub(p)
	default:
		return 0, fmt.Errorf("%w: unknown trade type %q", models.ErrValidation, tradeType)
	}

	if !risk.IsPositive() {
		return 0, fmt.Errorf("%w: stop loss must be on the losing side of price", models.ErrValidation)
	}
	if !reward.IsPositive() {
		return 0, fmt.Errorf("%w: take profit must be on the winning side of price", models.ErrValidation)
	}

	return reward.Div(risk).InexactFloat64(), nil
}

// Validate проверяет запрос и возвращает его с каноническим направлением
func (r CreateMasterTradeRequest) Validate() (CreateMasterTradeRequest, error) {
	tradeType, err := NormalizeTradeType(r.Type)
	if err != nil {
		return r, err
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"price", r.Price},
		{"tp", r.TP},
		{"sl", r.SL},
	}

	for _, f := range fields {
		if !isPositiveFinite(f.value) {
			return r, fmt.Errorf("%w: %s must be a positive finite number", models.ErrValidation, f.name)
		}
	}

	r.Type = tradeType

	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if len(r.IdempotencyKey) > maxIdempotencyKeyLen {
		return r, fmt.Errorf("%w: idempotencyKey must be at most %d bytes", models.ErrValidation, maxIdempotencyKeyLen)
	}

	return r, nil
}

// ValidateBalance проверяет новый баланс для сброса дашборда
func ValidateBalance(balance float64) error {
	if !isPositiveFinite(balance) {
		return fmt.Errorf("%w: balance must be a positive finite number", models.ErrValidation)
	}

	return nil
}

func isPositiveFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// SizeTrade вычисляет risk и reward дочерней сделки: fixed-fractional от баланса
func SizeTrade(balance, riskFraction float64, rr *float64) (risk, reward float64) {
	r := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(riskFraction))

	ratio := decimal.Zero
	if rr != nil && !math.IsNaN(*rr) && !math.IsInf(*rr, 0) {
		ratio = decimal.NewFromFloat(*rr)
	}

	return r.InexactFloat64(), r.Mul(ratio).InexactFloat64()
}

// SettlementAmount возвращает изменение баланса для итога; nil для void и open
func SettlementAmount(outcome Outcome, trade models.Trade) *float64 {
	var amount float64

	switch outcome {
	case OutcomeWin:
		amount = trade.Reward
	case OutcomeLoss:
		amount = decimal.NewFromFloat(trade.Risk).Neg().InexactFloat64()
	case OutcomeBreakeven:
		amount = 0
	default:
		return nil
	}

	return &amount
}
