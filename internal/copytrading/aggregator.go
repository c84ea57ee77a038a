package copytrading

import (
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultHistoryLimit - сколько последних снимков баланса хранит дашборд
const DefaultHistoryLimit = 100

// DashboardDelta - разреженное изменение дашборда.
// Balance == nil означает "не менять"; указатель на 0 - реальное нулевое изменение.
type DashboardDelta struct {
	TotalTrades bool
	Balance     *float64
	Win         bool
	Loss        bool
	Breakeven   bool
}

// deltaFor строит изменение дашборда для рассчитанной сделки
func deltaFor(outcome Outcome, amount *float64) DashboardDelta {
	return DashboardDelta{
		Balance:   amount,
		Win:       outcome == OutcomeWin,
		Loss:      outcome == OutcomeLoss,
		Breakeven: outcome == OutcomeBreakeven,
	}
}

// IsEmpty возвращает true если изменение ничего не меняет
func (d DashboardDelta) IsEmpty() bool {
	return !d.TotalTrades && d.Balance == nil && !d.Win && !d.Loss && !d.Breakeven
}

// ApplyDelta применяет изменение к дашборду.
// balances хранит не больше historyLimit последних значений, самое свежее в конце.
func ApplyDelta(d *models.Dashboard, delta DashboardDelta, historyLimit int) {
	if delta.TotalTrades {
		d.CurrentTotalTrades++
		d.CurrentActiveDays++
	}

	if delta.Balance != nil {
		prev := d.CurrentBalance
		d.PrevBalance = &prev
		d.CurrentBalance = decimal.NewFromFloat(prev).Add(decimal.NewFromFloat(*delta.Balance)).InexactFloat64()
		d.Balances = appendCapped(d.Balances, d.CurrentBalance, historyLimit)
	}

	if delta.Win {
		d.CurrentTotalWins++
		d.CurrentWinStreak++
	}

	if delta.Loss {
		d.CurrentTotalLosses++
		d.CurrentWinStreak = 0
	}

	if delta.Breakeven {
		d.CurrentTotalBreakevens++
	}
}

func appendCapped(balances []float64, v float64, limit int) []float64 {
	balances = append(balances, v)

	return truncateHistory(balances, limit)
}

// truncateHistory оставляет limit последних значений
func truncateHistory(balances []float64, limit int) []float64 {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if len(balances) <= limit {
		return balances
	}

	return append([]float64(nil), balances[len(balances)-limit:]...)
}
