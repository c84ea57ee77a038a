package copytrading

import (
	"testing"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDeltaTotalTrades(t *testing.T) {
	d := models.Dashboard{CurrentBalance: 1000, Balances: []float64{1000}}

	ApplyDelta(&d, DashboardDelta{TotalTrades: true}, DefaultHistoryLimit)

	assert.Equal(t, 1, d.CurrentTotalTrades)
	assert.Equal(t, 1, d.CurrentActiveDays)
	assert.Equal(t, 1000.0, d.CurrentBalance)
	assert.Nil(t, d.PrevBalance)
	assert.Equal(t, []float64{1000}, d.Balances)
}

func TestApplyDeltaZeroBalanceIsNotUnset(t *testing.T) {
	d := models.Dashboard{CurrentBalance: 1000, Balances: []float64{1000}}

	ApplyDelta(&d, DashboardDelta{Balance: ptr(0.0), Breakeven: true}, DefaultHistoryLimit)

	require.NotNil(t, d.PrevBalance)
	assert.Equal(t, 1000.0, *d.PrevBalance)
	assert.Equal(t, 1000.0, d.CurrentBalance)
	assert.Equal(t, []float64{1000, 1000}, d.Balances)
	assert.Equal(t, 1, d.CurrentTotalBreakevens)

	unset := models.Dashboard{CurrentBalance: 1000, Balances: []float64{1000}}
	ApplyDelta(&unset, DashboardDelta{}, DefaultHistoryLimit)
	assert.Nil(t, unset.PrevBalance)
	assert.Equal(t, []float64{1000}, unset.Balances)
}

func TestApplyDeltaBalanceHistoryCapped(t *testing.T) {
	d := models.Dashboard{}
	for i := range DefaultHistoryLimit {
		d.Balances = append(d.Balances, float64(i))
	}
	d.CurrentBalance = float64(DefaultHistoryLimit - 1)

	ApplyDelta(&d, DashboardDelta{Balance: ptr(1.0)}, DefaultHistoryLimit)

	require.Len(t, d.Balances, DefaultHistoryLimit)
	assert.Equal(t, 1.0, d.Balances[0])
	assert.Equal(t, float64(DefaultHistoryLimit), d.Balances[len(d.Balances)-1])
}

func TestApplyDeltaWinStreak(t *testing.T) {
	d := models.Dashboard{}

	for _, delta := range []DashboardDelta{
		{Win: true},
		{Win: true},
		{Breakeven: true},
		{Win: true},
	} {
		ApplyDelta(&d, delta, DefaultHistoryLimit)
	}

	assert.Equal(t, 3, d.CurrentWinStreak)
	assert.Equal(t, 3, d.CurrentTotalWins)
	assert.Equal(t, 1, d.CurrentTotalBreakevens)

	ApplyDelta(&d, DashboardDelta{Loss: true}, DefaultHistoryLimit)
	assert.Equal(t, 0, d.CurrentWinStreak)
	assert.Equal(t, 1, d.CurrentTotalLosses)
}

func TestApplyDeltaDecimalBalance(t *testing.T) {
	d := models.Dashboard{CurrentBalance: 0.1}

	ApplyDelta(&d, DashboardDelta{Balance: ptr(0.2)}, DefaultHistoryLimit)

	assert.Equal(t, 0.3, d.CurrentBalance)
}

func TestDeltaFor(t *testing.T) {
	assert.True(t, deltaFor(OutcomeVoid, nil).IsEmpty())

	win := deltaFor(OutcomeWin, ptr(200.0))
	assert.True(t, win.Win)
	assert.Equal(t, 200.0, *win.Balance)
	assert.False(t, win.TotalTrades)
}

func TestRolloverDashboard(t *testing.T) {
	d := models.Dashboard{
		CurrentBalance:         10300,
		PrevBalance:            ptr(10200.0),
		Balances:               make([]float64, 150),
		CurrentTotalTrades:     7,
		CurrentActiveDays:      6,
		CurrentTotalWins:       4,
		CurrentTotalLosses:     2,
		CurrentTotalBreakevens: 1,
		CurrentWinStreak:       2,
	}

	require.True(t, RolloverDashboard(&d, "2024-06", DefaultHistoryLimit))

	assert.Equal(t, "2024-06", d.RolledPeriod)
	assert.Equal(t, 7, d.PrevMonthTotalTrades)
	assert.Equal(t, 6, d.PrevMonthActiveDays)
	assert.Equal(t, 4, d.PrevMonthTotalWins)
	assert.Equal(t, 2, d.PrevMonthTotalLosses)
	assert.Equal(t, 1, d.PrevMonthTotalBreakevens)
	assert.Equal(t, 2, d.PrevMonthWinStreak)

	assert.Zero(t, d.CurrentTotalTrades)
	assert.Zero(t, d.CurrentActiveDays)
	assert.Zero(t, d.CurrentTotalWins)
	assert.Zero(t, d.CurrentTotalLosses)
	assert.Zero(t, d.CurrentTotalBreakevens)
	assert.Zero(t, d.CurrentWinStreak)

	assert.Equal(t, 10200.0, d.CurrentBalance)
	assert.Len(t, d.Balances, DefaultHistoryLimit)
}

func TestRolloverDashboardWithoutPrevBalance(t *testing.T) {
	d := models.Dashboard{CurrentBalance: 10000, Balances: []float64{10000}}

	require.True(t, RolloverDashboard(&d, "2024-06", DefaultHistoryLimit))

	assert.Equal(t, 10000.0, d.CurrentBalance)
	assert.Equal(t, []float64{10000}, d.Balances)
}

func TestRolloverDashboardSamePeriodIsNoop(t *testing.T) {
	d := models.Dashboard{
		CurrentBalance:   10300,
		PrevBalance:      ptr(10200.0),
		Balances:         []float64{10000, 10200, 10300},
		CurrentTotalWins: 3,
	}

	require.True(t, RolloverDashboard(&d, "2024-06", DefaultHistoryLimit))

	d.CurrentTotalWins = 1
	d.CurrentBalance = 10500
	rolled := d

	assert.False(t, RolloverDashboard(&d, "2024-06", DefaultHistoryLimit))
	assert.Equal(t, rolled, d)

	assert.True(t, RolloverDashboard(&d, "2024-07", DefaultHistoryLimit))
	assert.Equal(t, 1, d.PrevMonthTotalWins)
	assert.Equal(t, "2024-07", d.RolledPeriod)
}
