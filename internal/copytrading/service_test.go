package copytrading

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/hmukwana/trade-alerts-firebase/internal/ids"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnUserCreatedInitializesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice", Email: "alice@example.com"}))

	user, err := env.store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrial, user.SubscriptionStatus)
	assert.Equal(t, models.AccountActive, user.AccountStatus)
	assert.Equal(t, float64(DefaultStartingBalance), user.Balance())

	d := env.dashboard(t, "alice")
	assert.Equal(t, float64(DefaultStartingBalance), d.CurrentBalance)
	assert.Equal(t, []float64{DefaultStartingBalance}, d.Balances)
	assert.Zero(t, d.CurrentTotalTrades)
}

func TestOnUserCreatedRedeliveryKeepsAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))

	env.addMaster(t, "m1", ptr(2.0), models.TradeStatusActive)
	_, err := env.engine.Propagate(ctx, "m1")
	require.NoError(t, err)
	_, err = env.engine.Settle(ctx, "m1", "win")
	require.NoError(t, err)

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))

	assert.Equal(t, 10200.0, env.balance(t, "alice"))
	env.child(t, "m1", "alice")
}

func TestOnUserCreatedRequiresUID(t *testing.T) {
	env := newTestEnv(t)

	assert.ErrorIs(t, env.service.OnUserCreated(context.Background(), UserRecord{UID: "  "}), models.ErrValidation)
}

func TestResetDashboardClearsTrades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))
	env.addMaster(t, "m1", ptr(2.0), models.TradeStatusActive)
	_, err := env.engine.Propagate(ctx, "m1")
	require.NoError(t, err)
	_, err = env.engine.Settle(ctx, "m1", "loss")
	require.NoError(t, err)

	require.NoError(t, env.service.ResetDashboard(ctx, "alice", 2500))

	d := env.dashboard(t, "alice")
	assert.Equal(t, 2500.0, d.CurrentBalance)
	assert.Equal(t, []float64{2500}, d.Balances)
	assert.Nil(t, d.PrevBalance)
	assert.Zero(t, d.CurrentTotalTrades)
	assert.Zero(t, d.CurrentTotalLosses)
	assert.Equal(t, 2500.0, env.balance(t, "alice"))

	trades, err := env.store.GetUserTrades(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestResetDashboardValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))

	for _, b := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, env.service.ResetDashboard(ctx, "alice", b), models.ErrValidation)
	}

	assert.ErrorIs(t, env.service.ResetDashboard(ctx, "missing", 100), models.ErrNotFound)
	assert.Equal(t, float64(DefaultStartingBalance), env.balance(t, "alice"))
}

func TestOnUserDeletedExcludesFromFanout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))
	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "bob"}))
	require.NoError(t, env.service.OnUserDeleted(ctx, "bob"))

	user, err := env.store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.AccountDeleted, user.AccountStatus)
	assert.Equal(t, models.SubscriptionCanceled, user.SubscriptionStatus)

	env.addMaster(t, "m1", ptr(2.0), models.TradeStatusActive)
	result, err := env.engine.Propagate(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "alice", result.Results[0].UserID)

	assert.ErrorIs(t, env.service.OnUserDeleted(ctx, "missing"), models.ErrNotFound)
}

func TestCreateMasterTrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))
	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "bob"}))

	master, result, err := env.service.CreateMasterTrade(ctx, CreateMasterTradeRequest{
		Price: 100, TP: 110, SL: 95, Type: "buy",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeBuy, master.Type)
	require.NotNil(t, master.RR)
	assert.Equal(t, 2.0, *master.RR)
	assert.Equal(t, models.TradeStatusActive, master.Status)
	assert.Equal(t, 2, result.SuccessCount)

	stored, err := env.store.GetMasterTrade(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, master.ID, stored.ID)

	child := env.child(t, master.ID, "alice")
	assert.Equal(t, 100.0, child.Risk)
	assert.Equal(t, 200.0, child.Reward)
}

func TestCreateMasterTradeWithIdempotencyKeyResumesFanout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))

	flaky := NewService(
		NewEngine(env.store, env.store, ghostUsers{env.store}, env.store, env.notifier, nil, DefaultEngineConfig(), discardLogger()),
		env.store, DefaultStartingBalance, discardLogger())

	req := CreateMasterTradeRequest{Price: 100, TP: 110, SL: 95, Type: "Buy", IdempotencyKey: " order-42 "}

	first, result, err := flaky.CreateMasterTrade(ctx, req)
	require.ErrorIs(t, err, models.ErrTransient)
	assert.Equal(t, ids.MasterTradeIDForKey("order-42"), first.ID)
	assert.Equal(t, 1, result.FailedCount)
	env.child(t, first.ID, "alice")

	second, result, err := env.service.CreateMasterTrade(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, result.SkippedCount)

	children, err := env.store.ListChildTrades(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	req.Price = 101
	_, _, err = env.service.CreateMasterTrade(ctx, req)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateMasterTradeReturnsMasterOnPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))

	flaky := NewService(
		NewEngine(env.store, env.store, ghostUsers{env.store}, env.store, env.notifier, nil, DefaultEngineConfig(), discardLogger()),
		env.store, DefaultStartingBalance, discardLogger())

	master, result, err := flaky.CreateMasterTrade(ctx, CreateMasterTradeRequest{Price: 100, TP: 110, SL: 95, Type: "Buy"})
	require.ErrorIs(t, err, models.ErrTransient)
	require.NotEmpty(t, master.ID)
	assert.Equal(t, 2, result.TotalCount)

	stored, err := env.store.GetMasterTrade(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, master.ID, stored.ID)
}

func TestOnMasterTradeCreatedPartialFailureIsTransient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addUser(t, "alice", ptr(10000.0), models.SubscriptionActive)
	env.addMaster(t, "m1", ptr(2.0), models.TradeStatusActive)

	flaky := NewService(
		NewEngine(env.store, env.store, ghostUsers{env.store}, env.store, env.notifier, nil, DefaultEngineConfig(), discardLogger()),
		env.store, DefaultStartingBalance, discardLogger())

	result, err := flaky.OnMasterTradeCreated(ctx, "m1")
	require.ErrorIs(t, err, models.ErrTransient)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)

	result, err = env.service.OnMasterTradeCreated(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)
}

func TestCreateMasterTradeRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	invalid := []CreateMasterTradeRequest{
		{Price: 100, TP: 110, SL: 95, Type: "Hold"},
		{Price: 100, TP: 90, SL: 95, Type: "Buy"},
		{Price: 100, TP: 110, SL: 95, Type: "Sell"},
		{Price: math.NaN(), TP: 110, SL: 95, Type: "Buy"},
		{Price: 100, TP: 110, SL: 95, Type: "Buy", IdempotencyKey: strings.Repeat("k", 129)},
	}

	for _, req := range invalid {
		_, _, err := env.service.CreateMasterTrade(ctx, req)
		assert.ErrorIs(t, err, models.ErrValidation, "%+v", req)
	}

	logs, err := env.store.GetLogs(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestOnMasterTradeUpdatedCascadesOnlyOnStatusChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))
	master := env.addMaster(t, "m1", ptr(2.0), models.TradeStatusActive)
	_, err := env.engine.Propagate(ctx, "m1")
	require.NoError(t, err)

	same := master
	result, err := env.service.OnMasterTradeUpdated(ctx, master, same)
	require.NoError(t, err)
	assert.Zero(t, result.TotalCount)

	won := master
	won.Status = "win"
	result, err = env.service.OnMasterTradeUpdated(ctx, master, won)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	// повторная доставка того же изменения
	result, err = env.service.OnMasterTradeUpdated(ctx, master, won)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)

	assert.Equal(t, 10200.0, env.balance(t, "alice"))
}

func TestUpdateMasterTradeStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))
	master, _, err := env.service.CreateMasterTrade(ctx, CreateMasterTradeRequest{Price: 100, TP: 90, SL: 105, Type: "Sell"})
	require.NoError(t, err)

	result, err := env.service.UpdateMasterTradeStatus(ctx, master.ID, "loss")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	stored, err := env.store.GetMasterTrade(ctx, master.ID)
	require.NoError(t, err)
	assert.Equal(t, "loss", stored.Status)

	assert.Equal(t, 9900.0, env.balance(t, "alice"))

	_, err = env.service.UpdateMasterTradeStatus(ctx, master.ID, " ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = env.service.UpdateMasterTradeStatus(ctx, "missing", "win")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOnScheduleRunsRollover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "alice"}))
	require.NoError(t, env.service.OnUserCreated(ctx, UserRecord{UID: "bob"}))

	result, err := env.service.OnSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 2, result.SuccessCount)
}

func TestOnScheduleTwiceInSameMonthKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addUser(t, "alice", ptr(10000.0), models.SubscriptionActive)
	env.addMaster(t, "m1", ptr(2.0), models.TradeStatusActive)

	_, err := env.service.OnMasterTradeCreated(ctx, "m1")
	require.NoError(t, err)
	_, err = env.service.UpdateMasterTradeStatus(ctx, "m1", "win")
	require.NoError(t, err)

	first, err := env.service.OnSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SuccessCount)
	assert.Zero(t, first.SkippedCount)

	rolled := env.dashboard(t, "alice")
	require.Equal(t, 1, rolled.PrevMonthTotalWins)
	require.Zero(t, rolled.CurrentTotalWins)

	second, err := env.service.OnSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Period, second.Period)
	assert.Equal(t, 1, second.SuccessCount)
	assert.Equal(t, 1, second.SkippedCount)

	after := env.dashboard(t, "alice")
	assert.Equal(t, 1, after.PrevMonthTotalWins)
	assert.Equal(t, 1, after.PrevMonthTotalTrades)
	assert.Equal(t, rolled.CurrentBalance, after.CurrentBalance)
	assert.Equal(t, rolled.UpdatedAt, after.UpdatedAt)
}
