package copytrading

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/metrics"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/hmukwana/trade-alerts-firebase/internal/storage"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, text)

	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.messages)
}

type testEnv struct {
	store    *storage.Storage
	engine   *Engine
	service  *Service
	notifier *recordingNotifier
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := discardLogger()

	store, err := storage.New(storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "journal.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &recordingNotifier{}
	engine := NewEngine(store, store, store, store, notifier, metrics.New("test"), DefaultEngineConfig(), logger)

	return &testEnv{
		store:    store,
		engine:   engine,
		service:  NewService(engine, store, DefaultStartingBalance, logger),
		notifier: notifier,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func (e *testEnv) addUser(t *testing.T, uid string, balance *float64, subscription string) {
	t.Helper()

	created, err := e.store.CreateUser(context.Background(), models.User{
		UID:                uid,
		Email:              uid + "@example.com",
		Joined:             time.Now(),
		SubscriptionStatus: subscription,
		CurrentBalance:     balance,
		AccountStatus:      models.AccountActive,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func (e *testEnv) addMaster(t *testing.T, id string, rr *float64, status string) models.MasterTrade {
	t.Helper()

	m := models.MasterTrade{
		ID: id, Type: models.TradeBuy, Price: 100, TP: 110, SL: 95, RR: rr,
		Status: status, Timestamp: time.Now(), UpdatedAt: time.Now(),
	}
	created, err := e.store.CreateMasterTrade(context.Background(), m)
	require.NoError(t, err)
	require.True(t, created)

	return m
}

func (e *testEnv) dashboard(t *testing.T, uid string) models.Dashboard {
	t.Helper()

	d, err := e.store.GetDashboard(context.Background(), uid)
	require.NoError(t, err)

	return d
}

func (e *testEnv) balance(t *testing.T, uid string) float64 {
	t.Helper()

	u, err := e.store.GetUser(context.Background(), uid)
	require.NoError(t, err)

	return u.Balance()
}

func (e *testEnv) child(t *testing.T, masterID, uid string) models.Trade {
	t.Helper()

	children, err := e.store.ListChildTrades(context.Background(), masterID)
	require.NoError(t, err)

	for _, c := range children {
		if c.UserID == uid {
			return c
		}
	}

	t.Fatalf("no child trade of %s for %s", masterID, uid)

	return models.Trade{}
}
