package copytrading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/ids"
	"github.com/hmukwana/trade-alerts-firebase/internal/metrics"
	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/hmukwana/trade-alerts-firebase/internal/notify"
	"github.com/hmukwana/trade-alerts-firebase/internal/storage"

	"golang.org/x/sync/errgroup"
)

type TradeStorage interface {
	GetMasterTrade(ctx context.Context, id string) (models.MasterTrade, error)
	ListChildTrades(ctx context.Context, parentID string) ([]models.Trade, error)
	InTx(ctx context.Context, op string, fn func(ctx context.Context, tx *storage.Tx) error) error
}

type UserStorage interface {
	ListSubscribedUsers(ctx context.Context) ([]models.User, error)
}

type DashboardStorage interface {
	ListDashboardUserIDs(ctx context.Context) ([]string, error)
}

type LogStorage interface {
	AddLog(ctx context.Context, log models.ActivityLog) error
}

// EngineConfig - параметры расчета
type EngineConfig struct {
	RiskFraction float64 // доля баланса под риск одной сделки
	HistoryLimit int     // длина истории балансов
	Concurrency  int     // сколько пользователей обрабатывается параллельно

	Location *time.Location // часовой пояс месяца для rollover
}

// DefaultEngineConfig возвращает параметры по умолчанию
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RiskFraction: 0.01,
		HistoryLimit: DefaultHistoryLimit,
		Concurrency:  8,
	}
}

// Engine - рассылка мастер-сделок, расчет итогов и месячный rollover
type Engine struct {
	logStorage       LogStorage
	tradeStorage     TradeStorage
	userStorage      UserStorage
	dashboardStorage DashboardStorage
	notifier         notify.Notifier
	metrics          *metrics.Metrics
	cfg              EngineConfig
	logger           *slog.Logger
	now              func() time.Time
}

func NewEngine(
	logStorage LogStorage,
	tradeStorage TradeStorage,
	userStorage UserStorage,
	dashboardStorage DashboardStorage,
	notifier notify.Notifier,
	m *metrics.Metrics,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	def := DefaultEngineConfig()
	if cfg.RiskFraction <= 0 {
		cfg.RiskFraction = def.RiskFraction
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if notifier == nil {
		notifier = notify.Nop{Logger: logger}
	}

	return &Engine{
		logStorage:       logStorage,
		tradeStorage:     tradeStorage,
		userStorage:      userStorage,
		dashboardStorage: dashboardStorage,
		notifier:         notifier,
		metrics:          m,
		cfg:              cfg,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// fanOut запускает fn для каждого элемента с ограниченным параллелизмом.
// Ошибки изолированы: неудача одного пользователя не отменяет остальных.
func fanOut[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) UserResult) ExecutionResult {
	result := ExecutionResult{
		TotalCount: len(items),
		Results:    make([]UserResult, 0, len(items)),
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)

	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			startTime := time.Now()
			res := fn(ctx, item)
			res.LatencyMs = time.Since(startTime).Milliseconds()

			mu.Lock()
			result.add(res)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	slices.SortFunc(result.Results, func(a, b UserResult) int {
		return strings.Compare(a.UserID, b.UserID)
	})

	return result
}

// Propagate рассылает мастер-сделку всем пользователям с активной подпиской.
// Повторный запуск не создает дубликатов: id дочерней сделки детерминирован.
func (e *Engine) Propagate(ctx context.Context, masterID string) (ExecutionResult, error) {
	defer e.metrics.ObserveTrigger("fanout", time.Now())

	master, err := e.tradeStorage.GetMasterTrade(ctx, masterID)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to load master trade: %w", err)
	}

	users, err := e.userStorage.ListSubscribedUsers(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to get subscribed users: %w", err)
	}

	result := fanOut(ctx, e.cfg.Concurrency, users, func(ctx context.Context, user models.User) UserResult {
		return e.propagateToUser(ctx, master, user.UID)
	})
	result.MasterID = master.ID

	e.logger.Info("📤 Master trade propagated",
		slog.String("master_id", master.ID),
		slog.Int("total", result.TotalCount),
		slog.Int("created", result.SuccessCount-result.SkippedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("failed", result.FailedCount))

	e.report(ctx, "fanout", master, result)

	// статус перечитывается после вставок: мастер мог закрыться во время рассылки,
	// и расчет, прошедший до вставки, эти сделки не видел
	current, err := e.tradeStorage.GetMasterTrade(ctx, master.ID)
	if err != nil {
		return result, fmt.Errorf("failed to reload master trade: %w", err)
	}

	if outcome := OutcomeFor(current.Status); outcome.IsTerminal() {
		settled, err := e.Settle(ctx, current.ID, current.Status)
		if err != nil {
			return result, fmt.Errorf("failed to settle late fan-out: %w", err)
		}

		if settled.FailedCount > 0 {
			return result, fmt.Errorf("%w: late settlement of %s failed for %d of %d trades",
				models.ErrTransient, current.ID, settled.FailedCount, settled.TotalCount)
		}
	}

	return result, nil
}

func (e *Engine) propagateToUser(ctx context.Context, master models.MasterTrade, userID string) UserResult {
	res := UserResult{
		UserID:  userID,
		TradeID: ids.ChildTradeID(master.ID, userID),
	}

	var created bool

	err := e.tradeStorage.InTx(ctx, "propagate", func(ctx context.Context, tx *storage.Tx) error {
		balance, err := tx.GetCurrentBalance(ctx, userID)
		if err != nil {
			return err
		}

		risk, reward := SizeTrade(balance, e.cfg.RiskFraction, master.RR)

		created, err = tx.InsertTrade(ctx, models.Trade{
			ID:        res.TradeID,
			UserID:    userID,
			ParentID:  master.ID,
			Risk:      risk,
			Reward:    reward,
			Type:      master.Type,
			SL:        master.SL,
			TP:        master.TP,
			Price:     master.Price,
			RR:        master.RR,
			Status:    models.TradeStatusActive,
			Timestamp: e.now(),
		})
		if err != nil || !created {
			return err
		}

		_, err = tx.UpdateDashboard(ctx, userID, func(d *models.Dashboard) error {
			ApplyDelta(d, DashboardDelta{TotalTrades: true}, e.cfg.HistoryLimit)
			return nil
		})

		return err
	})
	if err != nil {
		e.logger.Error("❌ Failed to create child trade",
			slog.String("master_id", master.ID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		e.metrics.UnitFailure("fanout")

		res.Error = err.Error()

		return res
	}

	res.Success = true
	res.Skipped = !created

	if created {
		e.metrics.ChildTrade("created")
	} else {
		e.metrics.ChildTrade("skipped")
		e.logger.Debug("Child trade already exists",
			slog.String("master_id", master.ID),
			slog.String("user_id", userID))
	}

	return res
}

// Settle применяет итог мастер-сделки ко всем ее дочерним сделкам.
// Каждая сделка рассчитывается один раз; повторная доставка ничего не меняет.
func (e *Engine) Settle(ctx context.Context, masterID, status string) (ExecutionResult, error) {
	defer e.metrics.ObserveTrigger("settle", time.Now())

	status = strings.TrimSpace(status)
	outcome := OutcomeFor(status)
	if !outcome.IsTerminal() {
		return ExecutionResult{MasterID: masterID}, nil
	}

	children, err := e.tradeStorage.ListChildTrades(ctx, masterID)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to get child trades: %w", err)
	}

	result := fanOut(ctx, e.cfg.Concurrency, children, func(ctx context.Context, child models.Trade) UserResult {
		return e.settleChild(ctx, child, status, outcome)
	})
	result.MasterID = masterID

	e.logger.Info("🏁 Master trade settled",
		slog.String("master_id", masterID),
		slog.String("outcome", outcome.String()),
		slog.Int("total", result.TotalCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("failed", result.FailedCount))

	e.report(ctx, "settlement", models.MasterTrade{ID: masterID, Status: status}, result)

	return result, nil
}

func (e *Engine) settleChild(ctx context.Context, child models.Trade, status string, outcome Outcome) UserResult {
	res := UserResult{
		UserID:  child.UserID,
		TradeID: child.ID,
	}

	if child.IsSettled() {
		if !strings.EqualFold(child.Status, status) {
			e.logger.Warn("⚠️ Child trade already settled with another status",
				slog.String("trade_id", child.ID),
				slog.String("settled_status", child.Status),
				slog.String("new_status", status))
		}

		res.Success = true
		res.Skipped = true

		return res
	}

	amount := SettlementAmount(outcome, child)

	var settled bool

	err := e.tradeStorage.InTx(ctx, "settle", func(ctx context.Context, tx *storage.Tx) error {
		var err error

		settled, err = tx.SettleTrade(ctx, child.ID, status, amount, e.now())
		if err != nil || !settled {
			return err
		}

		delta := deltaFor(outcome, amount)
		if delta.IsEmpty() {
			return nil
		}

		_, err = tx.UpdateDashboard(ctx, child.UserID, func(d *models.Dashboard) error {
			ApplyDelta(d, delta, e.cfg.HistoryLimit)
			return nil
		})

		return err
	})
	if err != nil {
		e.logger.Error("❌ Failed to settle child trade",
			slog.String("trade_id", child.ID),
			slog.String("user_id", child.UserID),
			slog.Any("error", err))
		e.metrics.UnitFailure("settle")

		res.Error = err.Error()

		return res
	}

	res.Success = true
	res.Skipped = !settled

	if settled {
		e.metrics.Settlement(outcome.String())
	}

	return res
}

// report сохраняет итог операции в лог активности и оповещает оператора о сбоях
func (e *Engine) report(ctx context.Context, action string, master models.MasterTrade, result ExecutionResult) {
	level := "INFO"
	if result.IsFullFailure() {
		level = "ERROR"
	} else if !result.IsFullSuccess() {
		level = "WARN"
	}

	details, _ := json.Marshal(map[string]any{
		"masterId": master.ID,
		"status":   master.Status,
		"total":    result.TotalCount,
		"success":  result.SuccessCount,
		"skipped":  result.SkippedCount,
		"failed":   result.FailedCount,
	})

	logRecord := models.ActivityLog{
		Level:   level,
		Action:  action,
		Message: fmt.Sprintf("%s %s: %d/%d successful", action, master.ID, result.SuccessCount, result.TotalCount),
		Details: string(details),
	}

	if err := e.logStorage.AddLog(ctx, logRecord); err != nil {
		e.logger.Error("Failed to add activity log", slog.Any("error", err))
	}

	if result.FailedCount == 0 {
		return
	}

	text := fmt.Sprintf("⚠️ <b>%s</b> %s: %d of %d users failed", action, master.ID, result.FailedCount, result.TotalCount)
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.logger.Error("Failed to notify operator", slog.Any("error", err))
	}
}
