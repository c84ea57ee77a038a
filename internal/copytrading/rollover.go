package copytrading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/hmukwana/trade-alerts-firebase/internal/storage"
)

// RolloverPeriodLayout - формат ключа месяца, за который выполнен rollover
const RolloverPeriodLayout = "2006-01"

var errAlreadyRolled = errors.New("dashboard already rolled over for this period")

// RolloverDashboard переносит статистику текущего месяца в prevMonth* и обнуляет текущую.
// currentBalance возвращается к prevBalance, если тот задан.
// Возвращает false и ничего не меняет, если за period rollover уже выполнен.
func RolloverDashboard(d *models.Dashboard, period string, historyLimit int) bool {
	if d.RolledPeriod == period {
		return false
	}

	d.PrevMonthTotalTrades = d.CurrentTotalTrades
	d.PrevMonthActiveDays = d.CurrentActiveDays
	d.PrevMonthTotalWins = d.CurrentTotalWins
	d.PrevMonthTotalLosses = d.CurrentTotalLosses
	d.PrevMonthTotalBreakevens = d.CurrentTotalBreakevens
	d.PrevMonthWinStreak = d.CurrentWinStreak

	if d.PrevBalance != nil {
		d.CurrentBalance = *d.PrevBalance
	}

	d.Balances = truncateHistory(d.Balances, historyLimit)

	d.CurrentTotalTrades = 0
	d.CurrentActiveDays = 0
	d.CurrentTotalWins = 0
	d.CurrentTotalLosses = 0
	d.CurrentTotalBreakevens = 0
	d.CurrentWinStreak = 0

	d.RolledPeriod = period

	return true
}

// Rollover выполняет месячный перенос для всех дашбордов; каждый дашборд в своей транзакции.
// Повторный запуск в том же месяце (по SCHEDULE_TZ) пропускает уже перенесенные дашборды.
func (e *Engine) Rollover(ctx context.Context) (RolloverResult, error) {
	defer e.metrics.ObserveTrigger("rollover", time.Now())

	period := e.now().In(e.cfg.Location).Format(RolloverPeriodLayout)

	userIDs, err := e.dashboardStorage.ListDashboardUserIDs(ctx)
	if err != nil {
		return RolloverResult{}, fmt.Errorf("failed to list dashboards: %w", err)
	}

	exec := fanOut(ctx, e.cfg.Concurrency, userIDs, func(ctx context.Context, userID string) UserResult {
		res := UserResult{UserID: userID}

		err := e.tradeStorage.InTx(ctx, "rollover", func(ctx context.Context, tx *storage.Tx) error {
			res.Skipped = false

			_, err := tx.UpdateDashboard(ctx, userID, func(d *models.Dashboard) error {
				if !RolloverDashboard(d, period, e.cfg.HistoryLimit) {
					return errAlreadyRolled
				}

				return nil
			})
			if errors.Is(err, errAlreadyRolled) {
				res.Skipped = true
				return nil
			}

			return err
		})
		if err != nil {
			e.logger.Error("❌ Failed to roll over dashboard",
				slog.String("user_id", userID),
				slog.Any("error", err))
			e.metrics.RolloverDashboard("failed")

			res.Error = err.Error()

			return res
		}

		res.Success = true

		if res.Skipped {
			e.metrics.RolloverDashboard("skipped")
			e.logger.Debug("Dashboard already rolled over",
				slog.String("user_id", userID),
				slog.String("period", period))

			return res
		}

		e.metrics.RolloverDashboard("ok")

		return res
	})

	result := RolloverResult{
		Period:       period,
		TotalCount:   exec.TotalCount,
		SuccessCount: exec.SuccessCount,
		SkippedCount: exec.SkippedCount,
		FailedCount:  exec.FailedCount,
	}

	for _, r := range exec.Results {
		if !r.Success {
			result.Failed = append(result.Failed, r.UserID)
		}
	}

	e.logger.Info("📅 Monthly rollover completed",
		slog.String("period", period),
		slog.Int("total", result.TotalCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("failed", result.FailedCount))

	level := "INFO"
	if result.FailedCount > 0 {
		level = "WARN"
	}

	details, _ := json.Marshal(result)
	if err := e.logStorage.AddLog(ctx, models.ActivityLog{
		Level:   level,
		Action:  "rollover",
		Message: fmt.Sprintf("rollover %s: %d/%d dashboards, %d already rolled", period, result.SuccessCount, result.TotalCount, result.SkippedCount),
		Details: string(details),
	}); err != nil {
		e.logger.Error("Failed to add activity log", slog.Any("error", err))
	}

	text := fmt.Sprintf("📅 Monthly rollover %s: %d/%d dashboards", period, result.SuccessCount, result.TotalCount)
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.logger.Error("Failed to notify operator", slog.Any("error", err))
	}

	return result, nil
}
