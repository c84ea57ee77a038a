package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

const dashboardColumns = `user_id, current_balance, prev_balance, balances,
	current_total_trades, current_active_days, current_total_wins, current_total_losses,
	current_total_breakevens, current_win_streak,
	prev_month_total_trades, prev_month_active_days, prev_month_total_wins, prev_month_total_losses,
	prev_month_total_breakevens, prev_month_win_streak, rolled_period, updated_at`

func scanDashboard(row rowScanner) (models.Dashboard, error) {
	var (
		d            models.Dashboard
		prevBalance  sql.NullFloat64
		balancesJSON string
	)

	err := row.Scan(&d.UserID, &d.CurrentBalance, &prevBalance, &balancesJSON,
		&d.CurrentTotalTrades, &d.CurrentActiveDays, &d.CurrentTotalWins, &d.CurrentTotalLosses,
		&d.CurrentTotalBreakevens, &d.CurrentWinStreak,
		&d.PrevMonthTotalTrades, &d.PrevMonthActiveDays, &d.PrevMonthTotalWins, &d.PrevMonthTotalLosses,
		&d.PrevMonthTotalBreakevens, &d.PrevMonthWinStreak, &d.RolledPeriod, &d.UpdatedAt)
	if err != nil {
		return models.Dashboard{}, err
	}

	if prevBalance.Valid {
		d.PrevBalance = &prevBalance.Float64
	}

	if err := json.Unmarshal([]byte(balancesJSON), &d.Balances); err != nil {
		return models.Dashboard{}, fmt.Errorf("failed to decode balances: %w", err)
	}

	if d.Balances == nil {
		d.Balances = []float64{}
	}

	return d, nil
}

// GetDashboard получает дашборд пользователя
func (s *Storage) GetDashboard(ctx context.Context, userID string) (models.Dashboard, error) {
	var d models.Dashboard

	err := s.withRetry(ctx, "get_dashboard", func(ctx context.Context) error {
		var err error
		d, err = scanDashboard(s.db.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT `+dashboardColumns+` FROM dashboards WHERE user_id = ?`), userID))

		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Dashboard{}, fmt.Errorf("dashboard %s: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("failed to get dashboard: %w", err)
	}

	return d, nil
}

// ListDashboardUserIDs возвращает id всех пользователей, у которых есть дашборд
func (s *Storage) ListDashboardUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string

	err := s.withRetry(ctx, "list_dashboards", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM dashboards ORDER BY user_id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		userIDs = userIDs[:0]
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}

			userIDs = append(userIDs, id)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}

	return userIDs, nil
}

// UpdateDashboard выполняет read-modify-write дашборда внутри транзакции.
// Отсутствующий дашборд создается из текущего баланса пользователя.
// Если fn изменила currentBalance, баланс пользователя пишется в той же транзакции.
func (t *Tx) UpdateDashboard(ctx context.Context, userID string, fn func(d *models.Dashboard) error) (models.Dashboard, error) {
	user, err := t.GetUser(ctx, userID)
	if err != nil {
		return models.Dashboard{}, err
	}

	initial := []float64{}
	if user.CurrentBalance != nil {
		initial = append(initial, *user.CurrentBalance)
	}

	initialJSON, _ := json.Marshal(initial)

	_, err = t.exec(ctx, `
		INSERT INTO dashboards (user_id, current_balance, balances, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, userID, user.Balance(), string(initialJSON), now())
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("failed to create dashboard: %w", err)
	}

	before, err := scanDashboard(t.queryRow(ctx,
		`SELECT `+dashboardColumns+` FROM dashboards WHERE user_id = ?`+t.dialect.forUpdate, userID))
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("failed to read dashboard: %w", err)
	}

	d := before
	d.Balances = append([]float64(nil), before.Balances...)

	if err := fn(&d); err != nil {
		return models.Dashboard{}, err
	}

	d.UserID = userID
	d.UpdatedAt = now()

	if d.Balances == nil {
		d.Balances = []float64{}
	}

	balancesJSON, err := json.Marshal(d.Balances)
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("failed to encode balances: %w", err)
	}

	_, err = t.exec(ctx, `
		UPDATE dashboards SET
			current_balance = ?, prev_balance = ?, balances = ?,
			current_total_trades = ?, current_active_days = ?, current_total_wins = ?,
			current_total_losses = ?, current_total_breakevens = ?, current_win_streak = ?,
			prev_month_total_trades = ?, prev_month_active_days = ?, prev_month_total_wins = ?,
			prev_month_total_losses = ?, prev_month_total_breakevens = ?, prev_month_win_streak = ?,
			rolled_period = ?, updated_at = ?
		WHERE user_id = ?
	`, d.CurrentBalance, nullable(d.PrevBalance), string(balancesJSON),
		d.CurrentTotalTrades, d.CurrentActiveDays, d.CurrentTotalWins,
		d.CurrentTotalLosses, d.CurrentTotalBreakevens, d.CurrentWinStreak,
		d.PrevMonthTotalTrades, d.PrevMonthActiveDays, d.PrevMonthTotalWins,
		d.PrevMonthTotalLosses, d.PrevMonthTotalBreakevens, d.PrevMonthWinStreak,
		d.RolledPeriod, d.UpdatedAt, userID)
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("failed to update dashboard: %w", err)
	}

	if user.CurrentBalance == nil || *user.CurrentBalance != d.CurrentBalance {
		if err := t.SetCurrentBalance(ctx, userID, d.CurrentBalance); err != nil {
			return models.Dashboard{}, err
		}
	}

	return d, nil
}
