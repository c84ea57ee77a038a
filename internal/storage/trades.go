package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

const tradeColumns = `id, user_id, parent_id, risk, reward, type, sl, tp, price, rr, status, created_at, settled_at, amount`

func scanTrade(row rowScanner) (models.Trade, error) {
	var (
		t         models.Trade
		rr        sql.NullFloat64
		settledAt sql.NullTime
		amount    sql.NullFloat64
	)

	err := row.Scan(&t.ID, &t.UserID, &t.ParentID, &t.Risk, &t.Reward, &t.Type,
		&t.SL, &t.TP, &t.Price, &rr, &t.Status, &t.Timestamp, &settledAt, &amount)
	if err != nil {
		return models.Trade{}, err
	}

	if rr.Valid {
		t.RR = &rr.Float64
	}
	if settledAt.Valid {
		t.SettledAt = &settledAt.Time
	}
	if amount.Valid {
		t.Amount = &amount.Float64
	}

	return t, nil
}

func (s *Storage) listTrades(ctx context.Context, op, where string, args ...any) ([]models.Trade, error) {
	var trades []models.Trade

	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`SELECT `+tradeColumns+` FROM trades WHERE `+where), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		trades = trades[:0]
		for rows.Next() {
			t, err := scanTrade(rows)
			if err != nil {
				return err
			}

			trades = append(trades, t)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return trades, nil
}

// ListChildTrades возвращает все дочерние сделки мастер-сделки у всех пользователей
func (s *Storage) ListChildTrades(ctx context.Context, parentID string) ([]models.Trade, error) {
	trades, err := s.listTrades(ctx, "list_child_trades", `parent_id = ? ORDER BY user_id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child trades: %w", err)
	}

	return trades, nil
}

// GetUserTrades возвращает сделки пользователя с пагинацией, новые первыми
func (s *Storage) GetUserTrades(ctx context.Context, userID string, limit, offset int) ([]models.Trade, error) {
	trades, err := s.listTrades(ctx, "get_user_trades",
		`user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}

	return trades, nil
}

// InsertTrade создает дочернюю сделку если пары (user, parent) еще нет.
// Возвращает false если сделка уже существовала.
func (t *Tx) InsertTrade(ctx context.Context, trade models.Trade) (bool, error) {
	res, err := t.exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, trade.ID, trade.UserID, trade.ParentID, trade.Risk, trade.Reward, trade.Type,
		trade.SL, trade.TP, trade.Price, nullable(trade.RR), trade.Status, trade.Timestamp.UTC(), nullable(trade.SettledAt), nullable(trade.Amount))
	if err != nil {
		return false, fmt.Errorf("failed to insert trade: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// SettleTrade переводит сделку в итоговый статус только один раз.
// Возвращает false если сделка уже рассчитана.
func (t *Tx) SettleTrade(ctx context.Context, id, status string, amount *float64, at time.Time) (bool, error) {
	res, err := t.exec(ctx, `
		UPDATE trades SET status = ?, amount = ?, settled_at = ?
		WHERE id = ? AND settled_at IS NULL
	`, status, nullable(amount), at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to settle trade: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// DeleteUserTrades удаляет все сделки пользователя
func (t *Tx) DeleteUserTrades(ctx context.Context, userID string) (int64, error) {
	res, err := t.exec(ctx, `DELETE FROM trades WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear trades: %w", err)
	}

	return res.RowsAffected()
}
