package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

const masterTradeColumns = `id, type, price, tp, sl, rr, status, created_at, updated_at`

func scanMasterTrade(row rowScanner) (models.MasterTrade, error) {
	var (
		m  models.MasterTrade
		rr sql.NullFloat64
	)

	if err := row.Scan(&m.ID, &m.Type, &m.Price, &m.TP, &m.SL, &rr, &m.Status, &m.Timestamp, &m.UpdatedAt); err != nil {
		return models.MasterTrade{}, err
	}

	if rr.Valid {
		m.RR = &rr.Float64
	}

	return m, nil
}

// CreateMasterTrade сохраняет новую мастер-сделку.
// Возвращает false, если сделка с таким id уже есть.
func (s *Storage) CreateMasterTrade(ctx context.Context, m models.MasterTrade) (bool, error) {
	var created bool

	err := s.withRetry(ctx, "create_master_trade", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO master_trades (`+masterTradeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`), m.ID, m.Type, m.Price, m.TP, m.SL, nullable(m.RR), m.Status, m.Timestamp.UTC(), m.UpdatedAt.UTC())
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		created = n > 0

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create master trade: %w", err)
	}

	return created, nil
}

// GetMasterTrade получает мастер-сделку по id
func (s *Storage) GetMasterTrade(ctx context.Context, id string) (models.MasterTrade, error) {
	var m models.MasterTrade

	err := s.withRetry(ctx, "get_master_trade", func(ctx context.Context) error {
		var err error
		m, err = scanMasterTrade(s.db.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT `+masterTradeColumns+` FROM master_trades WHERE id = ?`), id))

		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.MasterTrade{}, fmt.Errorf("master trade %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.MasterTrade{}, fmt.Errorf("failed to get master trade: %w", err)
	}

	return m, nil
}

// UpdateMasterTradeStatus меняет статус мастер-сделки и возвращает состояния до и после
func (s *Storage) UpdateMasterTradeStatus(ctx context.Context, id, status string) (before, after models.MasterTrade, err error) {
	err = s.InTx(ctx, "update_master_trade_status", func(ctx context.Context, tx *Tx) error {
		var err error
		before, err = scanMasterTrade(tx.queryRow(ctx,
			`SELECT `+masterTradeColumns+` FROM master_trades WHERE id = ?`+tx.dialect.forUpdate, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("master trade %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		after = before
		after.Status = status
		after.UpdatedAt = now()

		_, err = tx.exec(ctx, `UPDATE master_trades SET status = ?, updated_at = ? WHERE id = ?`,
			after.Status, after.UpdatedAt, id)

		return err
	})
	if err != nil {
		return models.MasterTrade{}, models.MasterTrade{}, fmt.Errorf("failed to update master trade status: %w", err)
	}

	return before, after, nil
}
