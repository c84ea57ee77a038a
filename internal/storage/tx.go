package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Tx - транзакция хранилища; все изменения агрегатов пользователя
// (дашборд, баланс, дочерние сделки) выполняются внутри одной Tx
type Tx struct {
	tx      *sql.Tx
	dialect dialect
}

// InTx выполняет fn в транзакции с повтором при конфликтах.
// fn может быть вызвана несколько раз и должна пересчитывать свой результат заново.
func (s *Storage) InTx(ctx context.Context, op string, fn func(ctx context.Context, tx *Tx) error) error {
	return s.withRetry(ctx, op, func(ctx context.Context) error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(ctx, &Tx{tx: sqlTx, dialect: s.dialect}); err != nil {
			return errors.Join(err, ignoreDone(sqlTx.Rollback()))
		}

		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	})
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func now() time.Time {
	return time.Now().UTC()
}

// nullable разыменовывает необязательное значение для передачи в драйвер
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}

	return *p
}
