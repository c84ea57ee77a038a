package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy ограничивает повторы операций с хранилищем
type RetryPolicy struct {
	Attempts  int           // общее число попыток, включая первую
	BaseDelay time.Duration // задержка перед второй попыткой, далее удваивается
	MaxDelay  time.Duration
	Timeout   time.Duration // дедлайн одной попытки
}

// DefaultRetryPolicy возвращает политику повторов по умолчанию
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  5,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Timeout:   5 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}

	return p
}

// backoff возвращает задержку перед попыткой attempt+1 (экспонента с джиттером ±50%)
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}

	half := int64(d) / 2
	if half <= 0 {
		return d
	}

	return time.Duration(half + rand.Int64N(2*half))
}

// withRetry выполняет fn с ограниченным числом повторов при временных ошибках.
// Каждая попытка получает собственный дедлайн.
func (s *Storage) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.Timeout)
		err = fn(attemptCtx)
		attemptTimedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if !isRetryable(err) && !attemptTimedOut {
			return err
		}

		if attempt >= s.retry.Attempts {
			return fmt.Errorf("%s: %w after %d attempts: %w", op, models.ErrTransient, attempt, err)
		}

		delay := s.retry.backoff(attempt)

		s.logger.Warn("Retrying store operation",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		if s.onRetry != nil {
			s.onRetry(op)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, errors.Join(err, ctx.Err()))
		case <-time.After(delay):
		}
	}
}

// isRetryable определяет временные ошибки: блокировки sqlite,
// конфликты сериализации и обрывы соединения postgres
func isRetryable(err error) bool {
	if errors.Is(err, models.ErrConflict) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}

		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}

		return pqErr.Code.Class() == "08"
	}

	return false
}
