package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

const userColumns = `uid, email, joined, subscription_status, current_balance, account_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u       models.User
		balance sql.NullFloat64
	)

	if err := row.Scan(&u.UID, &u.Email, &u.Joined, &u.SubscriptionStatus, &balance, &u.AccountStatus); err != nil {
		return models.User{}, err
	}

	if balance.Valid {
		u.CurrentBalance = &balance.Float64
	}

	return u, nil
}

// CreateUser создает пользователя если его еще нет.
// Возвращает false если пользователь уже существовал (повторная доставка события).
func (s *Storage) CreateUser(ctx context.Context, user models.User) (bool, error) {
	var created bool

	err := s.withRetry(ctx, "create_user", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO users (uid, email, joined, subscription_status, current_balance, account_status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`), user.UID, user.Email, user.Joined.UTC(), user.SubscriptionStatus, nullable(user.CurrentBalance), user.AccountStatus)
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
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// GetUser получает пользователя по uid
func (s *Storage) GetUser(ctx context.Context, uid string) (models.User, error) {
	var user models.User

	err := s.withRetry(ctx, "get_user", func(ctx context.Context) error {
		var err error
		user, err = scanUser(s.db.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT `+userColumns+` FROM users WHERE uid = ?`), uid))

		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", uid, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// ListSubscribedUsers возвращает пользователей с подпиской trial или active
func (s *Storage) ListSubscribedUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User

	err := s.withRetry(ctx, "list_subscribed_users", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
			SELECT `+userColumns+`
			FROM users
			WHERE subscription_status IN (?, ?) AND account_status <> ?
			ORDER BY uid
		`), models.SubscriptionTrial, models.SubscriptionActive, models.AccountDeleted)
		if err != nil {
			return err
		}
		defer rows.Close()

		users = users[:0]
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}

			users = append(users, u)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed users: %w", err)
	}

	return users, nil
}

// MarkUserDeleted выполняет мягкое удаление: аккаунт deleted, подписка canceled
func (s *Storage) MarkUserDeleted(ctx context.Context, uid string) error {
	var affected int64

	err := s.withRetry(ctx, "mark_user_deleted", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
			UPDATE users SET account_status = ?, subscription_status = ? WHERE uid = ?
		`), models.AccountDeleted, models.SubscriptionCanceled, uid)
		if err != nil {
			return err
		}

		affected, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("user %s: %w", uid, models.ErrNotFound)
	}

	return nil
}

// === Balance Store (внутри транзакции) ===

// GetUser читает пользователя с блокировкой строки
func (t *Tx) GetUser(ctx context.Context, uid string) (models.User, error) {
	user, err := scanUser(t.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE uid = ?`+t.dialect.forUpdate, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", uid, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetCurrentBalance возвращает текущий баланс пользователя (0 если не задан)
func (t *Tx) GetCurrentBalance(ctx context.Context, uid string) (float64, error) {
	user, err := t.GetUser(ctx, uid)
	if err != nil {
		return 0, err
	}

	return user.Balance(), nil
}

// SetCurrentBalance записывает баланс пользователя
func (t *Tx) SetCurrentBalance(ctx context.Context, uid string, balance float64) error {
	res, err := t.exec(ctx, `UPDATE users SET current_balance = ? WHERE uid = ?`, balance, uid)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", uid, models.ErrNotFound)
	}

	return nil
}
