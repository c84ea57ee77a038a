package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hmukwana/trade-alerts-firebase/internal/models"
)

// === Activity Log ===

// AddLog добавляет запись в лог
func (s *Storage) AddLog(ctx context.Context, log models.ActivityLog) error {
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	return s.withRetry(ctx, "add_log", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO activity_log (user_id, level, action, message, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`), nullable(log.UserID), log.Level, log.Action, log.Message, log.Details, createdAt.UTC())

		return err
	})
}

// GetLogs получает логи с пагинацией; пустой userID возвращает все записи
func (s *Storage) GetLogs(ctx context.Context, userID string, limit, offset int) ([]models.ActivityLog, error) {
	query := `
		SELECT id, user_id, level, action, message, COALESCE(details, ''), created_at
		FROM activity_log`

	var args []any
	if userID != "" {
		query += ` WHERE user_id = ? OR user_id IS NULL`
		args = append(args, userID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var logs []models.ActivityLog

	err := s.withRetry(ctx, "get_logs", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		logs = logs[:0]
		for rows.Next() {
			var (
				log    models.ActivityLog
				userID sql.NullString
			)

			if err := rows.Scan(&log.ID, &userID, &log.Level, &log.Action, &log.Message, &log.Details, &log.CreatedAt); err != nil {
				return err
			}

			if userID.Valid {
				log.UserID = &userID.String
			}

			logs = append(logs, log)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	return logs, nil
}
