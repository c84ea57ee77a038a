package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Поддерживаемые драйверы БД
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas - параметры соединения по умолчанию для sqlite:
// WAL для конкурентного чтения, immediate-транзакции для сериализации записей.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite"

// Options - параметры подключения к хранилищу
type Options struct {
	Driver string // "sqlite" или "postgres"
	DSN    string // путь к файлу sqlite или postgres DSN
	Retry  RetryPolicy

	// OnRetry вызывается перед каждой повторной попыткой (для метрик)
	OnRetry func(op string)
}

// Storage управляет базой данных журнала
type Storage struct {
	db      *sql.DB
	dialect dialect
	retry   RetryPolicy
	onRetry func(op string)
	logger  *slog.Logger
}

// New создает новый экземпляр Storage и применяет схему
func New(opts Options, logger *slog.Logger) (*Storage, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if d.name == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?" + sqlitePragmas
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := newWithDB(db, d, opts.Retry, logger)
	s.onRetry = opts.OnRetry

	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func newWithDB(db *sql.DB, d dialect, retry RetryPolicy, logger *slog.Logger) *Storage {
	return &Storage{
		db:      db,
		dialect: d,
		retry:   retry.withDefaults(),
		logger:  logger,
	}
}

// init инициализирует таблицы БД
func (s *Storage) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.ddl(schemaSQL)); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	s.logger.Info("✅ Database initialized", slog.String("driver", s.dialect.name))

	return nil
}

// Close закрывает соединение с БД
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping проверяет доступность БД
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    uid TEXT PRIMARY KEY,
    email TEXT NOT NULL DEFAULT '',
    joined DATETIME NOT NULL,
    subscription_status TEXT NOT NULL DEFAULT 'trial',
    current_balance REAL,
    account_status TEXT NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_users_subscription ON users(subscription_status);

CREATE TABLE IF NOT EXISTS master_trades (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    price REAL NOT NULL,
    tp REAL NOT NULL,
    sl REAL NOT NULL,
    rr REAL,
    status TEXT NOT NULL DEFAULT 'active',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

-- Дочерние сделки (users/{uid}/trades)
CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(uid),
    parent_id TEXT NOT NULL,
    risk REAL NOT NULL,
    reward REAL NOT NULL,
    type TEXT NOT NULL,
    sl REAL NOT NULL,
    tp REAL NOT NULL,
    price REAL NOT NULL,
    rr REAL,
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    settled_at DATETIME,
    amount REAL,
    UNIQUE(user_id, parent_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_parent ON trades(parent_id);

CREATE TABLE IF NOT EXISTS dashboards (
    user_id TEXT PRIMARY KEY REFERENCES users(uid),
    current_balance REAL NOT NULL DEFAULT 0,
    prev_balance REAL,
    balances TEXT NOT NULL DEFAULT '[]',
    current_total_trades INTEGER NOT NULL DEFAULT 0,
    current_active_days INTEGER NOT NULL DEFAULT 0,
    current_total_wins INTEGER NOT NULL DEFAULT 0,
    current_total_losses INTEGER NOT NULL DEFAULT 0,
    current_total_breakevens INTEGER NOT NULL DEFAULT 0,
    current_win_streak INTEGER NOT NULL DEFAULT 0,
    prev_month_total_trades INTEGER NOT NULL DEFAULT 0,
    prev_month_active_days INTEGER NOT NULL DEFAULT 0,
    prev_month_total_wins INTEGER NOT NULL DEFAULT 0,
    prev_month_total_losses INTEGER NOT NULL DEFAULT 0,
    prev_month_total_breakevens INTEGER NOT NULL DEFAULT 0,
    prev_month_win_streak INTEGER NOT NULL DEFAULT 0,
    rolled_period TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL
);

-- Лог активности
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT,
    level TEXT NOT NULL,
    action TEXT NOT NULL,
    message TEXT NOT NULL,
    details TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log(user_id);
CREATE INDEX IF NOT EXISTS idx_activity_log_created ON activity_log(created_at DESC);
`

// dialect скрывает различия sqlite и postgres
type dialect struct {
	name      string
	forUpdate string // суффикс блокировки строки для read-modify-write
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", DriverSQLite:
		// в sqlite вся транзакция берет RESERVED lock через _txlock=immediate
		return dialect{name: DriverSQLite}, nil
	case DriverPostgres:
		return dialect{name: DriverPostgres, forUpdate: " FOR UPDATE"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

var postgresDDL = strings.NewReplacer(
	"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY",
	"REAL", "DOUBLE PRECISION",
	"DATETIME", "TIMESTAMPTZ",
)

func (d dialect) ddl(schema string) string {
	if d.name == DriverPostgres {
		return postgresDDL.Replace(schema)
	}

	return schema
}

// rebind заменяет плейсхолдеры "?" на "$n" для postgres
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}
