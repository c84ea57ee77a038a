package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config содержит конфигурацию приложения
type Config struct {
	DBDriver string `yaml:"db_driver"` // "sqlite" или "postgres"
	DBPath   string `yaml:"db_path"`   // файл sqlite
	DBDSN    string `yaml:"db_dsn"`    // DSN postgres
	Address  string `yaml:"address"`   // адрес HTTP сервера (e.g., 0.0.0.0:8080)

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"` // пусто - только stdout

	AdminJWTSecret string `yaml:"admin_jwt_secret"` // пусто - /api без авторизации
	FeedURL        string `yaml:"feed_url"`         // websocket поток изменений документов

	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	StartingBalance     float64 `yaml:"starting_balance"`
	RiskFraction        float64 `yaml:"risk_fraction"`
	BalanceHistoryLimit int     `yaml:"balance_history_limit"`
	FanoutConcurrency   int     `yaml:"fanout_concurrency"`

	StoreRetryAttempts  int           `yaml:"store_retry_attempts"`
	StoreRetryBaseDelay time.Duration `yaml:"store_retry_base_delay"`
	StoreTimeout        time.Duration `yaml:"store_timeout"`

	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	ScheduleTZ   string  `yaml:"schedule_tz"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		DBDriver:            "sqlite",
		DBPath:              "./journal.db",
		Address:             "0.0.0.0:8080",
		LogLevel:            "info",
		StartingBalance:     10000,
		RiskFraction:        0.01,
		BalanceHistoryLimit: 100,
		FanoutConcurrency:   8,
		StoreRetryAttempts:  5,
		StoreRetryBaseDelay: 50 * time.Millisecond,
		StoreTimeout:        5 * time.Second,
		RateLimitRPS:        20,
		ScheduleTZ:          "UTC",
	}
}

// Load загружает конфигурацию: значения по умолчанию, затем YAML файл из CONFIG_FILE,
// затем переменные окружения (в том числе из .env)
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}

		logger.Info("📄 Config file loaded", slog.String("path", path))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AdminJWTSecret == "" {
		logger.Warn("⚠️  ADMIN_JWT_SECRET not set, /api is not authenticated")
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.DBDSN, "DB_DSN")
	setString(&c.Address, "ADDRESS")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.AdminJWTSecret, "ADMIN_JWT_SECRET")
	setString(&c.FeedURL, "FEED_URL")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.ScheduleTZ, "SCHEDULE_TZ")

	return errors.Join(
		setParsed(&c.TelegramChatID, "TELEGRAM_CHAT_ID", func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }),
		setParsed(&c.StartingBalance, "STARTING_BALANCE", parseFloat),
		setParsed(&c.RiskFraction, "RISK_FRACTION", parseFloat),
		setParsed(&c.BalanceHistoryLimit, "BALANCE_HISTORY_LIMIT", strconv.Atoi),
		setParsed(&c.FanoutConcurrency, "FANOUT_CONCURRENCY", strconv.Atoi),
		setParsed(&c.StoreRetryAttempts, "STORE_RETRY_ATTEMPTS", strconv.Atoi),
		setParsed(&c.StoreRetryBaseDelay, "STORE_RETRY_BASE_DELAY", time.ParseDuration),
		setParsed(&c.StoreTimeout, "STORE_TIMEOUT", time.ParseDuration),
		setParsed(&c.RateLimitRPS, "RATE_LIMIT_RPS", parseFloat),
	)
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "postgres":
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	if c.StartingBalance <= 0 {
		errs = append(errs, errors.New("STARTING_BALANCE must be positive"))
	}
	if c.RiskFraction <= 0 || c.RiskFraction >= 1 {
		errs = append(errs, errors.New("RISK_FRACTION must be in (0, 1)"))
	}
	if c.BalanceHistoryLimit <= 0 {
		errs = append(errs, errors.New("BALANCE_HISTORY_LIMIT must be positive"))
	}
	if c.FanoutConcurrency <= 0 {
		errs = append(errs, errors.New("FANOUT_CONCURRENCY must be positive"))
	}
	if c.StoreRetryAttempts <= 0 {
		errs = append(errs, errors.New("STORE_RETRY_ATTEMPTS must be positive"))
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == 0) {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location возвращает часовой пояс месячного расписания
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ScheduleTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TZ %q: %w", c.ScheduleTZ, err)
	}

	return loc, nil
}

// SlogLevel возвращает уровень логирования
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setParsed[T any](dst *T, key string, parse func(string) (T, error)) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}

	parsed, err := parse(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	*dst = parsed

	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
