package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hmukwana/trade-alerts-firebase/internal/config"
	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/hmukwana/trade-alerts-firebase/internal/metrics"
	"github.com/hmukwana/trade-alerts-firebase/internal/notify"
	"github.com/hmukwana/trade-alerts-firebase/internal/storage"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	cfg        *config.Config
	logger     *slog.Logger
	closeLogFn func() error
)

var rootCmd = &cobra.Command{
	Use:   "journal",
	Short: "Trading journal backend: master trade fan-out, settlement and monthly rollover",
	Long: `Journal keeps per-user trading dashboards in sync with operator master trades.

It provides:
  - serve: HTTP API, document change feed consumer and monthly scheduler
  - one-shot operator commands (rollover, reset-dashboard, create-master-trade, settle)

Configuration is read from .env, an optional YAML file and environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
				return err
			}
		}

		bootstrap := slog.New(tint.NewHandler(os.Stderr, nil))

		var err error

		cfg, err = config.Load(bootstrap)
		if err != nil {
			bootstrap.Error("Failed to load config", slog.Any("error", err))
			return err
		}

		logger, closeLogFn, err = newLogger(cfg.SlogLevel(), cfg.LogFile)

		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLogFn != nil {
			return closeLogFn()
		}

		return nil
	},
}

// Execute запускает корневую команду
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file (overrides CONFIG_FILE)")
}

// app - собранные зависимости для команд
type app struct {
	store   *storage.Storage
	metrics *metrics.Metrics
	engine  *copytrading.Engine
	service *copytrading.Service
}

func (a *app) Close() error {
	return a.store.Close()
}

// newApp открывает хранилище и собирает сервис по конфигурации
func newApp() (*app, error) {
	m := metrics.New("journal")

	dsn := cfg.DBPath
	if cfg.DBDriver == storage.DriverPostgres {
		dsn = cfg.DBDSN
	}

	store, err := storage.New(storage.Options{
		Driver: cfg.DBDriver,
		DSN:    dsn,
		Retry: storage.RetryPolicy{
			Attempts:  cfg.StoreRetryAttempts,
			BaseDelay: cfg.StoreRetryBaseDelay,
			Timeout:   cfg.StoreTimeout,
		},
		OnRetry: m.StoreRetry,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		store.Close()
		return nil, err
	}

	notifier, err := newNotifier()
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := copytrading.NewEngine(store, store, store, store, notifier, m, copytrading.EngineConfig{
		RiskFraction: cfg.RiskFraction,
		HistoryLimit: cfg.BalanceHistoryLimit,
		Concurrency:  cfg.FanoutConcurrency,
		Location:     loc,
	}, logger)

	return &app{
		store:   store,
		metrics: m,
		engine:  engine,
		service: copytrading.NewService(engine, store, cfg.StartingBalance, logger),
	}, nil
}

func newNotifier() (notify.Notifier, error) {
	if cfg.TelegramToken == "" {
		logger.Info("🔕 Telegram notifications disabled")
		return notify.Nop{Logger: logger}, nil
	}

	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		return nil, err
	}

	return tg, nil
}
