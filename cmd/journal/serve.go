package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/api"
	"github.com/hmukwana/trade-alerts-firebase/internal/auth"
	"github.com/hmukwana/trade-alerts-firebase/internal/feed"
	"github.com/hmukwana/trade-alerts-firebase/internal/middleware"
	"github.com/hmukwana/trade-alerts-firebase/internal/scheduler"
	"github.com/spf13/cobra"
)

const operatorTokenTTL = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, change feed consumer and monthly scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("=== Trading Journal ===")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		logger.Error("Failed to initialize", slog.Any("error", err))
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var authService *auth.Service
	if cfg.AdminJWTSecret != "" {
		authService = auth.NewService(cfg.AdminJWTSecret, operatorTokenTTL)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, 0)
	router := api.New(a.service, a.store, a.metrics, logger).SetupRouter(authService, limiter)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // fan-out на всех подписчиков может быть долгим
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Go(func() { limiter.Cleanup(ctx) })
	wg.Go(func() { scheduler.New(a.service, loc, 0, logger).Run(ctx) })

	if cfg.FeedURL != "" {
		client := feed.New(feed.Options{URL: cfg.FeedURL}, a.service, logger)
		wg.Go(func() {
			if err := client.Run(ctx); err != nil {
				logger.Error("Feed consumer stopped", slog.Any("error", err))
			}
		})
	} else {
		logger.Info("Change feed disabled (FEED_URL not set)")
	}

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("🚀 Server starting...", slog.String("address", cfg.Address))
		logger.Info(fmt.Sprintf("📡 API available at http://%s/api", cfg.Address))
		logger.Info(fmt.Sprintf("🏥 Health check at http://%s/health", cfg.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed to start", slog.Any("error", err))
			stop()
			wg.Wait()

			return err
		}
	}

	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	wg.Wait()

	logger.Info("✅ Server stopped")

	return nil
}
