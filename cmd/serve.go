package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"focusguard/internal/backend"
	"focusguard/internal/core/model"
	"focusguard/internal/core/timekeeper"
	"focusguard/internal/platform"
	"focusguard/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	listenAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the cycle timer headless and serve it to desktop clients",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7420", "address for the websocket backend and /metrics")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settingsPath, err := resolveSettingsPath()
	if err != nil {
		return err
	}
	settings, err := storage.LoadSettings(settingsPath, logger)
	if err != nil {
		logger.Warn("settings unreadable, using defaults", "path", settingsPath, "error", err)
	}

	auditPath, err := resolveAuditPath()
	if err != nil {
		return err
	}
	attempts, err := storage.OpenAttemptLog(auditPath)
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}
	defer attempts.Close()

	keeper := timekeeper.New(settings.TimeKeeperConfig(), timekeeper.Config{TickInterval: time.Second, Logger: logger})
	keeper.SetIdleChecker(platform.NewIdleChecker())
	keeper.Start()
	defer keeper.Close()

	if err := storage.WatchSettings(ctx, settingsPath, storage.DefaultReloadDebounce, logger, func(updated model.Settings) {
		keeper.UpdateConfig(updated.TimeKeeperConfig())
	}); err != nil {
		logger.Warn("settings will not reload", "error", err)
	}

	local := backend.NewLocal(keeper, attempts)
	mux := http.NewServeMux()
	mux.Handle("/ws", backend.NewServer(local, logger))
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backend listening", "addr", listenAddr, "audit_db", auditPath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve backend: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("backend shutting down")
	return server.Shutdown(shutdownCtx)
}
