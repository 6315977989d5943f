package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"focusguard/internal/storage"

	"github.com/spf13/cobra"
)

const appName = "FocusGuard"

var (
	backendURL  string
	configPath  string
	auditDBPath string
	logLevel    string

	rootCmd = &cobra.Command{
		Use:   "focusguard",
		Short: "Break reminders with an optional strict lockdown",
		Long: `FocusGuard runs focus and break cycles and shows a lockdown screen during
breaks. In strict mode input is suppressed until the break ends or the
emergency combination or PIN is used.`,
		SilenceUsage: true,
		RunE:         runDesktop,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&auditDBPath, "audit-db", "", "bypass attempt database (default next to the settings file)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.Flags().StringVar(&backendURL, "backend", "", "websocket URL of a running 'focusguard serve' (default runs the timer in process)")
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func resolveSettingsPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	path, err := storage.SettingsPath(appName)
	if err != nil {
		return "", fmt.Errorf("settings path: %w", err)
	}
	return path, nil
}

func resolveAuditPath() (string, error) {
	if auditDBPath != "" {
		return auditDBPath, nil
	}
	path, err := storage.DefaultAttemptLogPath(appName)
	if err != nil {
		return "", fmt.Errorf("audit db path: %w", err)
	}
	return path, nil
}
