package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"focusguard/internal/core/model"
	"focusguard/internal/strict/emergency"

	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

type yamlSettings struct {
	FocusMinutes         int     `yaml:"focus_minutes"`
	ShortBreakMinutes    int     `yaml:"short_break_minutes"`
	LongBreakMinutes     int     `yaml:"long_break_minutes"`
	CyclesBeforeLong     int     `yaml:"cycles_before_long_break"`
	PreAlertSeconds      int     `yaml:"pre_alert_seconds"`
	StrictMode           bool    `yaml:"strict_mode"`
	EmergencyCombination string  `yaml:"emergency_combination"`
	EmergencyPINHash     string  `yaml:"emergency_pin_hash,omitempty"`
	AllowEmergency       *bool   `yaml:"allow_emergency"`
	IdleEnabled          bool    `yaml:"idle_enabled"`
	OverlayOpacity       float64 `yaml:"overlay_opacity"`
	Fullscreen           bool    `yaml:"fullscreen"`
	ActivitiesFile       string  `yaml:"activities_file,omitempty"`
}

// SettingsPath returns the settings file location for appName.
func SettingsPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName, settingsFileName), nil
}

// LoadSettings reads user preferences from YAML.
// If the config file does not exist, default settings are returned.
func LoadSettings(path string, logger *slog.Logger) (model.Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	settings := model.DefaultSettings()

	rawData, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	var fileData yamlSettings
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return settings, fmt.Errorf("parse settings yaml: %w", err)
	}

	applyYamlSettings(&settings, fileData, logger)
	return settings, nil
}

// SaveSettings writes user preferences to YAML.
func SaveSettings(path string, settings model.Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	allowEmergency := settings.AllowEmergency
	fileData := yamlSettings{
		FocusMinutes:         int(settings.FocusDuration / time.Minute),
		ShortBreakMinutes:    int(settings.ShortBreak / time.Minute),
		LongBreakMinutes:     int(settings.LongBreak / time.Minute),
		CyclesBeforeLong:     settings.CyclesBeforeLong,
		PreAlertSeconds:      int(settings.PreAlert / time.Second),
		StrictMode:           settings.StrictMode,
		EmergencyCombination: settings.EmergencyCombination,
		EmergencyPINHash:     settings.EmergencyPINHash,
		AllowEmergency:       &allowEmergency,
		IdleEnabled:          settings.IdleEnabled,
		OverlayOpacity:       settings.OverlayOpacity,
		Fullscreen:           settings.Fullscreen,
		ActivitiesFile:       settings.ActivitiesFile,
	}

	serialized, err := yaml.Marshal(fileData)
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	// The PIN hash lives here, so keep the file private.
	if err := os.WriteFile(path, serialized, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	return nil
}

func applyYamlSettings(settings *model.Settings, fileData yamlSettings, logger *slog.Logger) {
	if fileData.FocusMinutes > 0 && fileData.FocusMinutes <= 240 {
		settings.FocusDuration = time.Duration(fileData.FocusMinutes) * time.Minute
	}
	if fileData.ShortBreakMinutes > 0 && fileData.ShortBreakMinutes <= 60 {
		settings.ShortBreak = time.Duration(fileData.ShortBreakMinutes) * time.Minute
	}
	if fileData.LongBreakMinutes > 0 && fileData.LongBreakMinutes <= 120 {
		settings.LongBreak = time.Duration(fileData.LongBreakMinutes) * time.Minute
	}
	if fileData.CyclesBeforeLong > 0 && fileData.CyclesBeforeLong <= 12 {
		settings.CyclesBeforeLong = fileData.CyclesBeforeLong
	}
	if fileData.PreAlertSeconds >= 0 && fileData.PreAlertSeconds <= 600 {
		settings.PreAlert = time.Duration(fileData.PreAlertSeconds) * time.Second
	}

	if fileData.OverlayOpacity >= 0.7 && fileData.OverlayOpacity <= 0.95 {
		settings.OverlayOpacity = fileData.OverlayOpacity
	}

	if combination := strings.TrimSpace(fileData.EmergencyCombination); combination != "" {
		result := emergency.Validate(combination)
		if result.Valid {
			settings.EmergencyCombination = result.Normalized
		} else {
			logger.Warn("stored emergency combination rejected, using default",
				"combination", combination, "error", result.Error, "default", emergency.DefaultCombination)
			settings.EmergencyCombination = emergency.DefaultCombination
		}
	}
	if fileData.AllowEmergency != nil {
		settings.AllowEmergency = *fileData.AllowEmergency
	}

	settings.StrictMode = fileData.StrictMode
	settings.EmergencyPINHash = fileData.EmergencyPINHash
	settings.IdleEnabled = fileData.IdleEnabled
	settings.Fullscreen = fileData.Fullscreen
	settings.ActivitiesFile = fileData.ActivitiesFile
}
