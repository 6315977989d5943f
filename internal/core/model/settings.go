package model

import "time"

// Settings defines editable user preferences.
type Settings struct {
	FocusDuration    time.Duration
	ShortBreak       time.Duration
	LongBreak        time.Duration
	CyclesBeforeLong int
	PreAlert         time.Duration

	StrictMode           bool
	EmergencyCombination string
	EmergencyPINHash     string
	AllowEmergency       bool

	IdleEnabled bool

	OverlayOpacity float64
	Fullscreen     bool
	ActivitiesFile string
}

// DefaultSettings returns default settings for FocusGuard.
func DefaultSettings() Settings {
	return Settings{
		FocusDuration:        25 * time.Minute,
		ShortBreak:           5 * time.Minute,
		LongBreak:            15 * time.Minute,
		CyclesBeforeLong:     4,
		PreAlert:             time.Minute,
		StrictMode:           false,
		EmergencyCombination: "Ctrl+Alt+Shift+E",
		AllowEmergency:       true,
		IdleEnabled:          true,
		OverlayOpacity:       0.85,
		Fullscreen:           true,
	}
}

// TimeKeeperConfig converts settings to TimeKeeperConfig.
func (settings Settings) TimeKeeperConfig() TimeKeeperConfig {
	return TimeKeeperConfig{
		Focus:             settings.FocusDuration,
		ShortBreak:        settings.ShortBreak,
		LongBreak:         settings.LongBreak,
		CyclesBeforeLong:  settings.CyclesBeforeLong,
		PreAlert:          settings.PreAlert,
		AllowEmergency:    settings.AllowEmergency,
		IdleResetEnabled:  settings.IdleEnabled,
		IdleResetAfter:    5 * time.Minute,
		IdleCheckInterval: 5 * time.Second,
	}
}

// StrictConfig converts settings to StrictConfig.
func (settings Settings) StrictConfig() StrictConfig {
	return StrictConfig{
		Enabled:        settings.StrictMode,
		Combination:    settings.EmergencyCombination,
		PINHash:        settings.EmergencyPINHash,
		AllowEmergency: settings.AllowEmergency,
	}
}
