package model

import "time"

// TimeKeeperConfig contains runtime settings for the local cycle state machine.
type TimeKeeperConfig struct {
	Focus            time.Duration
	ShortBreak       time.Duration
	LongBreak        time.Duration
	CyclesBeforeLong int
	PreAlert         time.Duration
	AllowEmergency   bool

	IdleResetEnabled  bool
	IdleResetAfter    time.Duration
	IdleCheckInterval time.Duration
}

// StrictConfig describes how breaks are locked down.
type StrictConfig struct {
	Enabled        bool
	Combination    string
	PINHash        string
	AllowEmergency bool
}
