// Package backend is the boundary to the authoritative cycle state.
//
// The reconciler and the strict controller only ever see Source and
// Commands; Local serves them from an in-process timekeeper and Client
// serves them from a remote process over a websocket.
package backend

import (
	"context"
	"errors"

	"focusguard/internal/core/model"
)

// ErrClosed is returned once the backend connection has ended.
var ErrClosed = errors.New("backend closed")

// Source provides the authoritative cycle state.
type Source interface {
	PollState(ctx context.Context) (model.CycleState, error)
	// CurrentBreak returns nil when no break is active.
	CurrentBreak(ctx context.Context) (*model.BreakSession, error)
	// Subscribe returns an event channel and a function that releases it.
	// The channel is closed after release or when the backend goes away.
	Subscribe(buffer int) (<-chan model.Event, func())
}

// Commands are the actions the client asks the backend to perform.
type Commands interface {
	SetEmergencyExit(ctx context.Context, active bool) error
	HideLockdown(ctx context.Context) error
	RecordBypass(ctx context.Context, attempt model.BypassAttempt) error
}

// Backend is both halves of the interface.
type Backend interface {
	Source
	Commands
}
