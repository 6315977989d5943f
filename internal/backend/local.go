package backend

import (
	"context"
	"fmt"

	"focusguard/internal/core/model"
	"focusguard/internal/core/timekeeper"
)

// AttemptStore persists bypass attempts.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, attempt model.BypassAttempt) error
}

// Local adapts an in-process TimeKeeper to Backend.
type Local struct {
	keeper *timekeeper.TimeKeeper
	store  AttemptStore
	onHide func()
}

// NewLocal wraps keeper. store may be nil, in which case attempts are discarded.
func NewLocal(keeper *timekeeper.TimeKeeper, store AttemptStore) *Local {
	return &Local{keeper: keeper, store: store}
}

// SetOnHide registers a handler invoked for HideLockdown.
func (local *Local) SetOnHide(handler func()) {
	local.onHide = handler
}

// PollState implements Source.
func (local *Local) PollState(ctx context.Context) (model.CycleState, error) {
	if err := ctx.Err(); err != nil {
		return model.CycleState{}, err
	}
	return local.keeper.State(), nil
}

// CurrentBreak implements Source.
func (local *Local) CurrentBreak(ctx context.Context) (*model.BreakSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return local.keeper.CurrentBreak(), nil
}

// Subscribe implements Source.
func (local *Local) Subscribe(buffer int) (<-chan model.Event, func()) {
	return local.keeper.Subscribe(buffer)
}

// SetEmergencyExit implements Commands.
func (local *Local) SetEmergencyExit(ctx context.Context, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	local.keeper.SetEmergencyExit(active)
	return nil
}

// HideLockdown implements Commands.
func (local *Local) HideLockdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if local.onHide != nil {
		local.onHide()
	}
	return nil
}

// RecordBypass implements Commands.
func (local *Local) RecordBypass(ctx context.Context, attempt model.BypassAttempt) error {
	if local.store == nil {
		return nil
	}
	if err := local.store.SaveAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("save bypass attempt: %w", err)
	}
	return nil
}
