package backend

import (
	"encoding/json"

	"focusguard/internal/core/model"
)

// Methods understood by Server.
const (
	MethodPollState        = "poll_state"
	MethodCurrentBreak     = "get_current_break"
	MethodSetEmergencyExit = "set_emergency_exit"
	MethodHideLockdown     = "hide_lockdown"
	MethodRecordBypass     = "record_bypass"
)

type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// frame is a server message: a reply when ID is set, otherwise a pushed event.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  *model.Event    `json:"event,omitempty"`
}

type emergencyExitParams struct {
	Active bool `json:"active"`
}
