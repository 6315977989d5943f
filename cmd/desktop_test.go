package main

import (
	"testing"

	"focusguard/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyFromSettings(t *testing.T) {
	settings := model.DefaultSettings()
	settings.StrictMode = true
	settings.EmergencyPINHash = "hash"

	policy := policyFromSettings(settings, nil)
	assert.True(t, policy.Strict)
	assert.True(t, policy.AllowEmergency)
	assert.Equal(t, "hash", policy.PINHash)
	require.NotNil(t, policy.Combination)
	assert.Equal(t, "Ctrl+Alt+Shift+E", policy.Combination.String())
}

func TestPolicyDropsReservedCombination(t *testing.T) {
	settings := model.DefaultSettings()
	settings.EmergencyCombination = "Alt+Tab"

	policy := policyFromSettings(settings, nil)
	assert.Nil(t, policy.Combination)
}

func TestLoadActivitiesFallsBack(t *testing.T) {
	activities := loadActivities(t.TempDir(), nil)
	assert.NotEmpty(t, activities)
}

type fakeQuitGate struct {
	allow    bool
	requests int
}

func (gate *fakeQuitGate) RequestQuit() bool {
	gate.requests++
	return gate.allow
}

func TestGuardedQuit(t *testing.T) {
	quits := 0
	gate := &fakeQuitGate{}
	quit := guardedQuit(gate, func() { quits++ })

	quit()
	assert.Equal(t, 1, gate.requests)
	assert.Zero(t, quits)

	gate.allow = true
	quit()
	assert.Equal(t, 2, gate.requests)
	assert.Equal(t, 1, quits)
}
