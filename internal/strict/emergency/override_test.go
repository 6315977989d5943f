package emergency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type methodLog []string

func (log *methodLog) Record(_ string, method string) {
	*log = append(*log, method)
}

func TestOverrideCombinationSucceedsOnce(t *testing.T) {
	log := &methodLog{}
	released := 0
	override := NewOverride(log, OverrideConfig{SessionID: "s1", Allowed: true, OnSuccess: func() { released++ }})

	assert.True(t, override.TriggerCombination())
	assert.False(t, override.TriggerCombination())
	assert.True(t, override.Used())
	assert.Equal(t, 1, released)
	assert.Equal(t, methodLog{MethodOverrideSuccess}, *log)
}

func TestOverridePIN(t *testing.T) {
	hash, err := HashPIN("4821")
	require.NoError(t, err)
	log := &methodLog{}
	released := 0
	override := NewOverride(log, OverrideConfig{SessionID: "s1", Allowed: true, PINHash: hash, OnSuccess: func() { released++ }})

	assert.False(t, override.SubmitPIN("0000"))
	assert.False(t, override.Used())
	assert.Equal(t, 0, released)

	assert.True(t, override.SubmitPIN("4821"))
	assert.Equal(t, 1, released)
	assert.Equal(t, methodLog{MethodOverrideFailed, MethodOverrideSuccess}, *log)
}

func TestOverrideWithoutPINAlwaysFails(t *testing.T) {
	log := &methodLog{}
	override := NewOverride(log, OverrideConfig{SessionID: "s1", Allowed: true})

	assert.False(t, override.SubmitPIN("1234"))
	assert.False(t, override.SubmitPIN(""))
	assert.Equal(t, methodLog{MethodOverrideFailed, MethodOverrideFailed}, *log)
}

func TestOverrideNotAllowed(t *testing.T) {
	hash, err := HashPIN("4821")
	require.NoError(t, err)
	log := &methodLog{}
	override := NewOverride(log, OverrideConfig{SessionID: "s1", PINHash: hash, OnSuccess: func() { t.Fatal("released") }})

	assert.False(t, override.TriggerCombination())
	assert.False(t, override.SubmitPIN("4821"))
	assert.False(t, override.Used())
	assert.Equal(t, methodLog{MethodOverrideFailed, MethodOverrideFailed}, *log)
}
