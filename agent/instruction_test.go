package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semkit/semkit/core"
)

func TestInstruction_Static(t *testing.T) {
	instr := NewInstructionFromText("You are a helper.")
	assert.True(t, instr.IsStatic())

	text, err := instr.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "You are a helper.", text)
}

func TestInstruction_FromFunc(t *testing.T) {
	instr := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		return "dynamic for " + rc.SessionID, nil
	})
	assert.False(t, instr.IsStatic())

	runCtx := newTestRunContext(make(chan core.Event, 1), nil)
	text, err := instr.Resolve(runCtx)
	require.NoError(t, err)
	assert.Equal(t, "dynamic for test-session", text)
}

type staticProvider struct{ text string }

func (p staticProvider) Instruction(*core.RunContext) (string, error) { return p.text, nil }

func TestInstruction_FromProvider(t *testing.T) {
	instr := NewInstructionFromProvider(staticProvider{text: "from provider"})

	text, err := instr.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "from provider", text)
}

func TestInstruction_ProviderError(t *testing.T) {
	instr := NewInstructionFromFunc(func(*core.RunContext) (string, error) {
		return "", errors.New("state unavailable")
	})

	_, err := instr.Resolve(nil)
	assert.Error(t, err)
}
