package flow

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/memory"
	"github.com/semkit/semkit/model"
)

func TestInstructionsProcessor_RendersSessionState(t *testing.T) {
	agent := &fakeFlowAgent{
		name:         "tutor",
		instructions: "You teach {{.subject}} to {{.student | title}}.",
	}

	runCtx, _ := newFlowRunContext(t, "hi")
	runCtx.Session.SetState("subject", "algebra")
	runCtx.Session.SetState("student", "ada")

	req := new(model.Request)
	p := NewInstructionsProcessor()

	require.NoError(t, p.ProcessRequest(runCtx, req, agent))
	assert.Equal(t, "You teach algebra to Ada.", req.Instructions)
}

func TestInstructionsProcessor_PlainInstructions(t *testing.T) {
	agent := &fakeFlowAgent{name: "plain", instructions: "Answer briefly."}

	runCtx, _ := newFlowRunContext(t, "hi")
	req := new(model.Request)

	require.NoError(t, NewInstructionsProcessor().ProcessRequest(runCtx, req, agent))
	assert.Equal(t, "Answer briefly.", req.Instructions)
}

func TestInstructionsProcessor_ResolveError(t *testing.T) {
	agent := &fakeFlowAgent{
		name:            "broken",
		instructionsErr: errors.New("provider unavailable"),
	}

	runCtx, _ := newFlowRunContext(t, "hi")
	req := new(model.Request)

	err := NewInstructionsProcessor().ProcessRequest(runCtx, req, agent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
}

func TestContentsProcessor_FullHistory(t *testing.T) {
	runCtx, _ := newFlowRunContext(t, "first question")
	reply := core.NewMessageEvent("bot", "first answer")
	reply.RunID = "run-1"
	runCtx.Session.AddEvent(reply)
	runCtx.Session.AddEvent(core.NewUserMessageEvent("run-1", "second question"))

	agent := &fakeFlowAgent{name: "bot", maxHistory: 20}
	req := new(model.Request)

	require.NoError(t, NewContentsProcessor().ProcessRequest(runCtx, req, agent))
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "first answer", req.Contents[1].Text())
	assert.Equal(t, "second question", req.Contents[2].Text())
}

func TestContentsProcessor_TrimsToWindow(t *testing.T) {
	runCtx, _ := newFlowRunContext(t, "turn 0")
	for i := 1; i <= 5; i++ {
		runCtx.Session.AddEvent(core.NewUserMessageEvent("run-1", fmt.Sprintf("turn %d", i)))
	}

	agent := &fakeFlowAgent{name: "bot", maxHistory: 2}
	req := new(model.Request)

	require.NoError(t, NewContentsProcessor().ProcessRequest(runCtx, req, agent))
	require.Len(t, req.Contents, 2)
	assert.Equal(t, "turn 4", req.Contents[0].Text())
	assert.Equal(t, "turn 5", req.Contents[1].Text())
}

func TestContentsProcessor_SkipsPartialEvents(t *testing.T) {
	runCtx, _ := newFlowRunContext(t, "hello")

	partial := true
	chunk := core.NewMessageEvent("bot", "hel")
	chunk.Partial = &partial
	runCtx.Session.AddEvent(chunk)

	agent := &fakeFlowAgent{name: "bot", maxHistory: 20}
	req := new(model.Request)

	require.NoError(t, NewContentsProcessor().ProcessRequest(runCtx, req, agent))
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "hello", req.Contents[0].Text())
}

func TestContentsProcessor_NilSession(t *testing.T) {
	runCtx, _ := newFlowRunContext(t, "hi")
	runCtx.Session = nil

	agent := &fakeFlowAgent{name: "bot", maxHistory: 20}
	req := new(model.Request)

	require.NoError(t, NewContentsProcessor().ProcessRequest(runCtx, req, agent))
	assert.Empty(t, req.Contents)
}

func TestMemoryRecallProcessor_InjectsMatches(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Store("flow-session", "The user prefers vegetarian food", nil))
	require.NoError(t, store.Store("flow-session", "The user travels to Rome every summer", nil))
	require.NoError(t, store.Store("flow-session", "Completely unrelated note about taxes", nil))

	runCtx, _ := newFlowRunContext(t, "recommend vegetarian food in Rome")
	runCtx.MemoryStore = store

	agent := &fakeFlowAgent{name: "bot", memoryRecall: 5}
	req := &model.Request{Instructions: "Base instructions."}

	require.NoError(t, NewMemoryRecallProcessor().ProcessRequest(runCtx, req, agent))

	assert.True(t, strings.HasPrefix(req.Instructions, "Base instructions."))
	assert.Contains(t, req.Instructions, "Relevant memories from previous conversations:")
	assert.Contains(t, req.Instructions, "- The user prefers vegetarian food")
	assert.Contains(t, req.Instructions, "- The user travels to Rome every summer")
	assert.NotContains(t, req.Instructions, "taxes")
}

func TestMemoryRecallProcessor_RespectsLimit(t *testing.T) {
	store := memory.NewInMemoryStore()
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Store("flow-session", fmt.Sprintf("fact %d about coffee", i), nil))
	}

	runCtx, _ := newFlowRunContext(t, "tell me about coffee")
	runCtx.MemoryStore = store

	agent := &fakeFlowAgent{name: "bot", memoryRecall: 2}
	req := new(model.Request)

	require.NoError(t, NewMemoryRecallProcessor().ProcessRequest(runCtx, req, agent))
	assert.Equal(t, 2, strings.Count(req.Instructions, "\n- "))
}

func TestMemoryRecallProcessor_DisabledByZeroLimit(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Store("flow-session", "stored fact", nil))

	runCtx, _ := newFlowRunContext(t, "stored fact")
	runCtx.MemoryStore = store

	agent := &fakeFlowAgent{name: "bot", memoryRecall: 0}
	req := &model.Request{Instructions: "unchanged"}

	require.NoError(t, NewMemoryRecallProcessor().ProcessRequest(runCtx, req, agent))
	assert.Equal(t, "unchanged", req.Instructions)
}

func TestMemoryRecallProcessor_NoMatchesLeavesInstructions(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Store("flow-session", "note about gardening", nil))

	runCtx, _ := newFlowRunContext(t, "quantum physics")
	runCtx.MemoryStore = store

	agent := &fakeFlowAgent{name: "bot", memoryRecall: 3}
	req := &model.Request{Instructions: "unchanged"}

	require.NoError(t, NewMemoryRecallProcessor().ProcessRequest(runCtx, req, agent))
	assert.Equal(t, "unchanged", req.Instructions)
}

func TestLastUserText(t *testing.T) {
	t.Run("latest user message wins", func(t *testing.T) {
		runCtx, _ := newFlowRunContext(t, "old input")
		reply := core.NewMessageEvent("bot", "an answer")
		reply.RunID = "run-1"
		runCtx.Session.AddEvent(reply)
		runCtx.Session.AddEvent(core.NewUserMessageEvent("run-1", "newest question"))

		assert.Equal(t, "newest question", lastUserText(runCtx))
	})

	t.Run("falls back to run input", func(t *testing.T) {
		runCtx, _ := newFlowRunContext(t, "the input")
		runCtx.Session = core.NewSession("empty")

		assert.Equal(t, "the input", lastUserText(runCtx))
	})
}
