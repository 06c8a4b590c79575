package core

import (
	"context"
	"fmt"

	"github.com/semkit/semkit/logging"
)

// FunctionContext is the constrained surface handed to plugin functions
// invoked by an agent. It accumulates EventActions (state deltas, escalation
// signals, artifact diffs) without mutating the session until the flow
// finalizes the function response event.
type FunctionContext struct {
	runCtx         *RunContext
	functionCallID string
	agentInfo      AgentInfo
	eventActions   EventActions
	valid          bool

	*loggerAdapter
}

// NewFunctionContext binds a function context to a parent RunContext and a
// unique function call id.
func NewFunctionContext(runCtx *RunContext, functionCallID string) *FunctionContext {
	return &FunctionContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		agentInfo:      runCtx.Agent,
		eventActions:   EventActions{},
		valid:          true,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context of the enclosing run.
func (fc *FunctionContext) Context() context.Context { return fc.runCtx.Context }

// SessionID returns the session the function executes in.
func (fc *FunctionContext) SessionID() string { return fc.runCtx.SessionID }

// RunID returns the run the function executes in.
func (fc *FunctionContext) RunID() string { return fc.runCtx.RunID }

// Logger returns the logger bound to the invocation.
func (fc *FunctionContext) Logger() logging.Logger { return fc.loggerAdapter.Logger() }

// FunctionCallID returns the id of the originating function call.
func (fc *FunctionContext) FunctionCallID() string { return fc.functionCallID }

// AgentName returns the name of the calling agent.
func (fc *FunctionContext) AgentName() string { return fc.agentInfo.Name }

// AgentType returns the type label of the calling agent.
func (fc *FunctionContext) AgentType() string { return fc.agentInfo.Type }

// GetState retrieves the state value for the given key.
func (fc *FunctionContext) GetState(k string) (any, bool) {
	return fc.runCtx.GetState(k)
}

// SetState records a state mutation both on the run context (for immediate
// visibility) and in the local actions delta for emission.
func (fc *FunctionContext) SetState(k string, v any) {
	fc.runCtx.SetState(k, v)
	if fc.eventActions.StateDelta == nil {
		fc.eventActions.StateDelta = map[string]any{}
	}

	fc.eventActions.StateDelta[k] = v
}

// Actions returns the accumulated event actions.
func (fc *FunctionContext) Actions() *EventActions { return &fc.eventActions }

// Escalate requests escalation, e.g. to stop a surrounding loop.
func (fc *FunctionContext) Escalate() {
	b := true
	if fc.eventActions.Escalate == nil {
		fc.eventActions.Escalate = &b
	}

	fc.LogInfo("function.escalate.request", "agent", fc.AgentName(), "function_call_id", fc.functionCallID)
}

// SaveArtifact persists artifact bytes and records the delta for emission.
func (fc *FunctionContext) SaveArtifact(id string, data []byte) error {
	if fc.runCtx.ArtifactStore == nil {
		return fmt.Errorf("artifact store not configured")
	}

	if err := fc.runCtx.ArtifactStore.Save(fc.SessionID(), id, data); err != nil {
		return err
	}

	if fc.eventActions.ArtifactDelta == nil {
		fc.eventActions.ArtifactDelta = map[string]int{}
	}

	fc.eventActions.ArtifactDelta[id] = len(data)

	return nil
}

// LoadArtifact retrieves a persisted artifact by id.
func (fc *FunctionContext) LoadArtifact(id string) ([]byte, error) {
	if fc.runCtx.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}

	return fc.runCtx.ArtifactStore.Get(fc.SessionID(), id)
}

// ListArtifacts returns artifact IDs stored for the session.
func (fc *FunctionContext) ListArtifacts() ([]string, error) {
	if fc.runCtx.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}

	return fc.runCtx.ArtifactStore.List(fc.SessionID())
}

// SearchMemory performs a recall query against the configured MemoryStore.
func (fc *FunctionContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if fc.runCtx.MemoryStore == nil {
		return nil, fmt.Errorf("memory store not configured")
	}

	return fc.runCtx.MemoryStore.Search(fc.SessionID(), q, limit)
}

// StoreMemory appends new content to the session's memory with metadata.
func (fc *FunctionContext) StoreMemory(content string, md map[string]any) error {
	if fc.runCtx.MemoryStore == nil {
		return fmt.Errorf("memory store not configured")
	}

	return fc.runCtx.MemoryStore.Store(fc.SessionID(), content, md)
}

// GetSessionHistory returns the filtered conversation history.
func (fc *FunctionContext) GetSessionHistory() []Event {
	if fc.runCtx.Session == nil {
		return nil
	}

	return fc.runCtx.Session.GetConversationHistory()
}

// Validate performs a structural sanity check of the context.
func (fc *FunctionContext) Validate() error {
	if !fc.valid || fc.runCtx == nil || fc.runCtx.SessionID == "" || fc.functionCallID == "" {
		return fmt.Errorf("invalid FunctionContext")
	}

	return nil
}

// InternalRunContext returns the enclosing run context.
func (fc *FunctionContext) InternalRunContext() *RunContext { return fc.runCtx }

// InternalApplyActions merges accumulated actions into the provided event.
// Used by the flow when finalizing function response events.
func (fc *FunctionContext) InternalApplyActions(ev *Event) {
	if len(fc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range fc.eventActions.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}

	if len(fc.eventActions.ArtifactDelta) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for k, v := range fc.eventActions.ArtifactDelta {
			ev.Actions.ArtifactDelta[k] = v
		}
	}

	if fc.eventActions.Escalate != nil {
		ev.Actions.Escalate = fc.eventActions.Escalate

		fc.LogInfo("function.escalate.applied", "agent", fc.AgentName(), "function_call_id", fc.functionCallID)
	}
}
