package core

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/semkit/semkit/logging"
)

// RunContext is the mutable, per-run execution scope handed to an Agent's Run
// method. It aggregates:
//   - the ambient cancellation Context
//   - identifiers (SessionID, RunID, Agent info)
//   - the input user Content
//   - the emit / resume coordination channels
//   - backing stores (session, artifact, memory)
//   - a working Session snapshot plus pending StateDelta / Artifacts
//   - a Branch label for hierarchical flows
//
// State written through SetState accumulates in StateDelta until EmitEvent or
// CommitStateDelta applies it. Clone produces an isolated delta/artifact
// buffer while sharing the underlying stores. The delta buffers are
// mutex-guarded because plugin functions may stage state from parallel
// executor goroutines; access them through the methods, not the fields, when
// the run is live.
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	Agent            AgentInfo
	UserContent      Content
	MaxModelCalls    int
	Emit             chan<- Event
	Resume           <-chan struct{}
	SessionStore     SessionStore
	ArtifactStore    ArtifactStore
	MemoryStore      MemoryStore
	Limiter          *ModelLimiter
	Session          *Session
	StateDelta       map[string]any
	Artifacts        []string
	Branch           string

	mu sync.Mutex // guards StateDelta and Artifacts

	*loggerAdapter
}

// NewRunContext constructs a RunContext with empty delta buffers.
func NewRunContext(
	ctx context.Context,
	sessionID, runID string,
	agent AgentInfo,
	userContent Content,
	maxModelCalls int,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	artifactStore ArtifactStore,
	memoryStore MemoryStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		MaxModelCalls: maxModelCalls,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		ArtifactStore: artifactStore,
		MemoryStore:   memoryStore,
		Limiter:       NewModelLimiter(maxModelCalls),
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error, if any, of the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged delta value if present, else the session value.
func (rc *RunContext) GetState(k string) (any, bool) {
	rc.mu.Lock()
	v, ok := rc.StateDelta[k]
	rc.mu.Unlock()
	if ok {
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.GetState(k)
	}

	return nil, false
}

// SetState stages a state mutation in the delta buffer.
func (rc *RunContext) SetState(k string, v any) {
	rc.mu.Lock()
	rc.StateDelta[k] = v
	rc.mu.Unlock()
}

// ApplyStateDelta merges all pairs from d into the staged delta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	rc.mu.Lock()
	maps.Copy(rc.StateDelta, d)
	rc.mu.Unlock()
}

// AddArtifact stages an artifact id to attach to the next emitted event.
func (rc *RunContext) AddArtifact(id string) {
	rc.mu.Lock()
	rc.Artifacts = append(rc.Artifacts, id)
	rc.mu.Unlock()
}

// SaveArtifact stores bytes in the ArtifactStore and stages the id for the
// next emitted event.
func (rc *RunContext) SaveArtifact(id string, data []byte) error {
	if rc.ArtifactStore == nil {
		return fmt.Errorf("artifact store not configured")
	}

	if err := rc.ArtifactStore.Save(rc.SessionID, id, data); err != nil {
		return err
	}

	rc.AddArtifact(id)

	return nil
}

// GetArtifact retrieves previously saved artifact bytes.
func (rc *RunContext) GetArtifact(id string) ([]byte, error) {
	if rc.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}

	return rc.ArtifactStore.Get(rc.SessionID, id)
}

// ListArtifacts returns artifact IDs stored for the session.
func (rc *RunContext) ListArtifacts() ([]string, error) {
	if rc.ArtifactStore == nil {
		return []string{}, nil
	}

	return rc.ArtifactStore.List(rc.SessionID)
}

// SearchMemory queries the MemoryStore for relevant content.
func (rc *RunContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if rc.MemoryStore == nil {
		return []SearchResult{}, nil
	}

	return rc.MemoryStore.Search(rc.SessionID, q, limit)
}

// StoreMemory appends content plus metadata to the MemoryStore.
func (rc *RunContext) StoreMemory(content string, md map[string]any) error {
	if rc.MemoryStore == nil {
		return fmt.Errorf("memory store not configured")
	}
	return rc.MemoryStore.Store(rc.SessionID, content, md)
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := rc.SessionStore.Get(rc.SessionID)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// CommitStateDelta persists the accumulated delta then clears the buffer.
func (rc *RunContext) CommitStateDelta() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if len(rc.StateDelta) == 0 {
		return nil
	}

	if rc.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	if err := rc.SessionStore.ApplyDelta(rc.SessionID, rc.StateDelta); err != nil {
		return err
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetEvents()
}

// GetAgentName returns the logical agent name for this run.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// GetAgentType returns the categorization label for the agent.
func (rc *RunContext) GetAgentType() string { return rc.Agent.Type }

// Clone returns a shallow copy with deep-copied delta and artifact buffers.
func (rc *RunContext) Clone() *RunContext {
	c := &RunContext{
		Context:       rc.Context,
		SessionID:     rc.SessionID,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		MaxModelCalls: rc.MaxModelCalls,
		Emit:          rc.Emit,
		Resume:        rc.Resume,
		SessionStore:  rc.SessionStore,
		ArtifactStore: rc.ArtifactStore,
		MemoryStore:   rc.MemoryStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Branch:        rc.Branch,
		loggerAdapter: rc.loggerAdapter,
	}

	rc.mu.Lock()
	maps.Copy(c.StateDelta, rc.StateDelta)
	c.Artifacts = append(c.Artifacts, rc.Artifacts...)
	rc.mu.Unlock()

	return c
}

// WithBranch clones the context and sets the Branch label.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	c.Branch = b
	return c
}

// NewChildContext derives a context for a nested execution path with fresh
// delta buffers and its own emit/resume channels.
func (rc *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	finalBranch := rc.Branch
	if branch != "" {
		finalBranch = branch
	}

	return &RunContext{
		Context:       rc.Context,
		SessionID:     rc.SessionID,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		MaxModelCalls: rc.MaxModelCalls,
		Emit:          emit,
		Resume:        resume,
		SessionStore:  rc.SessionStore,
		ArtifactStore: rc.ArtifactStore,
		MemoryStore:   rc.MemoryStore,
		Limiter:       rc.Limiter,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Branch:        finalBranch,
		loggerAdapter: rc.loggerAdapter,
	}
}

// EmitEvent merges pending StateDelta / Artifacts into the event's actions
// and emits it, honoring context cancellation.
func (rc *RunContext) EmitEvent(ev Event) error {
	// Snapshot and reset the buffers under the lock, then send without
	// holding it so concurrent function calls can keep staging state.
	rc.mu.Lock()
	delta := rc.StateDelta
	artifacts := rc.Artifacts
	rc.StateDelta = map[string]any{}
	rc.Artifacts = []string{}
	rc.mu.Unlock()

	if len(delta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, delta)
	}

	if len(artifacts) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for _, id := range artifacts {
			ev.Actions.ArtifactDelta[id] = 1
		}
	}

	select {
	case <-rc.Context.Done():
		// Restore the snapshot so the staged delta is not lost; writes
		// made while the send was blocked take precedence.
		rc.mu.Lock()
		maps.Copy(delta, rc.StateDelta)
		rc.StateDelta = delta
		rc.Artifacts = append(artifacts, rc.Artifacts...)
		rc.mu.Unlock()
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	return nil
}

// WaitForResume blocks until the engine signals persistence caught up, or the
// context is cancelled.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}
