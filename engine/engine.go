package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/semkit/semkit/artifact"
	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/logging"
	"github.com/semkit/semkit/memory"
	"github.com/semkit/semkit/session"
)

// Config defines tuning parameters for the Engine's operational behavior.
type Config struct {
	// MaxConcurrentRuns limits the number of agent runs that can execute
	// simultaneously. Set to 0 for unlimited.
	MaxConcurrentRuns int

	// EnableStreaming determines whether partial events are streamed in
	// real time or only final events are delivered.
	EnableStreaming bool

	// EventBufferSize sets the channel buffer size for event processing.
	EventBufferSize int

	// MaxModelCalls caps the number of model calls a single run may make,
	// guarding against runaway function-call loops. 0 means unlimited.
	MaxModelCalls int
}

// DefaultConfig provides conservative defaults: bounded concurrency,
// streaming enabled and a model call ceiling that stops runaway loops.
var DefaultConfig = Config{
	MaxConcurrentRuns: 10,
	EnableStreaming:   true,
	EventBufferSize:   100,
	MaxModelCalls:     25,
}

// Options configures an Engine instance using the functional options
// pattern. All stores have in-memory defaults so an engine works out of the
// box for development and tests.
type Options struct {
	Config Config

	// SessionStore manages session persistence and state.
	SessionStore core.SessionStore

	// ArtifactStore handles binary/blob artifact storage.
	ArtifactStore core.ArtifactStore

	// MemoryStore provides searchable memory and recall capabilities.
	MemoryStore core.MemoryStore

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Callbacks hooks lifecycle points (before/after agent, state changes).
	// Nil disables callbacks.
	Callbacks *CallbackManager
}

// Engine orchestrates agent execution and manages the complete lifecycle of
// conversations.
//
// Event flow:
//  1. User content is converted to an event and persisted
//  2. Agent execution produces a stream of events
//  3. Event actions (state changes, artifacts) are applied to the stores
//  4. Events are streamed to clients and persisted to session history
//  5. A resume signal tells the agent persistence caught up
//
// All public methods are safe for concurrent use.
type Engine struct {
	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	logger        logging.Logger
	callbacks     *CallbackManager

	config Config

	agents map[string]core.Agent
	mu     sync.RWMutex

	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex

	runSem chan struct{} // bounds concurrent runs, nil when unlimited
}

// New creates an Engine with in-memory store defaults, overridable through
// functional options.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:        DefaultConfig,
		SessionStore:  session.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var sem chan struct{}
	if opts.Config.MaxConcurrentRuns > 0 {
		sem = make(chan struct{}, opts.Config.MaxConcurrentRuns)
	}

	return &Engine{
		sessionStore:  opts.SessionStore,
		artifactStore: opts.ArtifactStore,
		memoryStore:   opts.MemoryStore,
		callbacks:     opts.Callbacks,
		config:        opts.Config,
		agents:        make(map[string]core.Agent),
		activeRuns:    make(map[string]context.CancelFunc),
		logger:        opts.Logger,
		runSem:        sem,
	}
}

// Register adds an agent to the registry, making it available for invocation
// by name. Registering a second agent with the same name replaces the first.
func (e *Engine) Register(a core.Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[a.Name()] = a
}

// GetAgent retrieves a registered agent by name.
func (e *Engine) GetAgent(name string) (core.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// Invoke executes an agent asynchronously and returns the run id plus
// channels for event streaming and terminal errors. The events channel
// closes when the agent completes; a terminal error, if any, arrives on the
// errors channel.
func (e *Engine) Invoke(
	ctx context.Context,
	sessionID string,
	agentName string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	agent, ok := e.GetAgent(agentName)
	if !ok {
		return "", nil, nil, fmt.Errorf("agent %s not found", agentName)
	}

	if e.runSem != nil {
		select {
		case e.runSem <- struct{}{}:
		case <-ctx.Done():
			return "", nil, nil, ctx.Err()
		}
	}

	sess, err := e.sessionStore.Get(sessionID)
	if err != nil {
		e.releaseRunSlot()
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	runID := core.NewID()

	eventsCh := make(chan core.Event, e.config.EventBufferSize)
	errorsCh := make(chan error, 2) // room for one agent error plus one pipeline error
	agentEmit := make(chan core.Event, e.config.EventBufferSize)
	resumeCh := make(chan struct{}, 1)

	runGoCtx, cancel := context.WithCancel(ctx)

	e.runsMu.Lock()
	e.activeRuns[runID] = cancel
	e.runsMu.Unlock()

	agentInfo := core.AgentInfo{Name: agent.Name(), Type: fmt.Sprintf("%T", agent)}

	runCtx := core.NewRunContext(
		runGoCtx,
		sessionID,
		runID,
		agentInfo,
		userContent,
		e.config.MaxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		e.sessionStore,
		e.artifactStore,
		e.memoryStore,
		e.logger,
	)

	// Persist user input as the starting event for this run
	userEvent := core.NewUserContentEvent(runID, &userContent)

	if err := e.sessionStore.AppendEvent(sessionID, userEvent); err != nil {
		cancel()
		e.runsMu.Lock()
		delete(e.activeRuns, runID)
		e.runsMu.Unlock()
		e.releaseRunSlot()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	agentDone := make(chan struct{})

	go func() {
		defer close(agentDone)
		defer func() {
			close(agentEmit)
			e.runsMu.Lock()
			delete(e.activeRuns, runID)
			e.runsMu.Unlock()
			e.releaseRunSlot()
		}()

		if err := e.runAgent(runCtx, agent); err != nil {
			select {
			case <-runGoCtx.Done():
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			}
		}
	}()

	go func() {
		defer func() {
			// The agent goroutine also sends on errorsCh; wait until it is
			// finished so a late error cannot hit a closed channel.
			<-agentDone
			close(eventsCh)
			close(errorsCh)
		}()

		e.processEvents(runGoCtx, sessionID, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// InvokeSync executes an agent and blocks until completion, returning all
// generated events in order. Partial streaming events are included so callers
// can inspect the full execution trace.
func (e *Engine) InvokeSync(
	ctx context.Context,
	sessionID string,
	agentName string,
	userContent core.Content,
) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := e.Invoke(ctx, sessionID, agentName, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			return runID, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				select {
				case err := <-errorsCh:
					return runID, events, err
				default:
					return runID, events, nil
				}
			}
			events = append(events, event)

		case err := <-errorsCh:
			if err != nil {
				return runID, events, err
			}
		}
	}
}

// StopRun forcibly terminates a specific run by its id.
func (e *Engine) StopRun(runID string) error {
	e.runsMu.Lock()
	cancel, exists := e.activeRuns[runID]
	e.runsMu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()
	return nil
}

// GetSession retrieves a point-in-time session snapshot by id.
func (e *Engine) GetSession(sessionID string) (*core.Session, error) {
	return e.sessionStore.Get(sessionID)
}

func (e *Engine) releaseRunSlot() {
	if e.runSem != nil {
		<-e.runSem
	}
}

func (e *Engine) runAgent(runCtx *core.RunContext, agent core.Agent) error {
	cbCtx := &CallbackContext{RunContext: runCtx, AgentName: agent.Name()}

	cbCtx.CallbackType = CallbackBeforeAgent
	if err := e.callbacks.ExecuteCallbacks(runCtx.Context, CallbackBeforeAgent, cbCtx); err != nil {
		return fmt.Errorf("before_agent callback failed: %w", err)
	}

	if err := agent.Start(runCtx); err != nil {
		return err
	}
	defer func() {
		if err := agent.Stop(runCtx); err != nil {
			e.logger.Warn("engine.agent.stop_failed", "agent", agent.Name(), "error", err.Error())
		}
	}()

	err := agent.Run(runCtx)
	if err != nil {
		cbCtx.CallbackType = CallbackOnError
		if cbErr := e.callbacks.ExecuteCallbacks(runCtx.Context, CallbackOnError, cbCtx); cbErr != nil {
			e.logger.Warn("engine.callback.on_error_failed", "agent", agent.Name(), "error", cbErr.Error())
		}
		return err
	}

	cbCtx.CallbackType = CallbackAfterAgent
	if err := e.callbacks.ExecuteCallbacks(runCtx.Context, CallbackAfterAgent, cbCtx); err != nil {
		return fmt.Errorf("after_agent callback failed: %w", err)
	}

	return nil
}

// processEvents drives the per-run pipeline: apply event actions, persist
// non-partial events, forward to the client and signal resumption so the
// agent can continue once persistence caught up.
func (e *Engine) processEvents(
	ctx context.Context,
	sessionID string,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-agentEmit:
			if !ok {
				// Agent closed emit channel - normal completion
				return
			}

			if err := e.applyEventActions(ctx, sessionID, ev); err != nil {
				select {
				case <-ctx.Done():
					return
				case errorsCh <- fmt.Errorf("failed to process event actions: %w", err):
				}
				return
			}

			// Persist non-partial events to session history
			if !ev.IsPartial() {
				if err := e.sessionStore.AppendEvent(sessionID, ev); err != nil {
					select {
					case <-ctx.Done():
						return
					case errorsCh <- fmt.Errorf("failed to append event to session: %w", err):
					}
					return
				}
			}

			// Forward event to client unless it is a suppressed partial
			if !ev.IsPartial() || e.config.EnableStreaming {
				select {
				case <-ctx.Done():
					return
				case eventsCh <- ev:
					e.logger.Debug("engine.event.delivered", "event_id", ev.ID, "session_id", sessionID)
				}
			}

			// Signal resumption for non-partial events
			if !ev.IsPartial() {
				select {
				case <-ctx.Done():
					return
				case resumeCh <- struct{}{}:
				default:
					// Channel full, skip signal (non-blocking)
				}
			}
		}
	}
}

// applyEventActions applies the side effects encoded in an event's Actions.
func (e *Engine) applyEventActions(ctx context.Context, sessionID string, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		cbCtx := &CallbackContext{Event: &ev, AgentName: ev.Author, CallbackType: CallbackOnStateChange}
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, cbCtx); err != nil {
			return fmt.Errorf("state change rejected: %w", err)
		}

		if err := e.sessionStore.ApplyDelta(sessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	if len(ev.Actions.ArtifactDelta) > 0 {
		// Artifacts are saved by the producing agent; the delta only records
		// which ids changed for observability.
		e.logger.Debug("engine.event.artifact_delta", "session_id", sessionID, "count", len(ev.Actions.ArtifactDelta))
	}

	if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
		e.logger.Debug("engine.event.escalate", "session_id", sessionID)
	}

	return nil
}
