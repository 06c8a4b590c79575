// Package semkit provides a high-level facade over the core Engine and store
// abstractions (sessions, artifacts, memory, logging) for building agents on
// OpenAI-compatible chat models. Most applications interact with this package
// by:
//  1. Creating a Kernel via New() (optionally overriding default in-memory stores)
//  2. Registering one or more agents (chat, sequential, parallel, loop, custom)
//  3. Invoking agents asynchronously (Invoke) or synchronously (InvokeSync)
//
// The facade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply durable store
// implementations and a structured logger.
package semkit

import (
	"context"

	"github.com/semkit/semkit/artifact"
	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/engine"
	"github.com/semkit/semkit/logging"
	"github.com/semkit/semkit/memory"
	"github.com/semkit/semkit/session"
)

// Options configures the Kernel instance.
type Options struct {
	// EngineConfig tunes concurrency, streaming, buffering and the model
	// call ceiling.
	EngineConfig engine.Config

	// Stores (default to in-memory implementations if not provided)
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Callbacks hooks engine lifecycle points. Nil disables callbacks.
	Callbacks *engine.CallbackManager
}

// Kernel is the high-level facade aggregating the underlying engine and
// stores.
type Kernel struct {
	opts   Options
	engine *engine.Engine
}

// New creates a Kernel with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Kernel {
	opts := Options{
		EngineConfig:  engine.DefaultConfig,
		SessionStore:  session.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.SessionStore = opts.SessionStore
		o.ArtifactStore = opts.ArtifactStore
		o.MemoryStore = opts.MemoryStore
		o.Logger = opts.Logger
		o.Callbacks = opts.Callbacks
	})

	return &Kernel{opts: opts, engine: eng}
}

// RegisterAgent adds an agent to the underlying engine registry.
func (k *Kernel) RegisterAgent(a core.Agent) { k.engine.Register(a) }

// Invoke starts an asynchronous run returning the run id plus event and
// error channels.
func (k *Kernel) Invoke(
	ctx context.Context,
	sessionID string,
	agentName string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	return k.engine.Invoke(ctx, sessionID, agentName, userContent)
}

// InvokeSync executes an agent and blocks until completion, returning the
// run id and all collected events.
func (k *Kernel) InvokeSync(
	ctx context.Context,
	sessionID string,
	agentName string,
	userContent core.Content,
) (string, []core.Event, error) {
	return k.engine.InvokeSync(ctx, sessionID, agentName, userContent)
}

// StopRun cancels a running invocation by id.
func (k *Kernel) StopRun(runID string) error { return k.engine.StopRun(runID) }

// GetSession returns a point-in-time snapshot of a session.
func (k *Kernel) GetSession(sessionID string) (*core.Session, error) {
	return k.engine.GetSession(sessionID)
}

// Memory exposes the configured memory store for direct seeding and search,
// as the examples do when preloading user preferences.
func (k *Kernel) Memory() core.MemoryStore { return k.opts.MemoryStore }

// Artifacts exposes the configured artifact store.
func (k *Kernel) Artifacts() core.ArtifactStore { return k.opts.ArtifactStore }
