// Package flow drives the request -> model -> function-call cycle for chat
// agents. A flow assembles the model request from the session, streams model
// output as events and executes any requested plugin functions before handing
// control back to the model.
package flow

import (
	"time"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/model"
	"github.com/semkit/semkit/plugin"
)

// Flow executes an agent turn and returns a channel of events representing
// execution progress. The channel closes when the turn completes or an
// unrecoverable error occurs.
type Flow interface {
	Execute(runCtx *core.RunContext) (<-chan core.Event, error)
}

// FlowAgent is the view of an agent the flow needs. It decouples the flow
// from the concrete agent implementation.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetModel returns the language model instance.
	GetModel() model.Model

	// ResolveInstructions resolves the system instructions for this run.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetFunctions returns all plugin functions registered on the agent,
	// keyed by function name.
	GetFunctions() map[string]*plugin.Function

	// IsFunctionCallingEnabled reports whether function declarations are
	// sent to the model.
	IsFunctionCallingEnabled() bool

	// IsStreamingEnabled reports whether partial model chunks are emitted.
	IsStreamingEnabled() bool

	// GetOutputKey returns the session state key the final response is
	// saved under, or "".
	GetOutputKey() string

	// MaxHistoryMessages returns the conversation history window size.
	MaxHistoryMessages() int

	// MemoryRecallLimit returns how many memory search results to inject
	// into the request, 0 to disable recall.
	MemoryRecallLimit() int

	// FunctionTimeout returns the per-call execution deadline for plugin
	// functions. 0 disables the deadline.
	FunctionTimeout() time.Duration
}

// RequestProcessor mutates the model request before execution.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before the model call.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor inspects each model response chunk after it arrives.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse handles a model response chunk.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
