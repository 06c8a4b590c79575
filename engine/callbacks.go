package engine

import (
	"context"

	"github.com/semkit/semkit/core"
)

// CallbackType identifies the lifecycle point a callback hooks into.
type CallbackType string

const (
	// CallbackBeforeAgent is triggered before an agent begins execution.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent is triggered after an agent completes execution.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnError is triggered when an agent run fails.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnStateChange is triggered when an event carries a state delta.
	CallbackOnStateChange CallbackType = "on_state_change"
)

// CallbackContext carries the information a callback needs to inspect the
// execution state.
type CallbackContext struct {
	// RunContext provides access to the full execution scope, including
	// session data, stores and agent information.
	RunContext *core.RunContext

	// Event is the current event being processed. Nil for callbacks that
	// do not operate on specific events.
	Event *core.Event

	// AgentName identifies the agent associated with this callback.
	AgentName string

	// CallbackType indicates which lifecycle point triggered this
	// execution, letting shared implementations branch on phase.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback is an execution lifecycle hook. Implementations should be fast
// (they run synchronously) and must not panic. Returning an error terminates
// the associated operation.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a plain function as a Callback.
//
// Example:
//
//	logging := engine.NewFunctionCallback(
//	    engine.CallbackBeforeAgent,
//	    func(ctx context.Context, cc *engine.CallbackContext) error {
//	        log.Printf("starting agent: %s", cc.AgentName)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a function-based callback for the given type.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle hooks to registered callbacks. Multiple
// callbacks may be registered per type; they run in registration order and
// the first error stops execution.
//
// Registration is not synchronized; complete it before starting runs.
// Execution after that is safe for concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its declared type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs all callbacks registered for the given type in
// order, returning the first error encountered.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil
	}

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// StateValidationCallback enforces invariants on session state changes. The
// validator receives only the delta; returning an error rejects the
// modification and terminates the run.
type StateValidationCallback struct {
	validator func(stateDelta map[string]any) error
}

// NewStateValidationCallback creates a state validation callback.
func NewStateValidationCallback(validator func(stateDelta map[string]any) error) *StateValidationCallback {
	return &StateValidationCallback{
		validator: validator,
	}
}

// Type returns the callback type (always CallbackOnStateChange).
func (c *StateValidationCallback) Type() CallbackType {
	return CallbackOnStateChange
}

// Execute validates state changes carried by the event.
func (c *StateValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil && callbackCtx.Event != nil {
		if callbackCtx.Event.Actions.StateDelta != nil {
			return c.validator(callbackCtx.Event.Actions.StateDelta)
		}
	}
	return nil
}
