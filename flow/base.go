package flow

import (
	"fmt"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/model"
)

// BaseFlow is a single-agent flow implementing a request -> model ->
// (optional function loop) cycle with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	executor           FunctionExecutor
}

// NewBaseFlow creates a flow with no processors registered.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:              agent,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
		executor:           NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true}),
	}
}

// AddRequestProcessor appends a request processor; registration order defines
// execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed after each model
// chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// SetFunctionExecutor replaces the default function executor.
func (f *BaseFlow) SetFunctionExecutor(executor FunctionExecutor) {
	f.executor = executor
}

// Execute launches the flow asynchronously and returns a channel of events.
// The channel is closed when a final response is emitted or an unrecoverable
// error occurs. Callers should range over the returned channel.
func (f *BaseFlow) Execute(runCtx *core.RunContext) (<-chan core.Event, error) {
	eventChan := make(chan core.Event, 100)

	go func() {
		defer close(eventChan)

		for {
			last := f.runOnce(runCtx, eventChan)
			if last == nil {
				break
			}
			// A function response means the model gets another turn
			if len(last.GetFunctionResponses()) > 0 {
				continue
			}
			if last.IsPartial() {
				runCtx.LogWarn("flow.unexpected_partial_tail", "agent", f.agent.GetName())
				break
			}
			if last.IsFinalResponse() {
				break
			}
		}
	}()

	return eventChan, nil
}

// emitError converts an internal error into a system event.
func (f *BaseFlow) emitError(eventChan chan<- core.Event, runCtx *core.RunContext, err error) {
	ev := core.NewEvent(runCtx.RunID, "system")
	msg := err.Error()
	ev.ErrorMessage = &msg
	eventChan <- ev
}

// runOnce performs one model turn including any function executions and
// returns the last emitted event. A nil return signals termination.
func (f *BaseFlow) runOnce(runCtx *core.RunContext, eventChan chan<- core.Event) *core.Event {
	// Refresh the session snapshot so request processors see the latest
	// conversation, including function responses from the previous turn.
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			runCtx.LogWarn("flow.session.refresh_failed", "error", err.Error())
		}
	}

	req := new(model.Request)

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			f.emitError(eventChan, runCtx, fmt.Errorf("request processor %s failed: %w", processor.Name(), err))
			return nil
		}
	}

	if f.agent.IsFunctionCallingEnabled() {
		functions := f.agent.GetFunctions()
		if len(functions) > 0 {
			definitions := make([]model.ToolDefinition, 0, len(functions))
			for _, fn := range functions {
				definitions = append(definitions, model.ToolDefinition{
					Type: "function",
					Function: model.FunctionDefinition{
						Name:        fn.Name(),
						Description: fn.Description(),
						Parameters:  fn.Parameters(),
					},
				})
			}
			req.Tools = definitions
		}
	}

	req.Stream = f.agent.IsStreamingEnabled()

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(); err != nil {
			f.emitError(eventChan, runCtx, err)
			return nil
		}
	}

	respCh, errCh := f.agent.GetModel().Generate(runCtx.Context, *req)

	var lastEvent *core.Event

loop:
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				break loop
			}

			for _, processor := range f.responseProcessors {
				if err := processor.ProcessResponse(runCtx, &resp, f.agent); err != nil {
					f.emitError(eventChan, runCtx, fmt.Errorf("response processor %s failed: %w", processor.Name(), err))
					return nil
				}
			}

			ev := core.NewEvent(runCtx.RunID, f.agent.GetName())
			ev.Content = &resp.Content
			ev.Partial = &resp.Partial

			// A final assistant response with no pending function calls
			// completes the turn and is persisted with the output key.
			if !resp.Partial && len(ev.GetFunctionCalls()) == 0 {
				complete := true
				ev.TurnComplete = &complete

				if key := f.agent.GetOutputKey(); key != "" {
					if ev.Actions.StateDelta == nil {
						ev.Actions.StateDelta = map[string]any{}
					}
					ev.Actions.StateDelta[key] = resp.Content.Text()
				}
			}

			lastEvent = &ev

			eventChan <- ev

			// Wait for session persistence (engine sends resume after append)
			if !ev.IsPartial() && runCtx.Resume != nil {
				if err := runCtx.WaitForResume(); err != nil {
					return lastEvent
				}
			}

			if fnCalls := ev.GetFunctionCalls(); len(fnCalls) > 0 {
				emit := func(respEv core.Event) error {
					lastEvent = &respEv

					select {
					case <-runCtx.Context.Done():
						return runCtx.Context.Err()
					case eventChan <- respEv:
					}

					if runCtx.Resume != nil {
						return runCtx.WaitForResume()
					}

					return nil
				}

				f.executor.Execute(runCtx, f.agent, f.agent.GetFunctions(), fnCalls, emit)
			}
		case err, ok := <-errCh:
			if ok {
				runCtx.LogError("flow.model.error", "agent", f.agent.GetName(), "error", err.Error())
				f.emitError(eventChan, runCtx, fmt.Errorf("model call failed: %w", err))
				return nil
			}
			// The error channel closing is not termination: adapters close
			// both channels on exit and respCh may still hold buffered
			// responses. Stop selecting on it and keep draining.
			errCh = nil
		}
	}

	return lastEvent
}
