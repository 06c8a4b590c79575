package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/plugin"
)

// FunctionExecutor executes a batch of function calls, possibly in parallel,
// and emits function response events through the provided emit callback.
// Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and report errors in the response)
//   - Emit exactly one FunctionResponse event per incoming FunctionCall
//   - Apply FunctionContext accumulated actions to emitted events
//
// The emit callback is responsible for persistence synchronization.
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, registry map[string]*plugin.Function, fnCalls []core.FunctionCall, emit func(core.Event) error)
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(fnCalls))
	PreserveOrder  bool // if true, buffer results and emit in original order
	LogStartEvents bool // log a start line per function
}

// parallelFunctionExecutor is the default implementation.
type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	registry map[string]*plugin.Function,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) {
	n := len(fnCalls)
	if n == 0 {
		return
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		ev := e.run(runCtx, agent, registry, fnCalls[0])
		if err := emit(ev); err != nil {
			runCtx.LogError("agent.function.emit.error", "function", fnCalls[0].Name, "error", err.Error())
		}
		return
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.Event, n) // used only if PreserveOrder
	var mu sync.Mutex                // protects unordered emit
	var wg sync.WaitGroup

	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range fnCalls {
		if runCtx.Context.Err() != nil { // pre-check cancellation
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Context.Err() != nil {
				return
			}

			ev := e.run(runCtx, agent, registry, fc)

			if e.cfg.PreserveOrder {
				results[idx] = ev
			} else {
				mu.Lock()
				err := emit(ev)
				mu.Unlock()
				if err != nil {
					runCtx.LogError("agent.function.emit.error", "function", fc.Name, "error", err.Error())
				}
			}
		}(i, fnCalls[i])
	}

	wg.Wait()

	if e.cfg.PreserveOrder {
		for i := 0; i < n; i++ {
			if results[i].ID == "" {
				continue
			}
			if err := emit(results[i]); err != nil {
				runCtx.LogError("agent.function.emit.error", "function", fnCalls[i].Name, "error", err.Error())
			}
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
}

// run executes one function call with panic safety and returns its response
// event with accumulated actions applied.
func (e *parallelFunctionExecutor) run(
	runCtx *core.RunContext,
	agent FlowAgent,
	registry map[string]*plugin.Function,
	fc core.FunctionCall,
) core.Event {
	fnCtx := core.NewFunctionContext(runCtx, fc.ID)
	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", agent.GetName(), "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()

	type callResult struct {
		result any
		err    error
	}

	resCh := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				runCtx.LogError("agent.function.panic", "agent", agent.GetName(), "function", fc.Name, "recover", r)
				resCh <- callResult{err: panicError(r)}
			}
		}()
		res, callErr := executeFunction(registry, fnCtx, fc.Name, fc.Arguments)
		resCh <- callResult{result: res, err: callErr}
	}()

	var timeoutCh <-chan time.Time
	if timeout := agent.FunctionTimeout(); timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var (
		result any
		err    error
	)
	select {
	case res := <-resCh:
		result, err = res.result, res.err
	case <-timeoutCh:
		// The handler goroutine is abandoned; Function.Call takes no
		// context, so the deadline can only stop us waiting for it.
		err = plugin.NewFunctionError(fc.Name, fmt.Sprintf("execution exceeded %s", agent.FunctionTimeout()), plugin.CodeTimeout)
		runCtx.LogError("agent.function.timeout", "agent", agent.GetName(), "function", fc.Name, "timeout", agent.FunctionTimeout().String())
	case <-runCtx.Context.Done():
		err = plugin.NewFunctionError(fc.Name, runCtx.Context.Err().Error(), plugin.CodeCancelled)
	}

	runCtx.LogInfo(
		"agent.function.executed",
		"agent", agent.GetName(),
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	respEv := core.NewFunctionResponseEvent(agent.GetName(), fc.ID, fc.Name, result, err)
	fnCtx.InternalApplyActions(&respEv)

	return respEv
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeFunction centralizes function lookup, argument decoding and
// execution against the registry.
func executeFunction(registry map[string]*plugin.Function, fnCtx *core.FunctionContext, name, args string) (any, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}

	var argMap map[string]any
	if args == "" {
		argMap = map[string]any{}
	} else if err := json.Unmarshal([]byte(args), &argMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	return fn.Call(fnCtx, argMap)
}
