package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/plugin"
)

func numberSchema(fields ...string) map[string]any {
	props := map[string]any{}
	for _, f := range fields {
		props[f] = map[string]any{"type": "number"}
	}
	return map[string]any{"type": "object", "properties": props, "required": fields}
}

func collectEmits() (func(core.Event) error, func() []core.Event) {
	var mu sync.Mutex
	var events []core.Event
	emit := func(ev core.Event) error {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	}
	get := func() []core.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]core.Event, len(events))
		copy(out, events)
		return out
	}
	return emit, get
}

func TestFunctionExecutor_SingleCall(t *testing.T) {
	add := plugin.NewFunction("add", "Add two numbers", numberSchema("a", "b"),
		func(_ *core.FunctionContext, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})

	registry := map[string]*plugin.Function{"add": add}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "add")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "add", Arguments: `{"a": 2, "b": 3}`},
	}, emit)

	events := get()
	require.Len(t, events, 1)

	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "fc-1", responses[0].ID)
	assert.Equal(t, "add", responses[0].Name)
	assert.Equal(t, 5.0, responses[0].Response)
	assert.Empty(t, responses[0].Error)
	assert.Equal(t, "tool", events[0].Content.Role)
}

func TestFunctionExecutor_UnknownFunction(t *testing.T) {
	agent := &fakeFlowAgent{name: "calc"}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, map[string]*plugin.Function{}, []core.FunctionCall{
		{ID: "fc-1", Name: "missing", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 1)
	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "not found")
}

func TestFunctionExecutor_MalformedArguments(t *testing.T) {
	noop := plugin.NewFunction("noop", "Does nothing", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) { return "ok", nil })

	registry := map[string]*plugin.Function{"noop": noop}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "noop", Arguments: `{not json`},
	}, emit)

	events := get()
	require.Len(t, events, 1)
	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "failed to unmarshal args")
}

func TestFunctionExecutor_PanicRecovery(t *testing.T) {
	panicky := plugin.NewFunction("panicky", "Panics", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) {
			panic("deliberate failure")
		})

	registry := map[string]*plugin.Function{"panicky": panicky}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "panicky", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 1)
	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "panic recovered")
	assert.Contains(t, responses[0].Error, "deliberate failure")
}

func TestFunctionExecutor_PreserveOrder(t *testing.T) {
	// slow finishes last but must still be emitted first
	slow := plugin.NewFunction("slow", "Slow", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return "slow done", nil
		})
	fast := plugin.NewFunction("fast", "Fast", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) {
			return "fast done", nil
		})

	registry := map[string]*plugin.Function{"slow": slow, "fast": fast}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{PreserveOrder: true})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "slow", Arguments: `{}`},
		{ID: "fc-2", Name: "fast", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 2)
	assert.Equal(t, "fc-1", events[0].GetFunctionResponses()[0].ID)
	assert.Equal(t, "fc-2", events[1].GetFunctionResponses()[0].ID)
}

func TestFunctionExecutor_UnorderedEmitsAll(t *testing.T) {
	echo := func(tag string) *plugin.Function {
		return plugin.NewFunction(tag, "Echo", map[string]any{"type": "object"},
			func(*core.FunctionContext, map[string]any) (any, error) { return tag, nil })
	}

	registry := map[string]*plugin.Function{"a": echo("a"), "b": echo("b"), "c": echo("c")}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-a", Name: "a"},
		{ID: "fc-b", Name: "b"},
		{ID: "fc-c", Name: "c"},
	}, emit)

	events := get()
	require.Len(t, events, 3)

	seen := map[string]bool{}
	for _, ev := range events {
		for _, r := range ev.GetFunctionResponses() {
			seen[r.ID] = true
			assert.Empty(t, r.Error)
		}
	}
	assert.Equal(t, map[string]bool{"fc-a": true, "fc-b": true, "fc-c": true}, seen)
}

func TestFunctionExecutor_AppliesFunctionContextActions(t *testing.T) {
	stateful := plugin.NewFunction("remember", "Stores a fact", map[string]any{"type": "object"},
		func(fnCtx *core.FunctionContext, _ map[string]any) (any, error) {
			fnCtx.SetState("remembered", "yes")
			return "stored", nil
		})

	registry := map[string]*plugin.Function{"remember": stateful}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "remember", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 1)
	assert.Equal(t, "yes", events[0].Actions.StateDelta["remembered"])
}

func TestFunctionExecutor_Timeout(t *testing.T) {
	sleeper := plugin.NewFunction("sleeper", "Sleeps", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) {
			time.Sleep(2 * time.Second)
			return "too late", nil
		})

	registry := map[string]*plugin.Function{"sleeper": sleeper}
	agent := &fakeFlowAgent{name: "calc", functions: registry, functionTimeout: 30 * time.Millisecond}
	runCtx, _ := newFlowRunContext(t, "x")

	start := time.Now()
	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "sleeper", Arguments: `{}`},
	}, emit)

	assert.Less(t, time.Since(start), time.Second, "deadline must cut the wait short")

	events := get()
	require.Len(t, events, 1)
	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, plugin.CodeTimeout)
	assert.Nil(t, responses[0].Response)
}

func TestFunctionExecutor_Cancellation(t *testing.T) {
	blocked := plugin.NewFunction("blocked", "Never returns", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) {
			select {} // only cancellation can unblock the caller
		})

	registry := map[string]*plugin.Function{"blocked": blocked}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runCtx.Context = ctx

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "blocked", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 1)
	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, plugin.CodeCancelled)
}

func TestFunctionExecutor_ParallelStateWrites(t *testing.T) {
	writer := func(key string) *plugin.Function {
		return plugin.NewFunction(key, "Writes "+key, map[string]any{"type": "object"},
			func(fnCtx *core.FunctionContext, _ map[string]any) (any, error) {
				for i := 0; i < 100; i++ {
					fnCtx.SetState(key, i)
				}
				return "done", nil
			})
	}

	registry := map[string]*plugin.Function{"left": writer("left"), "right": writer("right")}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-l", Name: "left", Arguments: `{}`},
		{ID: "fc-r", Name: "right", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 2)
	for _, ev := range events {
		require.Len(t, ev.GetFunctionResponses(), 1)
		key := ev.GetFunctionResponses()[0].Name
		assert.Equal(t, 99, ev.Actions.StateDelta[key])
	}

	// both writes land in the shared run scope
	for _, key := range []string{"left", "right"} {
		v, ok := runCtx.GetState(key)
		require.True(t, ok, key)
		assert.Equal(t, 99, v)
	}
}

func TestFunctionExecutor_HandlerErrorSurfaces(t *testing.T) {
	failing := plugin.NewFunction("failing", "Always fails", map[string]any{"type": "object"},
		func(*core.FunctionContext, map[string]any) (any, error) {
			return nil, errors.New("backend rejected the request")
		})

	registry := map[string]*plugin.Function{"failing": failing}
	agent := &fakeFlowAgent{name: "calc", functions: registry}
	runCtx, _ := newFlowRunContext(t, "x")

	emit, get := collectEmits()
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	exec.Execute(runCtx, agent, registry, []core.FunctionCall{
		{ID: "fc-1", Name: "failing", Arguments: `{}`},
	}, emit)

	events := get()
	require.Len(t, events, 1)
	responses := events[0].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "backend rejected the request")
	assert.Nil(t, responses[0].Response)
}
