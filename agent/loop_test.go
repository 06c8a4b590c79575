package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semkit/semkit/core"
)

// escalatingAgent emits regular events until it reaches escalateOn, then
// emits an escalation event.
type escalatingAgent struct {
	BaseAgent
	mu         sync.Mutex
	runs       int
	escalateOn int
}

func newEscalatingAgent(name string, escalateOn int) *escalatingAgent {
	return &escalatingAgent{BaseAgent: NewBaseAgent(name), escalateOn: escalateOn}
}

func (a *escalatingAgent) Run(runCtx *core.RunContext) error {
	a.mu.Lock()
	a.runs++
	run := a.runs
	a.mu.Unlock()

	ev := core.NewEvent(runCtx.RunID, a.Name())
	if run >= a.escalateOn {
		escalate := true
		ev.Actions.Escalate = &escalate
		ev.Content = &core.Content{
			Role:  "assistant",
			Parts: []core.Part{core.TextPart{Text: "escalating: cannot make further progress"}},
		}
	} else {
		ev.Content = &core.Content{
			Role:  "assistant",
			Parts: []core.Part{core.TextPart{Text: fmt.Sprintf("iteration %d in progress", run)}},
		}
	}

	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	return runCtx.WaitForResume()
}

func (a *escalatingAgent) runCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// countingAgent emits one text event per run and never escalates.
type countingAgent struct {
	BaseAgent
	mu   sync.Mutex
	runs int
	// text produced per run, indexed by run number
	output func(run int) string
}

func newCountingAgent(name string) *countingAgent {
	return &countingAgent{
		BaseAgent: NewBaseAgent(name),
		output:    func(run int) string { return fmt.Sprintf("result of run %d", run) },
	}
}

func (a *countingAgent) Run(runCtx *core.RunContext) error {
	a.mu.Lock()
	a.runs++
	run := a.runs
	a.mu.Unlock()

	ev := core.NewMessageEvent(a.Name(), a.output(run))
	ev.RunID = runCtx.RunID
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	return runCtx.WaitForResume()
}

func (a *countingAgent) runCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// collectEvents drains the emit channel until cancelled, returning a getter
// for the captured events.
func collectEvents(ctx context.Context, emit <-chan core.Event) func() []core.Event {
	var mu sync.Mutex
	var events []core.Event
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-emit:
				if !ok {
					return
				}
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			}
		}
	}()
	return func() []core.Event {
		// The collector goroutine may not have been scheduled yet (notably
		// with GOMAXPROCS=1); yield until it has drained the channel.
		for i := 0; i < 1000 && len(emit) > 0; i++ {
			runtime.Gosched()
		}
		runtime.Gosched()
		mu.Lock()
		defer mu.Unlock()
		out := make([]core.Event, len(events))
		copy(out, events)
		return out
	}
}

func TestLoopAgent_EscalationStopsLoop(t *testing.T) {
	tests := []struct {
		name       string
		escalateOn int
		maxIters   int
		expected   int
	}{
		{"escalates on iteration 2", 2, 5, 2},
		{"escalates immediately", 1, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			child := newEscalatingAgent("escalator", tt.escalateOn)
			loop := NewLoopAgent("Loop", child, WithMaxIters(tt.maxIters))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			emit := make(chan core.Event, 32)
			runCtx := newTestRunContext(emit, nil)
			runCtx.Context = ctx

			getEvents := collectEvents(ctx, emit)

			err := loop.Run(runCtx)
			require.NoError(t, err, "escalation is early termination, not an error")
			assert.Equal(t, tt.expected, child.runCount())

			events := getEvents()
			require.NotEmpty(t, events)
			last := events[len(events)-1]
			require.NotNil(t, last.Actions.Escalate)
			assert.True(t, *last.Actions.Escalate)
		})
	}
}

func TestLoopAgent_RunsAllIterations(t *testing.T) {
	child := newCountingAgent("worker")
	loop := NewLoopAgent("Loop", child, WithMaxIters(3))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emit := make(chan core.Event, 32)
	runCtx := newTestRunContext(emit, nil)
	runCtx.Context = ctx

	getEvents := collectEvents(ctx, emit)

	require.NoError(t, loop.Run(runCtx))
	assert.Equal(t, 3, child.runCount())
	assert.Len(t, getEvents(), 3)
}

func TestLoopAgent_PredicateStopsLoop(t *testing.T) {
	child := newCountingAgent("worker")
	child.output = func(run int) string {
		if run == 2 {
			return "analysis COMPLETE"
		}
		return "still working"
	}

	loop := NewLoopAgent("Loop", child,
		WithMaxIters(10),
		WithPredicate(func(output string) bool {
			return strings.Contains(output, "COMPLETE")
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emit := make(chan core.Event, 64)
	runCtx := newTestRunContext(emit, nil)
	runCtx.Context = ctx
	collectEvents(ctx, emit)

	require.NoError(t, loop.Run(runCtx))
	assert.Equal(t, 2, child.runCount())
}

func TestLoopAgent_StopOnError(t *testing.T) {
	boom := errors.New("boom")
	child := newStubAgent("failing")
	child.err = boom

	loop := NewLoopAgent("Loop", child, WithMaxIters(5))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emit := make(chan core.Event, 8)
	runCtx := newTestRunContext(emit, nil)
	runCtx.Context = ctx
	collectEvents(ctx, emit)

	err := loop.Run(runCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, child.runCount())
}

func TestLoopAgent_ContinueOnError(t *testing.T) {
	child := newStubAgent("flaky")
	child.err = errors.New("transient")

	loop := NewLoopAgent("Loop", child, WithMaxIters(4), WithContinueOnError())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emit := make(chan core.Event, 8)
	runCtx := newTestRunContext(emit, nil)
	runCtx.Context = ctx
	collectEvents(ctx, emit)

	require.NoError(t, loop.Run(runCtx))
	assert.Equal(t, 4, child.runCount())
}

// chattyAgent emits events in a tight loop without waiting for persistence,
// stopping only when its context is cancelled.
type chattyAgent struct {
	BaseAgent
}

func (a *chattyAgent) Run(runCtx *core.RunContext) error {
	for i := 0; ; i++ {
		ev := core.NewMessageEvent(a.Name(), fmt.Sprintf("update %d", i))
		ev.RunID = runCtx.RunID
		if err := runCtx.EmitEvent(ev); err != nil {
			return err
		}
	}
}

func TestLoopAgent_CancellationWithEmittingChild(t *testing.T) {
	child := &chattyAgent{BaseAgent: NewBaseAgent("chatty")}
	loop := NewLoopAgent("Loop", child, WithMaxIters(5))

	ctx, cancel := context.WithCancel(context.Background())

	emit := make(chan core.Event, 8)
	runCtx := newTestRunContext(emit, nil)
	runCtx.Context = ctx

	collectEvents(ctx, emit)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	// the child keeps sending right through cancellation; the loop must
	// wind down with the context error and no panic
	err := loop.Run(runCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateEscalationEvent(t *testing.T) {
	content := &core.Content{
		Role:  "assistant",
		Parts: []core.Part{core.TextPart{Text: "cannot complete task"}},
	}

	ev := CreateEscalationEvent("run-123", "Worker", content)

	assert.Equal(t, "run-123", ev.RunID)
	assert.Equal(t, "Worker", ev.Author)
	require.NotNil(t, ev.Actions.Escalate)
	assert.True(t, *ev.Actions.Escalate)
	assert.Equal(t, content, ev.Content)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}
