package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/semkit/semkit/core"
)

// ErrEscalated is returned when a child agent signals escalation.
var ErrEscalated = errors.New("child agent escalated")

// LoopAgent coordinates the repeated execution of a child agent with
// configurable termination controls: maximum iterations, a predicate on the
// child's text output, interval timing and escalation monitoring.
//
// LoopAgent is ideal for polling, retry logic and workflows requiring
// convergence checking.
type LoopAgent struct {
	BaseAgent
	child       core.Agent
	maxIters    int
	interval    time.Duration
	stopOnError bool
	predicate   func(string) bool
}

// NewLoopAgent constructs a looping coordinator around a child agent.
// Defaults: 100 iterations, no interval, stop on first error.
func NewLoopAgent(name string, child core.Agent, opts ...LoopOption) *LoopAgent {
	la := &LoopAgent{
		BaseAgent:   NewBaseAgent(name),
		child:       child,
		maxIters:    100,
		interval:    0,
		stopOnError: true,
	}

	for _, o := range opts {
		o(la)
	}

	return la
}

// LoopOption configures LoopAgent behavior.
type LoopOption func(*LoopAgent)

// WithMaxIters sets the maximum number of iterations for the loop.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIters = n }
}

// WithInterval sets the time delay between loop iterations. Useful for rate
// limiting and polling; 0 means no delay.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithPredicate sets a termination condition evaluated against the text of
// each final child response. Returning true ends the loop early.
//
// Example:
//
//	WithPredicate(func(output string) bool {
//	    return strings.Contains(output, "COMPLETE")
//	})
func WithPredicate(pred func(string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// WithContinueOnError keeps the loop running when an iteration fails.
func WithContinueOnError() LoopOption {
	return func(l *LoopAgent) { l.stopOnError = false }
}

// Run implements core.Agent performing iterative execution with escalation
// detection. It returns early (nil error) on escalation events or when the
// predicate matches.
func (l *LoopAgent) Run(runCtx *core.RunContext) error {
	for i := 0; i < l.maxIters; i++ {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		runCtx.LogDebug("loop.iteration.start", "agent", l.Name(), "iteration", i+1)

		lastOutput, childErr := l.runChildWithEscalationMonitoring(runCtx)

		// Escalation is not an error, just early termination
		if errors.Is(childErr, ErrEscalated) {
			runCtx.LogInfo("loop.escalated", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if childErr != nil {
			if l.stopOnError {
				return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, l.child.Name(), childErr)
			}
			runCtx.LogWarn("loop.iteration.failed", "agent", l.Name(), "iteration", i+1, "error", childErr.Error())
		}

		if l.predicate != nil && l.predicate(lastOutput) {
			runCtx.LogInfo("loop.predicate.matched", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if l.interval > 0 && i < l.maxIters-1 {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	runCtx.LogDebug("loop.complete", "agent", l.Name(), "iterations", l.maxIters)

	return nil
}

// runChildWithEscalationMonitoring executes the child while intercepting
// emitted events to detect escalation flags before forwarding to the parent
// context. It returns the text of the last final response for predicate
// evaluation.
func (l *LoopAgent) runChildWithEscalationMonitoring(runCtx *core.RunContext) (string, error) {
	interceptChan := make(chan core.Event, 10)
	resumeChan := make(chan struct{}, 10)
	childCtx := runCtx.NewChildContext(interceptChan, resumeChan, runCtx.Branch)

	done := make(chan error, 1)

	go func() {
		defer close(done)
		done <- l.child.Run(childCtx)
	}()

	var lastOutput string

	for {
		select {
		case event := <-interceptChan:
			if event.Content != nil && !event.IsPartial() {
				if text := event.Content.Text(); text != "" {
					lastOutput = text
				}
			}

			if event.Actions.Escalate != nil && *event.Actions.Escalate {
				// Forward the escalation event then stop looping
				if err := runCtx.EmitEvent(event); err != nil {
					return lastOutput, err
				}
				// Release the child in case it waits for persistence
				select {
				case resumeChan <- struct{}{}:
				default:
				}
				<-done
				return lastOutput, ErrEscalated
			}

			if err := runCtx.EmitEvent(event); err != nil {
				return lastOutput, err
			}

			// Send resume signal to child
			select {
			case resumeChan <- struct{}{}:
			case <-runCtx.Done():
				return lastOutput, runCtx.Err()
			}

		case err := <-done:
			// Child completed without escalation. The channels are left
			// open for the collector: the child is the only sender and
			// a close here could race a final buffered emit.
			return lastOutput, err

		case <-runCtx.Done():
			return lastOutput, runCtx.Err()
		}
	}
}

// CreateEscalationEvent constructs an event carrying the escalation signal.
// Agents emit it when they cannot complete their task and need a coordinator
// to stop or take over.
func CreateEscalationEvent(runID, author string, content *core.Content) core.Event {
	escalate := true
	ev := core.NewEvent(runID, author)
	ev.Actions.Escalate = &escalate
	ev.Content = content
	return ev
}
