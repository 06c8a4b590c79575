package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semkit/semkit/core"
)

// ParallelAgent coordinates the concurrent execution of multiple child
// agents. Each child runs on a cloned run context with its own branch path,
// so pending state deltas and artifacts stay isolated while the shared
// session remains readable.
//
// ParallelAgent is ideal for independent tasks such as gathering data from
// multiple sources where order does not matter.
type ParallelAgent struct {
	BaseAgent
	children []core.Agent
	timeout  time.Duration
}

// NewParallelAgent creates a parallel execution coordinator. A timeout of 0
// means no explicit limit beyond context cancellation.
func NewParallelAgent(name string, timeout time.Duration, children ...core.Agent) *ParallelAgent {
	return &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
		timeout:   timeout,
	}
}

// branchContextFor clones the parent context and assigns a branch path for
// the child agent, isolating pending deltas and artifacts.
func (p *ParallelAgent) branchContextFor(runCtx *core.RunContext, subAgent core.Agent) *core.RunContext {
	branchSuffix := fmt.Sprintf("%s.%s", p.Name(), subAgent.Name())
	return runCtx.WithBranch(buildBranchPath(runCtx.Branch, branchSuffix))
}

// Run implements core.Agent launching all children concurrently. The first
// error encountered is returned after all children finish; siblings are not
// cancelled on failure since each emits independently useful events.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	ctx := runCtx.Context
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	g := new(errgroup.Group)

	for _, child := range p.children {
		child := child
		branchCtx := p.branchContextFor(runCtx, child)
		branchCtx.Context = ctx

		g.Go(func() error {
			if err := child.Run(branchCtx); err != nil {
				return fmt.Errorf("parallel execution failed for agent %s: %w", child.Name(), err)
			}
			return nil
		})
	}

	return g.Wait()
}
