package agent

import (
	"fmt"

	"github.com/semkit/semkit/core"
)

// SequentialAgent coordinates the execution of multiple child agents in
// sequence. Each child receives the same run context, so session state
// accumulated by one step (for example via an output key) is visible to the
// next.
//
// SequentialAgent is ideal for multi-step pipelines where agent outputs
// build upon each other.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a sequential execution coordinator that runs the
// given children in order.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
}

// Run implements core.Agent. It executes each child agent in order; errors
// stop further processing immediately.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for _, child := range s.children {
		// Pass the same run context to maintain shared state
		if err := child.Run(runCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
