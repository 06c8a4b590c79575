package core

// Agent is the interface every agent in the kernel implements, whether it is
// model-backed or a composite orchestrating children.
//
// Agents receive a RunContext, process asynchronously, and communicate results
// by emitting events. Implementations must respect context cancellation and
// use the resume mechanism when they need persistence to catch up before
// continuing a turn.
type Agent interface {
	Name() string
	Description() string
	Start(runCtx *RunContext) error
	Stop(runCtx *RunContext) error
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo identifies an agent inside contexts and events. Name is the
// external identifier; Type categorizes the implementation (e.g. "chat",
// "sequential").
type AgentInfo struct{ Name, Type string }
