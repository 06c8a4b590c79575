package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/flow"
	"github.com/semkit/semkit/model"
	"github.com/semkit/semkit/plugin"
)

// ChatAgentOptions configures a ChatAgent instance.
//
// Use functional options with NewChatAgent to override defaults.
type ChatAgentOptions struct {
	Instruction           Instruction
	EnableStreaming       bool
	EnableFunctionCalling bool
	FunctionTimeout       time.Duration
	OutputKey             string
	MaxHistoryMessages    int
	MemoryRecall          int
	Plugins               []*plugin.Plugin
}

// ChatAgent integrates with a language model to process natural language
// inputs and generate responses.
//
// This agent implementation supports:
//   - Natural language conversation through system instructions
//   - Function calling with registered plugins
//   - Streaming responses for real-time interactions
//   - Session state management with output keys
//   - Template-based instruction customization
//   - Automatic memory recall into the system prompt
//
// ChatAgent embeds BaseAgent to inherit standard agent lifecycle and
// hierarchy management.
type ChatAgent struct {
	BaseAgent
	llm                   model.Model
	instruction           Instruction
	plugins               []*plugin.Plugin
	functions             map[string]*plugin.Function
	enableFunctionCalling bool
	enableStreaming       bool
	functionTimeout       time.Duration
	outputKey             string
	maxHistoryMessages    int
	memoryRecall          int
}

// NewChatAgent creates a model-backed chat agent with sensible defaults:
// streaming and function calling enabled, a 15-second function timeout, a
// 20-message history window and no memory recall.
func NewChatAgent(name string, llm model.Model, optFns ...func(o *ChatAgentOptions)) *ChatAgent {
	opts := ChatAgentOptions{
		Instruction:           NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		EnableStreaming:       true,
		EnableFunctionCalling: true,
		FunctionTimeout:       15 * time.Second,
		MaxHistoryMessages:    20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ChatAgent{
		BaseAgent:             NewBaseAgent(name),
		llm:                   llm,
		instruction:           opts.Instruction,
		functions:             make(map[string]*plugin.Function),
		enableStreaming:       opts.EnableStreaming,
		enableFunctionCalling: opts.EnableFunctionCalling,
		functionTimeout:       opts.FunctionTimeout,
		outputKey:             opts.OutputKey,
		maxHistoryMessages:    opts.MaxHistoryMessages,
		memoryRecall:          opts.MemoryRecall,
	}

	for _, p := range opts.Plugins {
		if err := a.RegisterPlugin(p); err != nil {
			panic(err)
		}
	}

	return a
}

// RegisterPlugin adds a plugin's functions to the agent's capability set.
// Function names must be unique across all plugins registered on the agent.
func (a *ChatAgent) RegisterPlugin(p *plugin.Plugin) error {
	for _, fn := range p.Functions() {
		if existing, exists := a.functions[fn.Name()]; exists {
			return fmt.Errorf("function %s from plugin %s collides with plugin %s", fn.Name(), p.Name(), existing.PluginName())
		}
	}

	for _, fn := range p.Functions() {
		a.functions[fn.Name()] = fn
	}
	a.plugins = append(a.plugins, p)

	return nil
}

// RegisterPlugins adds multiple plugins, stopping at the first collision.
func (a *ChatAgent) RegisterPlugins(plugins ...*plugin.Plugin) error {
	for _, p := range plugins {
		if err := a.RegisterPlugin(p); err != nil {
			return err
		}
	}
	return nil
}

// Plugins returns the registered plugins in registration order.
func (a *ChatAgent) Plugins() []*plugin.Plugin {
	out := make([]*plugin.Plugin, len(a.plugins))
	copy(out, a.plugins)
	return out
}

// HasFunction checks if a function is registered with the agent.
func (a *ChatAgent) HasFunction(name string) bool {
	_, exists := a.functions[name]
	return exists
}

// ListFunctions returns the names of all registered functions.
func (a *ChatAgent) ListFunctions() []string {
	names := make([]string, 0, len(a.functions))
	for name := range a.functions {
		names = append(names, name)
	}
	return names
}

// FlowAgent interface implementation. These methods give the flow package
// access to agent capabilities without exposing the full implementation.

// GetName returns the agent's display name.
func (a *ChatAgent) GetName() string {
	return a.Name()
}

// GetModel returns the language model instance.
func (a *ChatAgent) GetModel() model.Model {
	return a.llm
}

// GetFunctions returns the registered functions keyed by name.
func (a *ChatAgent) GetFunctions() map[string]*plugin.Function {
	functions := make(map[string]*plugin.Function, len(a.functions))
	for name, fn := range a.functions {
		functions[name] = fn
	}

	return functions
}

// IsFunctionCallingEnabled returns whether function calling is enabled.
func (a *ChatAgent) IsFunctionCallingEnabled() bool {
	return a.enableFunctionCalling
}

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *ChatAgent) IsStreamingEnabled() bool {
	return a.enableStreaming
}

// GetOutputKey returns the session state key for saving responses.
func (a *ChatAgent) GetOutputKey() string {
	return a.outputKey
}

// MaxHistoryMessages returns the conversation history window size.
func (a *ChatAgent) MaxHistoryMessages() int {
	return a.maxHistoryMessages
}

// MemoryRecallLimit returns how many recalled memories to inject per turn.
func (a *ChatAgent) MemoryRecallLimit() int {
	return a.memoryRecall
}

// FunctionTimeout returns the per-function execution timeout.
func (a *ChatAgent) FunctionTimeout() time.Duration {
	return a.functionTimeout
}

// ResolveInstructions produces the final instruction string (system prompt)
// by resolving static or dynamic instruction sources.
func (a *ChatAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// ExecuteFunction deserializes JSON arguments and invokes the named function,
// returning its result or an error if the function is unknown or validation
// fails.
func (a *ChatAgent) ExecuteFunction(fnCtx *core.FunctionContext, name string, args string) (any, error) {
	fn, exists := a.functions[name]
	if !exists {
		return nil, fmt.Errorf("function %s not found", name)
	}

	argsMap := make(map[string]any)
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	return fn.Call(fnCtx, argsMap)
}

// Run implements core.Agent using the chat flow, streaming flow events to
// the parent run context.
func (a *ChatAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug(
		"agent.run.start",
		"agent", a.Name(),
		"run", runCtx.RunID,
	)

	ctx := runCtx.Context // engine manages Start/Stop lifecycle

	fl := a.newFlow()

	eventChan, err := fl.Execute(runCtx)
	if err != nil {
		runCtx.LogError(
			"agent.flow.execute.error",
			"agent", a.Name(),
			"error", err.Error(),
		)

		return fmt.Errorf("flow execution failed: %w", err)
	}

	for event := range eventChan {
		select {
		case runCtx.Emit <- event:
			role := ""
			if event.Content != nil {
				role = event.Content.Role
			}

			runCtx.LogDebug(
				"agent.event.forward",
				"agent", a.Name(),
				"event_id", event.ID,
				"role", role,
				"fn_calls", len(event.GetFunctionCalls()),
			)
		case <-ctx.Done():
			runCtx.LogWarn("agent.run.context_done", "agent", a.Name(), "error", ctx.Err())

			return ctx.Err()
		}
	}

	runCtx.LogDebug("agent.flow.execute.complete", "agent", a.Name())

	return nil
}

// newFlow builds the execution flow, bounding function parallelism by the
// configured timeout semantics.
func (a *ChatAgent) newFlow() flow.Flow {
	return flow.NewChatFlow(a)
}
