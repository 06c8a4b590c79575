package flow

import (
	"fmt"
	"strings"

	"github.com/semkit/semkit/core"
	internalutil "github.com/semkit/semkit/internal/util"
	"github.com/semkit/semkit/model"
)

// InstructionsProcessor resolves the agent instruction and renders it as a
// template against session state.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the rendered system instructions on the request.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	if runCtx.Session != nil {
		rendered, tplErr := internalutil.RenderTemplate(instructions, runCtx.Session.State)
		if tplErr != nil {
			return fmt.Errorf("failed to render instruction template: %w", tplErr)
		}
		req.Instructions = rendered
	} else {
		req.Instructions = instructions
	}

	return nil
}

// ContentsProcessor assembles the conversation window sent to the model.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest adds the recent conversation history to the request.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	contents := []core.Content{}

	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		if max := agent.MaxHistoryMessages(); max > 0 && len(events) > max {
			events = events[len(events)-max:]
		}

		for _, ev := range events {
			if ev.Content != nil && len(ev.Content.Parts) > 0 {
				contents = append(contents, *ev.Content)
			}
		}
	}

	req.Contents = contents
	return nil
}

// MemoryRecallProcessor searches the memory store with the latest user
// message and appends matches to the instructions so the model can use
// previously stored facts.
type MemoryRecallProcessor struct{}

// NewMemoryRecallProcessor creates a new memory recall processor.
func NewMemoryRecallProcessor() *MemoryRecallProcessor { return &MemoryRecallProcessor{} }

// Name returns the processor's identifier.
func (p *MemoryRecallProcessor) Name() string { return "memory_recall" }

// ProcessRequest injects recalled memories into the request instructions.
// Runs after InstructionsProcessor so the recall block lands at the end of
// the system prompt.
func (p *MemoryRecallProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	limit := agent.MemoryRecallLimit()
	if limit <= 0 || runCtx.MemoryStore == nil {
		return nil
	}

	query := lastUserText(runCtx)
	if query == "" {
		return nil
	}

	results, err := runCtx.SearchMemory(query, limit)
	if err != nil {
		return fmt.Errorf("memory recall failed: %w", err)
	}

	if len(results) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("\n\nRelevant memories from previous conversations:\n")
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}

	runCtx.LogDebug("agent.memory.recalled", "agent", agent.GetName(), "count", len(results))

	req.Instructions += sb.String()
	return nil
}

// lastUserText returns the text of the most recent user message, falling back
// to the run's input content.
func lastUserText(runCtx *core.RunContext) string {
	if runCtx.Session != nil {
		events := runCtx.Session.GetConversationHistory()
		for i := len(events) - 1; i >= 0; i-- {
			c := events[i].Content
			if c != nil && c.Role == "user" {
				if text := c.Text(); text != "" {
					return text
				}
			}
		}
	}

	return runCtx.UserContent.Text()
}
