package flow

// ChatFlow is the standard execution flow for a standalone chat agent. It
// wires the default processors for instruction resolution, memory recall and
// conversation assembly, then relays model streaming events directly.
type ChatFlow struct{ *BaseFlow }

// NewChatFlow creates a chat flow with the default processor pipeline.
func NewChatFlow(agent FlowAgent) *ChatFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewMemoryRecallProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())

	return &ChatFlow{BaseFlow: baseFlow}
}
