package core

import (
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side effects and orchestration signals attached to an
// Event. Fields are pointers / maps so absence is distinguishable from zero
// values. The engine applies them after persisting the event.
type EventActions struct {
	StateDelta    map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta map[string]int `json:"artifact_delta,omitempty"`
	Escalate      *bool          `json:"escalate,omitempty"`
}

// Event is the unit of communication between agents, the engine and clients.
// Once emitted it is treated as immutable. Content may be nil for control or
// error-only events; Timestamp is UTC.
type Event struct {
	ID           string     `json:"id"`
	RunID        string     `json:"run_id"`
	Author       string     `json:"author"`
	Actions      EventActions `json:"actions"`
	Branch       *string    `json:"branch,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Content      *Content   `json:"content,omitempty"`
	Partial      *bool      `json:"partial,omitempty"`
	TurnComplete *bool      `json:"turn_complete,omitempty"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// NewEvent creates a bare event authored by author and bound to a run. Prefer
// the semantic constructors below for common categories.
func NewEvent(runID, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Timestamp: time.Now().UTC(),
		Actions:   EventActions{},
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(author, message string) Event {
	e := NewEvent("", author)
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(runID, message string) Event {
	e := NewEvent(runID, "user")
	e.Content = &Content{Role: "user", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewUserContentEvent creates a user-authored event carrying arbitrary
// content, for inputs beyond a plain text message.
func NewUserContentEvent(runID string, content *Content) Event {
	e := NewEvent(runID, "user")
	e.Content = content
	return e
}

// NewFunctionCallEvent records an agent requesting execution of a named
// function with serialized arguments.
func NewFunctionCallEvent(author, functionName, args string) Event {
	e := NewEvent("", author)
	e.Content = &Content{
		Role: "assistant",
		Parts: []Part{
			FunctionCallPart{FunctionCall: FunctionCall{Name: functionName, Arguments: args}},
		},
	}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a
// function call. A non-nil err is copied into the response Error field.
func NewFunctionResponseEvent(author, id, functionName string, result any, err error) Event {
	e := NewEvent("", author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a UUID-based identifier for events and runs.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment that will be
// followed by more events composing the final turn.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns the FunctionCall parts of the event content in
// their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns the FunctionResponse parts of the event
// content in their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse reports whether this event completes an assistant turn: not
// partial and carrying no pending function calls or responses.
func (e Event) IsFinalResponse() bool {
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

// UnixSeconds returns the timestamp as fractional seconds since the Unix
// epoch, for metrics and numeric serialization paths.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
