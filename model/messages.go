package model

type EventType string

const (
	EventConnectionStatus    EventType = "connectionStatus"
	EventCredentialsRequired EventType = "credentialsRequired"
	EventStreamStart         EventType = "streamStart"
	EventStreamDelta         EventType = "streamDelta"
	EventStreamEnd           EventType = "streamEnd"
	EventStreamError         EventType = "streamError"
	EventToolCallStart       EventType = "toolCallStart"
	EventToolCallExecuting   EventType = "toolCallExecuting"
	EventToolCallComplete    EventType = "toolCallComplete"
	EventConversationCleared EventType = "conversationCleared"
)

// Event is what the orchestrator pushes to the UI boundary. Only the fields
// relevant to Type are set.
type Event struct {
	Type      EventType   `json:"type"`
	MessageID string      `json:"messageId,omitempty"`
	Text      string      `json:"text,omitempty"`
	Provider  string      `json:"provider,omitempty"`
	Model     string      `json:"model,omitempty"`
	Connected *bool       `json:"connected,omitempty"`
	Models    []ModelInfo `json:"models,omitempty"`
	ToolID    string      `json:"toolId,omitempty"`
	ToolName  string      `json:"toolName,omitempty"`
	Input     any         `json:"input,omitempty"`
	Success   *bool       `json:"success,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// EventSink delivers events to a front end. Implementations must not block
// for long; the orchestrator calls them inline.
type EventSink func(Event)

func Bool(v bool) *bool {
	return &v
}
