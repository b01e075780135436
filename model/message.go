package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is one of TextBlock, ToolUseBlock or ToolResultBlock.
type ContentBlock interface {
	blockType() string
}

type TextBlock struct {
	Text string
}

type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) blockType() string       { return "text" }
func (ToolUseBlock) blockType() string    { return "tool_use" }
func (ToolResultBlock) blockType() string { return "tool_result" }

func (b TextBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{"text", b.Text})
}

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	input := b.Input
	if input == nil {
		input = map[string]any{}
	}
	return json.Marshal(struct {
		Type  string         `json:"type"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}{"tool_use", b.ID, b.Name, input})
}

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ToolUseID string `json:"tool_use_id"`
		Content   string `json:"content"`
		IsError   bool   `json:"is_error,omitempty"`
	}{"tool_result", b.ToolUseID, b.Content, b.IsError})
}

// Message is either a plain text message (Blocks == nil) or a block message.
type Message struct {
	Role      Role
	Text      string
	Blocks    []ContentBlock
	Timestamp time.Time
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text, Timestamp: time.Now()}
}

func NewBlockMessage(role Role, blocks ...ContentBlock) Message {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return Message{Role: role, Blocks: blocks, Timestamp: time.Now()}
}

func (m Message) HasBlocks() bool {
	return m.Blocks != nil
}

// PlainText returns the message text. For block messages the text blocks
// are joined with newlines and tool blocks are skipped.
func (m Message) PlainText() string {
	if !m.HasBlocks() {
		return m.Text
	}
	var parts []string
	for _, block := range m.Blocks {
		if tb, ok := block.(TextBlock); ok && tb.Text != "" {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the ToolUse blocks of the message in order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range m.Blocks {
		if tu, ok := block.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Text
	if m.HasBlocks() {
		content = m.Blocks
	}
	return json.Marshal(struct {
		Role      Role      `json:"role"`
		Content   any       `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	}{m.Role, content, m.Timestamp})
}

// CloneHistory returns a copy of the slice that can be appended to without
// touching the original backing array.
func CloneHistory(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
