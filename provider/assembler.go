package provider

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"mcpdesk/config"
	"mcpdesk/model"
)

type callState int

const (
	callAccumulating callState = iota
	callComplete
	callAbandoned
)

func (s callState) String() string {
	switch s {
	case callAccumulating:
		return "accumulating"
	case callComplete:
		return "complete"
	case callAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

type pendingCall struct {
	id    string
	name  string
	buf   strings.Builder
	state callState
}

// AbandonedCall is a tool call whose arguments never became a JSON object.
type AbandonedCall struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Partial string `json:"partialInput"`
	Reason  string `json:"reason"`
}

// ToolCallAssembler rebuilds tool calls whose arguments arrive as string
// fragments. Fragments are routed by the stream's own index (OpenAI
// tool_calls index, Anthropic content block index) and calls are told
// apart by id: a fragment carrying a new id on an index already in use
// starts a new call there. Each call moves from accumulating to complete
// once its buffer parses as a JSON object, or to abandoned when the stream
// ends first.
type ToolCallAssembler struct {
	providerID string
	slots      map[int]*pendingCall // stream index → current call
	calls      []*pendingCall       // arrival order
	abandoned  []AbandonedCall
}

func NewToolCallAssembler(providerID string) *ToolCallAssembler {
	return &ToolCallAssembler{
		providerID: providerID,
		slots:      make(map[int]*pendingCall),
	}
}

// Begin registers a call or fills in an id or name that was not known yet.
// An id different from the one already recorded for key opens a new call.
func (a *ToolCallAssembler) Begin(key int, id, name string) {
	call, ok := a.slots[key]
	if !ok || (id != "" && call.id != "" && id != call.id) {
		call = &pendingCall{}
		a.slots[key] = call
		a.calls = append(a.calls, call)
	}
	if call.id == "" && id != "" {
		call.id = id
	}
	if call.name == "" && name != "" {
		call.name = name
	}
}

// Append adds an argument fragment. It returns the finished call the
// first time the buffer parses, and nil otherwise.
func (a *ToolCallAssembler) Append(key int, fragment string) *model.ToolUseBlock {
	a.Begin(key, "", "")
	call := a.slots[key]
	if call.state != callAccumulating {
		if fragment != "" {
			config.DebugLog.Printf("[Provider] %s: fragment for %s call %q ignored", a.providerID, call.state, call.name)
		}
		return nil
	}

	call.buf.WriteString(fragment)
	input, ok := parseObject(call.buf.String())
	if !ok || call.name == "" {
		return nil
	}
	return a.complete(call, input)
}

// Finish closes one call. An empty buffer completes as {}; anything that
// still does not parse is abandoned.
func (a *ToolCallAssembler) Finish(key int) *model.ToolUseBlock {
	call, ok := a.slots[key]
	if !ok {
		return nil
	}
	return a.finish(call)
}

func (a *ToolCallAssembler) finish(call *pendingCall) *model.ToolUseBlock {
	if call.state != callAccumulating {
		return nil
	}

	raw := strings.TrimSpace(call.buf.String())
	if call.name == "" {
		a.abandon(call, "missing tool name")
		return nil
	}
	if raw == "" {
		return a.complete(call, map[string]any{})
	}
	input, ok := parseObject(raw)
	if !ok {
		a.abandon(call, "arguments are not a JSON object")
		return nil
	}
	return a.complete(call, input)
}

// FinishAll closes every call still accumulating, in arrival order.
func (a *ToolCallAssembler) FinishAll() []model.ToolUseBlock {
	var done []model.ToolUseBlock
	for _, call := range a.calls {
		if block := a.finish(call); block != nil {
			done = append(done, *block)
		}
	}
	return done
}

func (a *ToolCallAssembler) Abandoned() []AbandonedCall {
	return a.abandoned
}

func (a *ToolCallAssembler) complete(call *pendingCall, input map[string]any) *model.ToolUseBlock {
	call.state = callComplete
	if call.id == "" {
		call.id = "call_" + uuid.NewString()
	}
	return &model.ToolUseBlock{ID: call.id, Name: call.name, Input: input}
}

func (a *ToolCallAssembler) abandon(call *pendingCall, reason string) {
	call.state = callAbandoned
	ac := AbandonedCall{ID: call.id, Name: call.name, Partial: call.buf.String(), Reason: reason}
	a.abandoned = append(a.abandoned, ac)

	config.DebugLog.WithFields(map[string]any{
		"provider": a.providerID,
		"tool":     call.name,
		"id":       call.id,
	}).Warnf("[Provider] dropping tool call: %s (%d bytes buffered)", reason, len(ac.Partial))
}

func parseObject(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] != '{' {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}
