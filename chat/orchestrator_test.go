package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpdesk/ledger"
	"mcpdesk/mcp"
	"mcpdesk/model"
	"mcpdesk/provider"
	"mcpdesk/provider/testutil"
)

type eventLog struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *eventLog) sink(ev model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(types ...model.EventType) []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Event
	for _, ev := range l.events {
		if slices.Contains(types, ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) types() []model.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

func mockFactory(providers ...*testutil.MockProvider) provider.Factory {
	return func(id string) (model.Provider, error) {
		for _, p := range providers {
			if p.ID() == id {
				return p, nil
			}
		}
		return nil, &provider.AuthError{Provider: id, Message: "API key is required"}
	}
}

type fakeToolbox struct {
	tools   []mcp.ToolDescriptor
	running []mcp.ServerSnapshot
	exec    func(name string, input map[string]any) (mcp.ToolOutput, error)

	mu       sync.Mutex
	executed []string
}

func (f *fakeToolbox) Tools(context.Context) []mcp.ToolDescriptor {
	return f.tools
}

func (f *fakeToolbox) Lookup(name string) (mcp.ToolDescriptor, bool) {
	for _, tool := range f.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return mcp.ToolDescriptor{}, false
}

func (f *fakeToolbox) Execute(_ context.Context, name string, input map[string]any) (mcp.ToolOutput, string, error) {
	f.mu.Lock()
	f.executed = append(f.executed, name)
	f.mu.Unlock()

	desc, ok := f.Lookup(name)
	if !ok {
		return mcp.ToolOutput{}, "", &mcp.ToolError{Tool: name, Err: mcp.ErrUnknownTool}
	}
	out, err := f.exec(name, input)
	return out, desc.ServerName, err
}

func (f *fakeToolbox) RunningServers() []mcp.ServerSnapshot {
	return f.running
}

func descriptor(server, name string) mcp.ToolDescriptor {
	return mcp.ToolDescriptor{Tool: mcptypes.NewTool(name), ServerName: server}
}

func connected(t *testing.T, p *testutil.MockProvider, toolbox Toolbox, opts ...Option) (*Orchestrator, *eventLog) {
	t.Helper()
	events := &eventLog{}
	opts = append(opts, WithEventSink(events.sink))
	o := New(mockFactory(p), toolbox, opts...)
	require.NoError(t, o.Connect(context.Background(), p.ID()))
	events.reset()
	return o, events
}

func TestTextTurnEmitsStreamEvents(t *testing.T) {
	p := testutil.NewMockProvider("anthropic", "mock-model").Script(
		[]model.ChunkEvent{model.TextDelta("Hello, "), model.TextDelta("world"), model.StreamEnd()},
	)
	o, events := connected(t, p, nil)

	require.NoError(t, o.RunTurn(context.Background(), "hi"))

	assert.Equal(t, []model.EventType{
		model.EventStreamStart,
		model.EventStreamDelta,
		model.EventStreamDelta,
		model.EventStreamEnd,
	}, events.types())

	all := events.ofType(model.EventStreamStart, model.EventStreamDelta, model.EventStreamEnd)
	id := all[0].MessageID
	require.NotEmpty(t, id)
	var streamed strings.Builder
	for _, ev := range all[1:3] {
		assert.Equal(t, id, ev.MessageID)
		streamed.WriteString(ev.Text)
	}
	assert.Equal(t, "Hello, world", streamed.String())
	assert.Equal(t, "Hello, world", all[3].Text)
	assert.Equal(t, id, all[3].MessageID)

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hello, world", history[1].Text)
	assert.False(t, o.Busy())
}

func TestStatusToolRunsWithoutSubprocess(t *testing.T) {
	manager := mcp.NewManager(mcp.NewSupervisor())
	p := testutil.NewMockProvider("openai", "gpt-4o").Script(
		[]model.ChunkEvent{model.ToolUseStart("t1", mcp.StatusToolName, map[string]any{})},
		[]model.ChunkEvent{model.TextDelta("No servers are configured.")},
	)
	l := ledger.New()
	o, events := connected(t, p, manager, WithLedger(l))

	require.NoError(t, o.RunTurn(context.Background(), "are my tools up?"))

	calls := p.StreamCalls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, mcp.StatusToolName, calls[0].Tools[0].Name)
	assert.Empty(t, calls[1].Tools, "continuation is streamed without tools")

	continuation := calls[1].Messages
	require.Len(t, continuation, 3)
	results := continuation[2]
	assert.Equal(t, model.RoleUser, results.Role)
	require.Len(t, results.Blocks, 1)
	result, ok := results.Blocks[0].(model.ToolResultBlock)
	require.True(t, ok)
	assert.Equal(t, "t1", result.ToolUseID)
	assert.False(t, result.IsError)
	assert.Equal(t, "No MCP servers are configured.", result.Content)

	ends := events.ofType(model.EventStreamEnd)
	require.Len(t, ends, 2)
	assert.Equal(t, UsingToolsPlaceholder, ends[0].Text)
	assert.Equal(t, "No servers are configured.", ends[1].Text)

	complete := events.ofType(model.EventToolCallComplete)
	require.Len(t, complete, 1)
	assert.True(t, *complete[0].Success)

	history := o.History()
	require.Len(t, history, 4)
	require.NoError(t, model.ValidateHistory(history))

	entries := l.Calls()
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindToolComplete, entries[0].Kind, "newest first")
	assert.Equal(t, ledger.KindToolInvoke, entries[1].Kind)
	assert.Equal(t, mcp.BuiltinServerName, entries[0].Source)
	assert.Equal(t, "No MCP servers are configured.", entries[0].Output)
}

func TestToolFailuresAreCapturedPerTool(t *testing.T) {
	toolbox := &fakeToolbox{
		tools: []mcp.ToolDescriptor{
			descriptor("files", "broken"),
			descriptor("files", "refuses"),
			descriptor("files", "works"),
		},
		exec: func(name string, _ map[string]any) (mcp.ToolOutput, error) {
			switch name {
			case "broken":
				return mcp.ToolOutput{}, &mcp.ToolError{Server: "files", Tool: name, Err: mcp.ErrInvocationTimeout}
			case "refuses":
				return mcp.ToolOutput{Content: "permission denied", IsError: true}, nil
			}
			return mcp.ToolOutput{Content: "done"}, nil
		},
	}
	p := testutil.NewMockProvider("anthropic", "m").Script(
		[]model.ChunkEvent{
			model.TextDelta("Trying three things."),
			model.ToolUseStart("a", "broken", nil),
			model.ToolUseStart("b", "refuses", nil),
			model.ToolUseStart("c", "works", map[string]any{"x": 1.0}),
			model.ToolUseStart("d", "missing", nil),
		},
		[]model.ChunkEvent{model.TextDelta("Summary.")},
	)
	o, events := connected(t, p, toolbox)

	require.NoError(t, o.RunTurn(context.Background(), "go"))
	assert.Equal(t, []string{"broken", "refuses", "works", "missing"}, toolbox.executed)

	history := o.History()
	require.Len(t, history, 5)

	assistant := history[2]
	require.Len(t, assistant.Blocks, 5)
	assert.Equal(t, model.TextBlock{Text: "Trying three things."}, assistant.Blocks[0])
	assert.Len(t, assistant.ToolUses(), 4)

	var results []model.ToolResultBlock
	for _, block := range history[3].Blocks {
		results = append(results, block.(model.ToolResultBlock))
	}
	require.Len(t, results, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{results[0].ToolUseID, results[1].ToolUseID, results[2].ToolUseID, results[3].ToolUseID})
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "timed out")
	assert.True(t, results[1].IsError)
	assert.Equal(t, "permission denied", results[1].Content)
	assert.False(t, results[2].IsError)
	assert.Equal(t, "done", results[2].Content)
	assert.True(t, results[3].IsError)
	assert.Contains(t, results[3].Content, "unknown tool")

	var success []bool
	for _, ev := range events.ofType(model.EventToolCallComplete) {
		success = append(success, *ev.Success)
	}
	assert.Equal(t, []bool{false, false, true, false}, success)
	assert.Len(t, events.ofType(model.EventToolCallStart), 4)
	assert.Len(t, events.ofType(model.EventToolCallExecuting), 4)

	ends := events.ofType(model.EventStreamEnd)
	require.Len(t, ends, 2)
	assert.Equal(t, "Trying three things.", ends[0].Text)
	assert.Equal(t, "Summary.", history[4].Text)
}

func TestToolsRunOnlyAfterStreamCloses(t *testing.T) {
	var streamOpen bool
	var executedWhileOpen bool
	toolbox := &fakeToolbox{
		tools: []mcp.ToolDescriptor{descriptor("files", "read_file")},
		exec: func(string, map[string]any) (mcp.ToolOutput, error) {
			executedWhileOpen = executedWhileOpen || streamOpen
			return mcp.ToolOutput{Content: "ok"}, nil
		},
	}
	p := testutil.NewMockProvider("anthropic", "m")
	p.StreamTurnFunc = func(_ context.Context, _ string, _ []model.Message, tools []mcptypes.Tool, cb model.ChunkCallback) error {
		streamOpen = true
		defer func() { streamOpen = false }()
		if len(tools) > 0 {
			if err := cb(model.ToolUseStart("t1", "read_file", nil)); err != nil {
				return err
			}
			if err := cb(model.TextDelta("more text after the call")); err != nil {
				return err
			}
		}
		return cb(model.StreamEnd())
	}
	o, _ := connected(t, p, toolbox)

	require.NoError(t, o.RunTurn(context.Background(), "read it"))
	assert.Equal(t, []string{"read_file"}, toolbox.executed)
	assert.False(t, executedWhileOpen)
}

func TestContinuationToolCallsAreIgnored(t *testing.T) {
	toolbox := &fakeToolbox{
		tools: []mcp.ToolDescriptor{descriptor("files", "read_file")},
		exec: func(string, map[string]any) (mcp.ToolOutput, error) {
			return mcp.ToolOutput{Content: "contents"}, nil
		},
	}
	p := testutil.NewMockProvider("anthropic", "m").Script(
		[]model.ChunkEvent{model.ToolUseStart("t1", "read_file", nil)},
		[]model.ChunkEvent{model.TextDelta("Read it."), model.ToolUseStart("t2", "read_file", nil)},
	)
	o, _ := connected(t, p, toolbox)

	require.NoError(t, o.RunTurn(context.Background(), "read"))
	assert.Len(t, toolbox.executed, 1)
	assert.Len(t, p.StreamCalls(), 2)

	history := o.History()
	require.Len(t, history, 4)
	assert.Equal(t, "Read it.", history[3].Text)
}

func TestSendMessageRejectsWhileTurnInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p := testutil.NewMockProvider("anthropic", "m")
	p.StreamTurnFunc = func(ctx context.Context, _ string, _ []model.Message, _ []mcptypes.Tool, cb model.ChunkCallback) error {
		close(started)
		<-release
		if err := cb(model.TextDelta("first")); err != nil {
			return err
		}
		return cb(model.StreamEnd())
	}
	o, _ := connected(t, p, nil)

	require.NoError(t, o.SendMessage(context.Background(), "one"))
	<-started

	assert.ErrorIs(t, o.SendMessage(context.Background(), "two"), ErrTurnInFlight)
	assert.ErrorIs(t, o.RunTurn(context.Background(), "three"), ErrTurnInFlight)
	assert.ErrorIs(t, o.SwitchProvider("anthropic"), ErrTurnInFlight)
	assert.ErrorIs(t, o.SetModel("other"), ErrTurnInFlight)
	assert.ErrorIs(t, o.ClearConversation(), ErrTurnInFlight)
	assert.True(t, o.Busy())

	close(release)
	o.Wait()

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Text)
	assert.Equal(t, "first", history[1].Text)
	assert.False(t, o.Busy())
}

func TestSwitchToUninitializedProviderIsRejected(t *testing.T) {
	p := testutil.NewMockProvider("anthropic", "claude")
	o, _ := connected(t, p, nil)

	err := o.SwitchProvider("openai")
	var notInit *ProviderNotInitializedError
	require.ErrorAs(t, err, &notInit)
	assert.Equal(t, "openai", notInit.Provider)

	providerID, modelID := o.Active()
	assert.Equal(t, "anthropic", providerID)
	assert.Equal(t, "claude", modelID)
}

func TestSwitchAndSetModel(t *testing.T) {
	a := testutil.NewMockProvider("anthropic", "claude")
	b := testutil.NewMockProvider("openai", "gpt-4o")
	events := &eventLog{}
	o := New(mockFactory(a, b), nil, WithEventSink(events.sink))

	require.NoError(t, o.Connect(context.Background(), "anthropic"))
	require.NoError(t, o.Connect(context.Background(), "openai"))
	providerID, _ := o.Active()
	assert.Equal(t, "anthropic", providerID, "first connection stays active")

	require.NoError(t, o.RunTurn(context.Background(), "hello"))

	require.NoError(t, o.SwitchProvider("openai"))
	providerID, modelID := o.Active()
	assert.Equal(t, "openai", providerID)
	assert.Equal(t, "gpt-4o", modelID)

	require.NoError(t, o.SetModel("gpt-4o-mini"))
	require.Error(t, o.SetModel("  "))
	require.NoError(t, o.RunTurn(context.Background(), "again"))

	calls := b.StreamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-4o-mini", calls[0].Model)
	assert.Len(t, calls[0].Messages, 3, "history carries over across providers")

	assert.Len(t, o.Connections(), 2)
}

func TestConnectActivatesDefaultProvider(t *testing.T) {
	a := testutil.NewMockProvider("anthropic", "claude")
	b := testutil.NewMockProvider("wandb", "llama")
	o := New(mockFactory(a, b), nil, WithDefaultProvider("wandb"))

	require.NoError(t, o.Connect(context.Background(), "anthropic"))
	require.NoError(t, o.Connect(context.Background(), "wandb"))

	providerID, modelID := o.Active()
	assert.Equal(t, "wandb", providerID)
	assert.Equal(t, "llama", modelID)
}

func TestConnectAuthErrorRequestsCredentials(t *testing.T) {
	events := &eventLog{}
	o := New(mockFactory(), nil, WithEventSink(events.sink))

	err := o.Connect(context.Background(), "openai")
	require.True(t, provider.IsAuthError(err))

	assert.Equal(t, []model.EventType{model.EventCredentialsRequired, model.EventConnectionStatus}, events.types())
	status := events.ofType(model.EventConnectionStatus)[0]
	assert.False(t, *status.Connected)
	assert.Equal(t, "openai", status.Provider)

	assert.ErrorIs(t, o.RunTurn(context.Background(), "hi"), ErrNoProvider)
}

func TestConnectProbeFailure(t *testing.T) {
	p := testutil.NewMockProvider("anthropic", "m")
	p.InitializeFunc = func(context.Context) ([]model.ModelInfo, error) {
		return nil, &provider.AuthError{Provider: "anthropic", Message: "invalid x-api-key"}
	}
	events := &eventLog{}
	o := New(mockFactory(p), nil, WithEventSink(events.sink))

	require.Error(t, o.Connect(context.Background(), "anthropic"))
	assert.Len(t, events.ofType(model.EventCredentialsRequired), 1)
	assert.Empty(t, o.Connections())
}

func TestFailedTurnLeavesHistoryUntouched(t *testing.T) {
	toolbox := &fakeToolbox{
		tools: []mcp.ToolDescriptor{descriptor("files", "read_file")},
		exec: func(string, map[string]any) (mcp.ToolOutput, error) {
			return mcp.ToolOutput{Content: "contents"}, nil
		},
	}
	streamErr := errors.New("anthropic streaming error: connection reset")

	tests := []struct {
		name     string
		failCall int
	}{
		{"initial phase fails", 2},
		{"continuation fails", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := 0
			p := testutil.NewMockProvider("anthropic", "m")
			p.StreamTurnFunc = func(_ context.Context, _ string, _ []model.Message, tools []mcptypes.Tool, cb model.ChunkCallback) error {
				call++
				if call == tt.failCall {
					_ = cb(model.TextDelta("partial"))
					return streamErr
				}
				if call == 2 {
					if err := cb(model.ToolUseStart("t1", "read_file", nil)); err != nil {
						return err
					}
				} else if err := cb(model.TextDelta("fine")); err != nil {
					return err
				}
				return cb(model.StreamEnd())
			}
			o, events := connected(t, p, toolbox)

			require.NoError(t, o.RunTurn(context.Background(), "first"))
			before := o.History()
			require.Len(t, before, 2)

			err := o.RunTurn(context.Background(), "second")
			assert.ErrorIs(t, err, streamErr)
			assert.Equal(t, before, o.History())
			assert.False(t, o.Busy())

			failures := events.ofType(model.EventStreamError)
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0].Error, "connection reset")
			assert.NotEmpty(t, failures[0].MessageID)

			p.StreamTurnFunc = func(_ context.Context, _ string, _ []model.Message, _ []mcptypes.Tool, cb model.ChunkCallback) error {
				return cb(model.StreamEnd())
			}
			require.NoError(t, o.RunTurn(context.Background(), "third"), "orchestrator is idle again")
		})
	}
}

func TestFirstTurnPreamble(t *testing.T) {
	toolbox := &fakeToolbox{
		tools: []mcp.ToolDescriptor{
			descriptor(mcp.BuiltinServerName, mcp.StatusToolName),
			descriptor("filesystem", "read_file"),
			descriptor("filesystem", "list_directory"),
		},
		running: []mcp.ServerSnapshot{{Name: "filesystem", Status: mcp.StatusRunning}},
	}
	p := testutil.NewMockProvider("anthropic", "m")
	o, _ := connected(t, p, toolbox)

	require.NoError(t, o.RunTurn(context.Background(), "hi"))
	require.NoError(t, o.RunTurn(context.Background(), "again"))
	require.NoError(t, o.ClearConversation())
	require.NoError(t, o.RunTurn(context.Background(), "fresh"))

	calls := p.StreamCalls()
	require.Len(t, calls, 3)

	first := calls[0].Messages[0].Text
	assert.Contains(t, first, "File system access")
	assert.Contains(t, first, "list_directory, read_file")
	assert.True(t, strings.HasSuffix(first, "User request: hi"))

	second := calls[1].Messages
	assert.Equal(t, "again", second[len(second)-1].Text)

	assert.Len(t, calls[2].Messages, 1)
	assert.Contains(t, calls[2].Messages[0].Text, "User request: fresh")
}

func TestNoPreambleWithoutRunningServers(t *testing.T) {
	manager := mcp.NewManager(mcp.NewSupervisor())
	p := testutil.NewMockProvider("anthropic", "m")
	o, _ := connected(t, p, manager)

	require.NoError(t, o.RunTurn(context.Background(), "hi"))
	assert.Equal(t, "hi", p.StreamCalls()[0].Messages[0].Text)
}

func TestClearConversation(t *testing.T) {
	p := testutil.NewMockProvider("anthropic", "m")
	o, events := connected(t, p, nil)

	require.NoError(t, o.RunTurn(context.Background(), "hi"))
	require.Len(t, o.History(), 2)

	require.NoError(t, o.ClearConversation())
	assert.Empty(t, o.History())
	assert.Len(t, events.ofType(model.EventConversationCleared), 1)
}

func TestEmptyMessageIsRejected(t *testing.T) {
	p := testutil.NewMockProvider("anthropic", "m")
	o, _ := connected(t, p, nil)
	assert.ErrorIs(t, o.SendMessage(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, p.StreamCalls())
}

func TestSendMessageSurvivesCallerCancellation(t *testing.T) {
	p := testutil.NewMockProvider("anthropic", "m")
	p.StreamTurnFunc = func(ctx context.Context, _ string, _ []model.Message, _ []mcptypes.Tool, cb model.ChunkCallback) error {
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cb(model.TextDelta("done")); err != nil {
			return err
		}
		return cb(model.StreamEnd())
	}
	o, _ := connected(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, o.SendMessage(ctx, "hi"))
	cancel()
	o.Wait()

	require.Len(t, o.History(), 2)
}
