package testutil

import (
	"context"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpdesk/model"
)

// StreamCall records the arguments of one StreamTurn call.
type StreamCall struct {
	Model    string
	Messages []model.Message
	Tools    []mcptypes.Tool
}

// MockProvider implements model.Provider for testing. By default every
// StreamTurn plays the next scripted phase; override the Func fields for
// anything else.
type MockProvider struct {
	InitializeFunc func(ctx context.Context) ([]model.ModelInfo, error)
	StreamTurnFunc func(ctx context.Context, modelID string, messages []model.Message, tools []mcptypes.Tool, callback model.ChunkCallback) error

	id           string
	defaultModel string

	mu     sync.Mutex
	phases [][]model.ChunkEvent
	calls  []StreamCall
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(id, modelName string) *MockProvider {
	mock := &MockProvider{id: id, defaultModel: modelName}
	mock.InitializeFunc = mock.defaultInitialize
	mock.StreamTurnFunc = mock.defaultStreamTurn
	return mock
}

// Script queues chunk sequences, one per StreamTurn call. A trailing
// StreamEnd is added when a phase does not end with one.
func (m *MockProvider) Script(phases ...[]model.ChunkEvent) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phases...)
	return m
}

// StreamCalls returns every StreamTurn call so far.
func (m *MockProvider) StreamCalls() []StreamCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StreamCall(nil), m.calls...)
}

func (m *MockProvider) defaultInitialize(ctx context.Context) ([]model.ModelInfo, error) {
	return []model.ModelInfo{
		{ID: m.defaultModel, Name: m.defaultModel, Provider: m.id},
		{ID: "mock-model-2", Name: "mock-model-2", Provider: m.id},
	}, nil
}

func (m *MockProvider) defaultStreamTurn(ctx context.Context, modelID string, messages []model.Message, tools []mcptypes.Tool, callback model.ChunkCallback) error {
	m.mu.Lock()
	var phase []model.ChunkEvent
	if len(m.phases) > 0 {
		phase = m.phases[0]
		m.phases = m.phases[1:]
	} else {
		phase = []model.ChunkEvent{model.TextDelta("Mock response")}
	}
	m.mu.Unlock()

	for _, ev := range phase {
		if err := callback(ev); err != nil {
			return err
		}
	}
	if len(phase) == 0 || phase[len(phase)-1].Kind != model.ChunkStreamEnd {
		return callback(model.StreamEnd())
	}
	return nil
}

func (m *MockProvider) ID() string {
	return m.id
}

func (m *MockProvider) DefaultModel() string {
	return m.defaultModel
}

func (m *MockProvider) Initialize(ctx context.Context) ([]model.ModelInfo, error) {
	return m.InitializeFunc(ctx)
}

func (m *MockProvider) StreamTurn(ctx context.Context, modelID string, messages []model.Message, tools []mcptypes.Tool, callback model.ChunkCallback) error {
	m.mu.Lock()
	m.calls = append(m.calls, StreamCall{
		Model:    modelID,
		Messages: model.CloneHistory(messages),
		Tools:    append([]mcptypes.Tool(nil), tools...),
	})
	m.mu.Unlock()
	return m.StreamTurnFunc(ctx, modelID, messages, tools, callback)
}
