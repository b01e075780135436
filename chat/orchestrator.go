// Package chat runs conversation turns: it streams from the active
// provider, executes the tools the model asked for, and streams the
// continuation with the results appended.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"mcpdesk/config"
	"mcpdesk/ledger"
	"mcpdesk/mcp"
	"mcpdesk/model"
	"mcpdesk/provider"
)

// UsingToolsPlaceholder is the streamEnd text of a phase that produced no
// text but requested tools.
const UsingToolsPlaceholder = "Using tools..."

// Toolbox is the part of mcp.Manager the orchestrator needs.
type Toolbox interface {
	Tools(ctx context.Context) []mcp.ToolDescriptor
	Lookup(toolName string) (mcp.ToolDescriptor, bool)
	Execute(ctx context.Context, toolName string, input map[string]any) (mcp.ToolOutput, string, error)
	RunningServers() []mcp.ServerSnapshot
}

// Connection describes one initialized provider.
type Connection struct {
	Provider string            `json:"provider"`
	Models   []model.ModelInfo `json:"models"`
}

type connection struct {
	provider model.Provider
	models   []model.ModelInfo
}

type Option func(*Orchestrator)

// WithEventSink sets where UI events go. Without one they are dropped.
func WithEventSink(sink model.EventSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

func WithLedger(l *ledger.Ledger) Option {
	return func(o *Orchestrator) {
		o.ledger = l
	}
}

// WithDefaultProvider makes Connect activate this provider when it
// connects, even if another one is already active.
func WithDefaultProvider(providerID string) Option {
	return func(o *Orchestrator) {
		o.defaultProvider = providerID
	}
}

type Orchestrator struct {
	factory         provider.Factory
	toolbox         Toolbox
	ledger          *ledger.Ledger
	sink            model.EventSink
	defaultProvider string

	mu       sync.Mutex
	state    SessionState
	conns    map[string]connection
	order    []string
	inFlight bool

	turns sync.WaitGroup
}

func New(factory provider.Factory, toolbox Toolbox, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory: factory,
		toolbox: toolbox,
		conns:   make(map[string]connection),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ledger == nil {
		o.ledger = ledger.New()
	}
	return o
}

func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

func (o *Orchestrator) emit(ev model.Event) {
	if o.sink != nil {
		o.sink(ev)
	}
}

// Connect builds and initializes the adapter for providerID. Credential
// problems are reported as a credentialsRequired event as well as returned.
func (o *Orchestrator) Connect(ctx context.Context, providerID string) error {
	models, p, err := o.initialize(ctx, providerID)
	if err != nil {
		config.DebugLog.WithField("provider", providerID).Printf("[Chat] connect failed: %v", err)
		if provider.IsAuthError(err) {
			o.emit(model.Event{Type: model.EventCredentialsRequired, Provider: providerID, Error: err.Error()})
		}
		o.emit(model.Event{Type: model.EventConnectionStatus, Provider: providerID, Connected: model.Bool(false), Error: err.Error()})
		return err
	}

	o.mu.Lock()
	if _, ok := o.conns[providerID]; !ok {
		o.order = append(o.order, providerID)
	}
	o.conns[providerID] = connection{provider: p, models: models}
	activate := !o.inFlight && (o.state.ProviderID == "" || providerID == o.defaultProvider)
	if activate {
		o.state.ProviderID = providerID
		o.state.ModelID = p.DefaultModel()
	}
	active, activeModel := o.state.Active()
	o.mu.Unlock()

	config.DebugLog.WithFields(logrus.Fields{"provider": providerID, "models": len(models)}).Printf("[Chat] provider connected")

	ev := model.Event{Type: model.EventConnectionStatus, Provider: providerID, Connected: model.Bool(true), Models: models}
	if active == providerID {
		ev.Model = activeModel
	}
	o.emit(ev)
	return nil
}

func (o *Orchestrator) initialize(ctx context.Context, providerID string) ([]model.ModelInfo, model.Provider, error) {
	if o.factory == nil {
		return nil, nil, fmt.Errorf("no provider factory configured")
	}
	p, err := o.factory(providerID)
	if err != nil {
		return nil, nil, err
	}
	models, err := p.Initialize(ctx)
	if err != nil {
		return nil, nil, err
	}
	return models, p, nil
}

// Connections lists the initialized providers in the order they connected.
func (o *Orchestrator) Connections() []Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Connection, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, Connection{Provider: id, Models: o.conns[id].models})
	}
	return out
}

// Active returns the selected provider and model ids.
func (o *Orchestrator) Active() (string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Active()
}

func (o *Orchestrator) Models(providerID string) []model.ModelInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conns[providerID].models
}

// SwitchProvider makes providerID active with its default model. The
// provider must have been connected; otherwise the active state is left
// unchanged.
func (o *Orchestrator) SwitchProvider(providerID string) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	conn, ok := o.conns[providerID]
	if !ok {
		o.mu.Unlock()
		return &ProviderNotInitializedError{Provider: providerID}
	}
	o.state.ProviderID = providerID
	o.state.ModelID = conn.provider.DefaultModel()
	modelID := o.state.ModelID
	o.mu.Unlock()

	config.DebugLog.WithFields(logrus.Fields{"provider": providerID, "model": modelID}).Printf("[Chat] switched provider")
	o.emit(model.Event{Type: model.EventConnectionStatus, Provider: providerID, Model: modelID, Connected: model.Bool(true), Models: conn.models})
	return nil
}

// SetModel selects a model on the active provider. Any non-empty id is
// accepted; the provider reports unknown ids on the next turn.
func (o *Orchestrator) SetModel(modelID string) error {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return fmt.Errorf("model id is empty")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return ErrTurnInFlight
	}
	if o.state.ProviderID == "" {
		return ErrNoProvider
	}
	o.state.ModelID = modelID
	config.DebugLog.WithFields(logrus.Fields{"provider": o.state.ProviderID, "model": modelID}).Printf("[Chat] model set")
	return nil
}

// ClearConversation drops the history and re-arms the first-turn preamble.
func (o *Orchestrator) ClearConversation() error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	o.state.reset()
	o.mu.Unlock()

	config.DebugLog.Printf("[Chat] conversation cleared")
	o.emit(model.Event{Type: model.EventConversationCleared})
	return nil
}

// History returns a copy of the committed history.
func (o *Orchestrator) History() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.CloneHistory(o.state.History)
}

func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Wait blocks until every turn started by SendMessage has finished.
func (o *Orchestrator) Wait() {
	o.turns.Wait()
}

// turn is the snapshot a running turn works from. History is only written
// back on success.
type turn struct {
	text          string
	providerID    string
	modelID       string
	provider      model.Provider
	history       []model.Message
	firstTurnDone bool
}

func (o *Orchestrator) beginTurn(text string) (*turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return nil, ErrTurnInFlight
	}
	conn, ok := o.conns[o.state.ProviderID]
	if !ok {
		return nil, ErrNoProvider
	}
	o.inFlight = true
	return &turn{
		text:          text,
		providerID:    o.state.ProviderID,
		modelID:       o.state.ModelID,
		provider:      conn.provider,
		history:       model.CloneHistory(o.state.History),
		firstTurnDone: o.state.firstTurnDone,
	}, nil
}

func (o *Orchestrator) endTurn(history []model.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if history != nil {
		o.state.History = history
		o.state.firstTurnDone = true
	}
	o.inFlight = false
}

// SendMessage starts a turn in the background. It fails immediately with
// ErrTurnInFlight if a turn is already running; the outcome of the turn
// itself is reported through events.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	t, err := o.beginTurn(text)
	if err != nil {
		return err
	}

	o.turns.Add(1)
	go func() {
		defer o.turns.Done()
		_ = o.runTurn(context.WithoutCancel(ctx), t)
	}()
	return nil
}

// RunTurn runs one turn to completion.
func (o *Orchestrator) RunTurn(ctx context.Context, text string) error {
	t, err := o.beginTurn(text)
	if err != nil {
		return err
	}
	return o.runTurn(ctx, t)
}

func (o *Orchestrator) runTurn(ctx context.Context, t *turn) error {
	var committed []model.Message
	defer func() { o.endTurn(committed) }()

	log := config.DebugLog.WithFields(logrus.Fields{"provider": t.providerID, "model": t.modelID})

	var descs []mcp.ToolDescriptor
	var running []mcp.ServerSnapshot
	if o.toolbox != nil {
		descs = o.toolbox.Tools(ctx)
		running = o.toolbox.RunningServers()
	}

	userText := t.text
	if !t.firstTurnDone && len(descs) > 0 {
		userText = withPreamble(buildToolPreamble(descs, running), t.text)
	}
	working := append(t.history, model.NewTextMessage(model.RoleUser, userText))

	log.WithField("tools", len(descs)).Printf("[Chat] starting turn")
	initial, err := o.stream(ctx, t, working, mcp.MCPTools(descs), false)
	if err != nil {
		return o.fail(initial.messageID, err)
	}

	if len(initial.toolUses) == 0 {
		if initial.text != "" {
			working = append(working, model.NewTextMessage(model.RoleAssistant, initial.text))
		}
		committed = working
		log.Printf("[Chat] turn complete")
		return nil
	}

	results := o.executeTools(ctx, initial.toolUses)

	blocks := make([]model.ContentBlock, 0, len(initial.toolUses)+1)
	if initial.text != "" {
		blocks = append(blocks, model.TextBlock{Text: initial.text})
	}
	resultBlocks := make([]model.ContentBlock, 0, len(results))
	for i, use := range initial.toolUses {
		blocks = append(blocks, use)
		resultBlocks = append(resultBlocks, results[i])
	}
	working = append(working,
		model.NewBlockMessage(model.RoleAssistant, blocks...),
		model.NewBlockMessage(model.RoleUser, resultBlocks...),
	)
	if err := model.ValidateHistory(working); err != nil {
		return o.fail(initial.messageID, err)
	}

	final, err := o.stream(ctx, t, working, nil, true)
	if err != nil {
		return o.fail(final.messageID, err)
	}
	if final.text != "" {
		working = append(working, model.NewTextMessage(model.RoleAssistant, final.text))
	}

	committed = working
	log.WithField("toolCalls", len(results)).Printf("[Chat] turn complete")
	return nil
}

func (o *Orchestrator) fail(messageID string, err error) error {
	config.DebugLog.WithField("messageId", messageID).Printf("[Chat] turn failed: %v", err)
	o.emit(model.Event{Type: model.EventStreamError, MessageID: messageID, Error: err.Error()})
	return err
}

type phaseResult struct {
	messageID string
	text      string
	toolUses  []model.ToolUseBlock
}

// stream runs one streaming phase. Tool uses are only collected here, never
// executed, and are ignored entirely in the continuation phase.
func (o *Orchestrator) stream(ctx context.Context, t *turn, messages []model.Message, tools []mcptypes.Tool, continuation bool) (phaseResult, error) {
	res := phaseResult{messageID: uuid.NewString()}
	o.emit(model.Event{Type: model.EventStreamStart, MessageID: res.messageID, Provider: t.providerID, Model: t.modelID})

	var text strings.Builder
	err := t.provider.StreamTurn(ctx, t.modelID, messages, tools, func(chunk model.ChunkEvent) error {
		switch chunk.Kind {
		case model.ChunkTextDelta:
			if chunk.Text == "" {
				return nil
			}
			text.WriteString(chunk.Text)
			o.emit(model.Event{Type: model.EventStreamDelta, MessageID: res.messageID, Text: chunk.Text})
		case model.ChunkToolUseStart:
			if chunk.ToolUse == nil {
				return nil
			}
			if continuation {
				config.DebugLog.WithField("tool", chunk.ToolUse.Name).Warnf("[Chat] ignoring tool call in continuation phase")
				return nil
			}
			use := *chunk.ToolUse
			if use.Input == nil {
				use.Input = map[string]any{}
			}
			res.toolUses = append(res.toolUses, use)
			o.emit(model.Event{Type: model.EventToolCallStart, MessageID: res.messageID, ToolID: use.ID, ToolName: use.Name, Input: use.Input})
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	res.text = text.String()
	endText := res.text
	if endText == "" && len(res.toolUses) > 0 {
		endText = UsingToolsPlaceholder
	}
	o.emit(model.Event{Type: model.EventStreamEnd, MessageID: res.messageID, Text: endText})
	return res, nil
}
