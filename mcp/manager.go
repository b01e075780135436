package mcp

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mcpdesk/config"
)

const defaultRetryEmptyAfter = 30 * time.Second

type discovery struct {
	tools []ToolDescriptor
	at    time.Time
}

// Manager is the tool registry the orchestrator talks to. It discovers
// tools on running servers, routes invocations by tool name and answers
// the built-in status tool itself.
type Manager struct {
	supervisor *Supervisor
	statusTool ToolDescriptor

	mu       sync.Mutex
	cache    map[string]discovery
	registry *ToolAggregator

	flight          singleflight.Group
	retryEmptyAfter time.Duration
}

func NewManager(supervisor *Supervisor) *Manager {
	registry := NewToolAggregator()
	statusTool := statusToolDescriptor()
	registry.Add(statusTool)

	return &Manager{
		supervisor:      supervisor,
		statusTool:      statusTool,
		cache:           make(map[string]discovery),
		registry:        registry,
		retryEmptyAfter: defaultRetryEmptyAfter,
	}
}

func (m *Manager) Supervisor() *Supervisor {
	return m.supervisor
}

func (m *Manager) StartAll(ctx context.Context, configs []config.MCPServerConfig) error {
	return m.supervisor.StartAll(ctx, configs)
}

func (m *Manager) StopAll(ctx context.Context) {
	m.supervisor.StopAll(ctx)
}

// DiscoverTools asks one server for its tools and caches the answer. It
// returns an empty list when the server is not running or does not answer
// within the discovery timeout.
func (m *Manager) DiscoverTools(ctx context.Context, serverName string) []ToolDescriptor {
	v, _, _ := m.flight.Do(serverName, func() (any, error) {
		client, err := m.supervisor.Client(serverName)
		if err != nil {
			config.DebugLog.Printf("[MCP] discover %s skipped: %v", serverName, err)
			return []ToolDescriptor{}, nil
		}

		start := time.Now()
		tools := client.DiscoverTools(ctx)
		config.DebugLog.WithField("server", serverName).Printf("[MCP] discovered %d tools in %s", len(tools), time.Since(start).Round(time.Millisecond))

		m.mu.Lock()
		m.cache[serverName] = discovery{tools: tools, at: time.Now()}
		m.mu.Unlock()
		return tools, nil
	})
	return v.([]ToolDescriptor)
}

// DiscoverAll runs discovery on every given server concurrently, each with
// its own timeout, and waits for all of them.
func (m *Manager) DiscoverAll(ctx context.Context, servers []string) {
	var g errgroup.Group
	for _, name := range servers {
		g.Go(func() error {
			m.DiscoverTools(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
}

// Tools returns every tool currently available: the built-in status tool
// plus the tools of running servers. Servers that have not been discovered
// yet are discovered first.
func (m *Manager) Tools(ctx context.Context) []ToolDescriptor {
	running := m.supervisor.Running()
	now := time.Now()

	var stale []string
	m.mu.Lock()
	for name := range m.cache {
		if !slices.Contains(running, name) {
			delete(m.cache, name)
		}
	}
	for _, name := range running {
		d, ok := m.cache[name]
		if !ok || (len(d.tools) == 0 && now.Sub(d.at) >= m.retryEmptyAfter) {
			stale = append(stale, name)
		}
	}
	m.mu.Unlock()

	if len(stale) > 0 {
		m.DiscoverAll(ctx, stale)
	}

	registry := NewToolAggregator()
	registry.Add(m.statusTool)

	m.mu.Lock()
	for _, name := range running {
		registry.Add(m.cache[name].tools...)
	}
	m.registry = registry
	m.mu.Unlock()

	return registry.Descriptors()
}

// Lookup finds a tool in the registry built by the last Tools call.
func (m *Manager) Lookup(toolName string) (ToolDescriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Lookup(toolName)
}

// Invoke calls a tool on a named server.
func (m *Manager) Invoke(ctx context.Context, serverName, toolName string, input map[string]any) (ToolOutput, error) {
	client, err := m.supervisor.Client(serverName)
	if err != nil {
		return ToolOutput{}, &ToolError{Server: serverName, Tool: toolName, Err: err}
	}
	return client.Invoke(ctx, toolName, input)
}

// Execute resolves a tool by name and runs it. The status tool is handled
// locally. The returned server name is empty when the tool is unknown.
func (m *Manager) Execute(ctx context.Context, toolName string, input map[string]any) (ToolOutput, string, error) {
	if toolName == StatusToolName {
		return ToolOutput{Content: FormatStatus(m.Status(), statusFilter(input))}, BuiltinServerName, nil
	}

	desc, ok := m.Lookup(toolName)
	if !ok {
		return ToolOutput{}, "", &ToolError{Tool: toolName, Err: ErrUnknownTool}
	}
	out, err := m.Invoke(ctx, desc.ServerName, toolName, input)
	return out, desc.ServerName, err
}

// Status returns server snapshots in config order with tool counts filled in.
func (m *Manager) Status() []ServerSnapshot {
	snaps := m.supervisor.Snapshots()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range snaps {
		snaps[i].ToolCount = len(m.cache[snaps[i].Name].tools)
	}
	return snaps
}

// RunningServers returns snapshots of running servers only.
func (m *Manager) RunningServers() []ServerSnapshot {
	var running []ServerSnapshot
	for _, snap := range m.Status() {
		if snap.Status == StatusRunning {
			running = append(running, snap)
		}
	}
	return running
}
