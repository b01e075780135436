package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"mcpdesk/config"
)

const (
	protocolVersion        = "2025-06-18"
	methodInitialize       = "initialize"
	notificationInitialize = "notifications/initialized"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var lastRequestID atomic.Int64

// nextRequestID returns a millisecond timestamp, bumped when needed so ids
// are strictly increasing across the process. Millisecond ids stay within
// the range JavaScript servers can echo back exactly.
func nextRequestID() int64 {
	for {
		last := lastRequestID.Load()
		id := time.Now().UnixMilli()
		if id <= last {
			id = last + 1
		}
		if lastRequestID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// Client speaks newline-delimited JSON-RPC 2.0 to one tool server. Requests
// are written to w; responses are fed in through HandleLine by whoever reads
// the server's stdout.
type Client struct {
	server string

	writeMu sync.Mutex
	w       io.Writer

	mu      sync.Mutex
	pending map[int64]chan rpcResponse
	closed  bool

	initMu      sync.Mutex
	initialized bool

	discoveryTimeout time.Duration
	invokeTimeout    time.Duration
	onWriteError     func(error)
}

type ClientOption func(*Client)

func WithTimeouts(discovery, invoke time.Duration) ClientOption {
	return func(c *Client) {
		if discovery > 0 {
			c.discoveryTimeout = discovery
		}
		if invoke > 0 {
			c.invokeTimeout = invoke
		}
	}
}

// WithWriteErrorHandler is called whenever a request cannot be written.
func WithWriteErrorHandler(fn func(error)) ClientOption {
	return func(c *Client) {
		c.onWriteError = fn
	}
}

func NewClient(server string, w io.Writer, opts ...ClientOption) *Client {
	c := &Client{
		server:           server,
		w:                w,
		pending:          make(map[int64]chan rpcResponse),
		discoveryTimeout: DefaultDiscoveryTimeout,
		invokeTimeout:    DefaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// HandleLine routes one line of server output. Lines that are not JSON, or
// whose id matches no outstanding request, are ignored.
func (c *Client) HandleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return
	}

	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return
	}
	if resp.Result == nil && resp.Error == nil {
		// Notification or server-initiated request.
		return
	}
	id, ok := parseID(resp.ID)
	if !ok {
		return
	}

	c.mu.Lock()
	ch, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if found {
		ch <- resp
	}
}

// Close fails every outstanding request. Later calls fail immediately.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func parseID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := n.Int64(); err == nil {
			return id, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		id, err := strconv.ParseInt(s, 10, 64)
		return id, err == nil
	}
	return 0, false
}

func (c *Client) write(msg rpcRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", msg.Method, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.w.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		if c.onWriteError != nil {
			c.onWriteError(err)
		}
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// call sends one request and waits for the matching response. The pending
// entry is attached before the write and always detached on return.
func (c *Client) call(ctx context.Context, method string, params any, timeout time.Duration, timeoutErr error) (json.RawMessage, error) {
	id := nextRequestID()
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.detach(id)

	if err := c.write(rpcRequest{JSONRPC: mcptypes.JSONRPC_VERSION, ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, timeoutErr
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutErr
		}
		return nil, ctx.Err()
	}
}

func (c *Client) detach(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) notify(method string, params any) error {
	return c.write(rpcRequest{JSONRPC: mcptypes.JSONRPC_VERSION, Method: method, Params: params})
}

// ensureInitialized performs the MCP handshake once. A server that answers
// with an error is treated as initialized; only a timeout is retried.
func (c *Client) ensureInitialized(ctx context.Context) {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return
	}

	params := mcptypes.InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    mcptypes.ClientCapabilities{},
		ClientInfo: mcptypes.Implementation{
			Name:    "mcpdesk",
			Version: "1.0.0",
		},
	}
	_, err := c.call(ctx, methodInitialize, params, c.discoveryTimeout, ErrDiscoveryTimeout)

	var rpcErr *RPCError
	switch {
	case err == nil:
		c.initialized = true
		if err := c.notify(notificationInitialize, nil); err != nil {
			config.DebugLog.Printf("[MCP] %s: initialized notification failed: %v", c.server, err)
		}
	case errors.As(err, &rpcErr):
		c.initialized = true
		config.DebugLog.Printf("[MCP] %s: initialize rejected, continuing: %v", c.server, err)
	default:
		config.DebugLog.Printf("[MCP] %s: initialize failed: %v", c.server, err)
	}
}

// DiscoverTools lists the server's tools. It never takes longer than the
// discovery timeout and returns an empty list on any failure.
func (c *Client) DiscoverTools(ctx context.Context) []ToolDescriptor {
	ctx, cancel := context.WithTimeout(ctx, c.discoveryTimeout)
	defer cancel()

	c.ensureInitialized(ctx)

	raw, err := c.call(ctx, string(mcptypes.MethodToolsList), map[string]any{}, c.discoveryTimeout, ErrDiscoveryTimeout)
	if err != nil {
		config.DebugLog.WithField("server", c.server).Printf("[MCP] tools/list failed: %v", err)
		return []ToolDescriptor{}
	}

	var result mcptypes.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		config.DebugLog.WithField("server", c.server).Printf("[MCP] malformed tools/list result: %v", err)
		return []ToolDescriptor{}
	}

	tools := make([]ToolDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.InputSchema.Type == "" {
			tool.InputSchema.Type = "object"
		}
		tools = append(tools, ToolDescriptor{Tool: tool, ServerName: c.server})
	}
	return tools
}

// Invoke calls one tool. Failures come back as *ToolError.
func (c *Client) Invoke(ctx context.Context, toolName string, input map[string]any) (ToolOutput, error) {
	if input == nil {
		input = map[string]any{}
	}
	params := mcptypes.CallToolParams{
		Name:      toolName,
		Arguments: input,
	}

	raw, err := c.call(ctx, string(mcptypes.MethodToolsCall), params, c.invokeTimeout, ErrInvocationTimeout)
	if err != nil {
		return ToolOutput{}, &ToolError{Server: c.server, Tool: toolName, Err: err}
	}

	result, err := mcptypes.ParseCallToolResult(&raw)
	if err != nil {
		return ToolOutput{}, &ToolError{Server: c.server, Tool: toolName, Err: fmt.Errorf("malformed tools/call result: %w", err)}
	}

	return ToolOutput{Content: ResultText(result), IsError: result.IsError}, nil
}

// ResultText flattens a tool result to text. Non-text content is rendered
// as JSON.
func ResultText(result *mcptypes.CallToolResult) string {
	if result == nil {
		return ""
	}
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcptypes.TextContent:
			parts = append(parts, c.Text)
		case *mcptypes.TextContent:
			parts = append(parts, c.Text)
		default:
			data, err := json.Marshal(c)
			if err != nil {
				parts = append(parts, fmt.Sprintf("%v", c))
				continue
			}
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}
