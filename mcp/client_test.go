package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDiscoverAndInvoke(t *testing.T) {
	client := newPipeClient(t, WithTimeouts(5*time.Second, 5*time.Second))
	ctx := context.Background()

	tools := client.DiscoverTools(ctx)
	require.Len(t, tools, 2)

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
		assert.Equal(t, "fake", tool.ServerName)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	assert.True(t, names["echo"])
	assert.True(t, names["fail"])

	out, err := client.Invoke(ctx, "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.False(t, out.IsError)

	out, err = client.Invoke(ctx, "fail", nil)
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Equal(t, "nope", out.Content)

	assert.Zero(t, client.Pending())
}

func TestClientLeavesNoPendingEntries(t *testing.T) {
	client := newPipeClient(t, WithTimeouts(5*time.Second, 5*time.Second))
	ctx := context.Background()
	require.NotEmpty(t, client.DiscoverTools(ctx))

	for i := 0; i < 100; i++ {
		_, err := client.Invoke(ctx, "echo", map[string]any{"text": "x"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := client.Invoke(ctx, "echo", map[string]any{"text": "concurrent"})
			assert.NoError(t, err)
			assert.Equal(t, "concurrent", out.Content)
		}()
	}
	wg.Wait()

	assert.Zero(t, client.Pending())
}

func TestClientIgnoresUnroutableLines(t *testing.T) {
	client := NewClient("quiet", io.Discard)

	lines := []string{
		"",
		"Server listening on stdio",
		"{not json",
		`{"jsonrpc":"2.0","method":"notifications/message","params":{}}`,
		`{"jsonrpc":"2.0","id":42,"result":{}}`,
		`{"jsonrpc":"2.0","id":"abc","result":{}}`,
	}
	for _, line := range lines {
		assert.NotPanics(t, func() { client.HandleLine([]byte(line)) })
	}
	assert.Zero(t, client.Pending())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestClientWriteFailure(t *testing.T) {
	var reported error
	client := NewClient("broken", failingWriter{}, WithWriteErrorHandler(func(err error) {
		reported = err
	}))

	_, err := client.Invoke(context.Background(), "echo", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailed)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "broken", toolErr.Server)
	assert.Equal(t, "echo", toolErr.Tool)

	assert.Error(t, reported)
	assert.Zero(t, client.Pending())
}

func TestClientInvokeTimeout(t *testing.T) {
	client := NewClient("silent", io.Discard, WithTimeouts(time.Second, 50*time.Millisecond))

	_, err := client.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrInvocationTimeout)
	assert.Zero(t, client.Pending())
}

func TestClientDiscoveryTimeoutReturnsEmpty(t *testing.T) {
	client := NewClient("silent", io.Discard, WithTimeouts(100*time.Millisecond, time.Second))

	start := time.Now()
	tools := client.DiscoverTools(context.Background())
	elapsed := time.Since(start)

	assert.NotNil(t, tools)
	assert.Empty(t, tools)
	assert.Less(t, elapsed, time.Second)
	assert.Zero(t, client.Pending())
}

func TestClientCloseFailsPendingRequests(t *testing.T) {
	client := NewClient("closing", io.Discard, WithTimeouts(time.Second, 10*time.Second))

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Invoke(context.Background(), "echo", nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return client.Pending() == 1 }, time.Second, 5*time.Millisecond)
	client.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(time.Second):
		t.Fatal("invoke did not return after close")
	}

	_, err := client.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClientRPCErrorResponse(t *testing.T) {
	client := newPipeClient(t, WithTimeouts(5*time.Second, 5*time.Second))

	_, err := client.Invoke(context.Background(), "does_not_exist", nil)
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	var rpcErr *RPCError
	assert.ErrorAs(t, err, &rpcErr)
	assert.ErrorIs(t, err, ErrRemote)
}

func TestNextRequestIDIsMonotonic(t *testing.T) {
	prev := nextRequestID()
	for i := 0; i < 1000; i++ {
		id := nextRequestID()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw  string
		id   int64
		want bool
	}{
		{`1718000000000`, 1718000000000, true},
		{`"1718000000001"`, 1718000000001, true},
		{`7.0`, 7, true},
		{`"abc"`, 0, false},
		{`null`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		id, ok := parseID([]byte(tt.raw))
		assert.Equal(t, tt.want, ok, tt.raw)
		if tt.want {
			assert.Equal(t, tt.id, id, tt.raw)
		}
	}
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "", ResultText(nil))

	result := &mcptypes.CallToolResult{
		Content: []mcptypes.Content{
			mcptypes.TextContent{Type: "text", Text: "first"},
			mcptypes.TextContent{Type: "text", Text: "second"},
		},
	}
	assert.Equal(t, "first\nsecond", ResultText(result))

	withImage := &mcptypes.CallToolResult{
		Content: []mcptypes.Content{
			mcptypes.ImageContent{Type: "image", Data: "AAAA", MIMEType: "image/png"},
		},
	}
	assert.Contains(t, ResultText(withImage), `"mimeType":"image/png"`)
}

// echoingServer answers every request written to it with a tools/call
// result carrying text, delivered through an output pipe in small chunks
// the way a child's stdout arrives.
type echoingServer struct {
	pipe *outputPipe
	text string
}

func (s *echoingServer) Write(data []byte) (int, error) {
	var req struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &req); err != nil {
		return 0, err
	}
	result := mcptypes.NewToolResultText(s.text)
	resp, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	if err != nil {
		return 0, err
	}
	go pushInChunks(s.pipe, append(resp, '\n'), 32<<10)
	return len(data), nil
}

func TestClientReceivesLargeResult(t *testing.T) {
	server := &echoingServer{text: strings.Repeat("A", 2<<20)}
	client := NewClient("big", server, WithTimeouts(5*time.Second, 5*time.Second))
	server.pipe = newOutputPipe(func(line string) { client.HandleLine([]byte(line)) })
	t.Cleanup(func() {
		server.pipe.Close()
		server.pipe.Wait()
	})

	out, err := client.Invoke(context.Background(), "screenshot", nil)
	require.NoError(t, err)
	assert.Len(t, out.Content, 2<<20)
	assert.Zero(t, client.Pending())
}
