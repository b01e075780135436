package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcpdesk/config"
)

// fakeServerEnv makes the test binary act as a tool server when it is
// spawned by the supervisor tests.
const fakeServerEnv = "MCPDESK_FAKE_SERVER"

func TestMain(m *testing.M) {
	switch os.Getenv(fakeServerEnv) {
	case "":
		os.Exit(m.Run())
	case "serve":
		_ = serveFake(context.Background(), os.Stdin, os.Stdout)
	case "burst":
		for i := 0; i < 10000; i++ {
			fmt.Fprintf(os.Stdout, "log line %d\n", i)
		}
		_ = serveFake(context.Background(), os.Stdin, os.Stdout)
	case "hang":
		_, _ = io.Copy(io.Discard, os.Stdin)
	case "crash":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(3)
	}
	os.Exit(0)
}

func newFakeMCPServer() *server.MCPServer {
	s := server.NewMCPServer("fake", "1.0.0", server.WithToolCapabilities(false))

	s.AddTool(mcptypes.NewTool("echo",
		mcptypes.WithDescription("Echo the given text"),
		mcptypes.WithString("text", mcptypes.Required()),
	), func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		text, _ := req.GetArguments()["text"].(string)
		return mcptypes.NewToolResultText(text), nil
	})

	s.AddTool(mcptypes.NewTool("fail",
		mcptypes.WithDescription("Always reports a tool error"),
	), func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		return mcptypes.NewToolResultError("nope"), nil
	})

	return s
}

func serveFake(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(newFakeMCPServer()).Listen(ctx, in, out)
}

// newPipeClient connects a Client to an in-process fake server over pipes,
// reading responses through the same output pipe the supervisor uses.
func newPipeClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()

	toServerR, toServerW := io.Pipe()
	fromServerR, fromServerW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = serveFake(ctx, toServerR, fromServerW)
		fromServerW.Close()
	}()

	client := NewClient("fake", toServerW, opts...)
	out := newOutputPipe(func(line string) { client.HandleLine([]byte(line)) })

	var readers sync.WaitGroup
	readers.Add(1)
	go pump(fromServerR, out, &readers)

	t.Cleanup(func() {
		cancel()
		toServerW.Close()
		fromServerR.Close()
		client.Close()
		readers.Wait()
		out.Wait()
	})
	return client
}

func fakeServerConfig(name, mode string) config.MCPServerConfig {
	return config.MCPServerConfig{
		Name:        name,
		Command:     os.Args[0],
		Args:        []string{"-test.run=^$"},
		Env:         map[string]string{fakeServerEnv: mode},
		Description: "fake " + mode + " server",
	}
}
