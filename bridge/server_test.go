package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpdesk/chat"
	"mcpdesk/config"
	"mcpdesk/mcp"
	"mcpdesk/model"
	"mcpdesk/provider"
	"mcpdesk/provider/testutil"
)

type frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Connected *bool           `json:"connected"`
	MessageID string          `json:"messageId"`
	Text      string          `json:"text"`
}

type harness struct {
	orch  *chat.Orchestrator
	creds *config.CredentialStore
	url   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	creds := config.NewCredentialStore()
	creds.Set("anthropic", config.Credentials{APIKey: "sk-ant"})

	factory := func(id string) (model.Provider, error) {
		if !creds.Has(id) {
			return nil, &provider.AuthError{Provider: id, Message: "API key is required"}
		}
		return testutil.NewMockProvider(id, id+"-default"), nil
	}

	hub := NewHub()
	orch := chat.New(factory, mcp.NewManager(mcp.NewSupervisor()), chat.WithEventSink(hub.Broadcast))
	require.NoError(t, orch.Connect(context.Background(), "anthropic"))

	srv := NewServer(hub, orch, WithCredentials(creds), WithStatusSource(mcp.NewManager(mcp.NewSupervisor())))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(orch.Wait)

	return &harness{orch: orch, creds: creds, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil reads frames until done returns true and returns all of them.
func readUntil(t *testing.T, conn *websocket.Conn, done func([]frame) bool) []frame {
	t.Helper()
	var frames []frame
	for !done(frames) {
		frames = append(frames, readFrame(t, conn))
	}
	return frames
}

func response(frames []frame, id string) (frame, bool) {
	for _, f := range frames {
		if f.Type == "response" && f.ID == id {
			return f, true
		}
	}
	return frame{}, false
}

func command(t *testing.T, conn *websocket.Conn, cmd Command) frame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
	frames := readUntil(t, conn, func(fs []frame) bool {
		_, ok := response(fs, cmd.ID)
		return ok
	})
	resp, _ := response(frames, cmd.ID)
	return resp
}

func TestBridgeGreetsWithConnectionStatus(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	greeting := readFrame(t, conn)
	assert.Equal(t, string(model.EventConnectionStatus), greeting.Type)
	assert.Equal(t, "anthropic", greeting.Provider)
	assert.Equal(t, "anthropic-default", greeting.Model)
	require.NotNil(t, greeting.Connected)
	assert.True(t, *greeting.Connected)
}

func TestBridgeSendMessageStreamsEvents(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(Command{ID: "1", Type: CmdSendMessage, Text: "hello"}))
	frames := readUntil(t, conn, func(fs []frame) bool {
		_, answered := response(fs, "1")
		return answered && containsType(fs, model.EventStreamEnd)
	})

	resp, _ := response(frames, "1")
	assert.True(t, resp.OK)

	var end frame
	for _, f := range frames {
		if f.Type == string(model.EventStreamEnd) {
			end = f
		}
	}
	assert.Equal(t, "Mock response", end.Text)
	assert.NotEmpty(t, end.MessageID)

	h.orch.Wait()
	history := command(t, conn, Command{ID: "2", Type: CmdGetHistory})
	require.True(t, history.OK)
	var messages []map[string]any
	require.NoError(t, json.Unmarshal(history.Data, &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0]["role"])
}

func containsType(frames []frame, typ model.EventType) bool {
	for _, f := range frames {
		if f.Type == string(typ) {
			return true
		}
	}
	return false
}

func TestBridgeCommands(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readFrame(t, conn)

	resp := command(t, conn, Command{ID: "sw", Type: CmdSwitchProvider, Provider: "openai"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "not initialized")

	resp = command(t, conn, Command{ID: "model", Type: CmdSetModel, Model: "claude-3-5-haiku-20241022"})
	assert.True(t, resp.OK)
	_, modelID := h.orch.Active()
	assert.Equal(t, "claude-3-5-haiku-20241022", modelID)

	resp = command(t, conn, Command{ID: "status", Type: CmdGetServerStatus})
	assert.True(t, resp.OK)
	assert.JSONEq(t, "[]", string(resp.Data))

	resp = command(t, conn, Command{ID: "logs", Type: CmdGetToolLogs})
	assert.True(t, resp.OK)

	resp = command(t, conn, Command{ID: "clear", Type: CmdClearLogs})
	assert.True(t, resp.OK)

	resp = command(t, conn, Command{ID: "bogus", Type: "launchRockets"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "launchRockets")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	malformed := readFrame(t, conn)
	assert.Equal(t, "response", malformed.Type)
	assert.False(t, malformed.OK)
}

func TestBridgeSetCredentialsConnectsProvider(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readFrame(t, conn)

	resp := command(t, conn, Command{ID: "bad", Type: CmdSetCredentials, Provider: "openai"})
	assert.False(t, resp.OK)

	require.NoError(t, conn.WriteJSON(Command{ID: "creds", Type: CmdSetCredentials, Provider: "openai", APIKey: "sk-openai"}))
	frames := readUntil(t, conn, func(fs []frame) bool {
		_, ok := response(fs, "creds")
		return ok
	})
	resp, _ = response(frames, "creds")
	require.True(t, resp.OK, resp.Error)

	var status frame
	for _, f := range frames {
		if f.Type == string(model.EventConnectionStatus) && f.Provider == "openai" {
			status = f
		}
	}
	require.NotNil(t, status.Connected)
	assert.True(t, *status.Connected)

	resp = command(t, conn, Command{ID: "sw", Type: CmdSwitchProvider, Provider: "openai"})
	assert.True(t, resp.OK)
	providerID, _ := h.orch.Active()
	assert.Equal(t, "openai", providerID)
}

func TestHubDropsEventsForFullClients(t *testing.T) {
	hub := NewHub()
	slow := newClient("slow", nil)
	hub.add(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendQueueSize*2; i++ {
			hub.Broadcast(model.Event{Type: model.EventStreamDelta, Text: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full client")
	}
	assert.Len(t, slow.send, sendQueueSize)
}

func TestJoinSeesProvidersConnectingConcurrently(t *testing.T) {
	for i := 0; i < 50; i++ {
		creds := config.NewCredentialStore()
		creds.Set("anthropic", config.Credentials{APIKey: "sk-ant"})
		creds.Set("openai", config.Credentials{APIKey: "sk-oai"})
		factory := func(id string) (model.Provider, error) {
			return testutil.NewMockProvider(id, id+"-default"), nil
		}

		hub := NewHub()
		orch := chat.New(factory, mcp.NewManager(mcp.NewSupervisor()), chat.WithEventSink(hub.Broadcast))
		srv := NewServer(hub, orch, WithCredentials(creds))

		c := newClient("c", nil)
		connected := make(chan error, 1)
		go func() { connected <- orch.Connect(context.Background(), "openai") }()
		srv.join(c)
		require.NoError(t, <-connected)

		var seen bool
		for len(c.send) > 0 {
			var f frame
			require.NoError(t, json.Unmarshal(<-c.send, &f))
			if f.Type == string(model.EventConnectionStatus) && f.Provider == "openai" {
				seen = true
			}
		}
		require.True(t, seen, "iteration %d: openai connection status never reached the client", i)
		orch.Wait()
	}
}

func TestLocalOrigin(t *testing.T) {
	tests := map[string]bool{
		"":                       true,
		"null":                   true,
		"http://localhost:3000":  true,
		"http://127.0.0.1:8765":  true,
		"http://[::1]:8765":      true,
		"file://":                true,
		"https://evil.example":   false,
		"http://192.168.1.20:80": false,
	}
	for origin, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, localOrigin(r), origin)
	}
}
