package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mcpdesk/chat"
	"mcpdesk/config"
	"mcpdesk/mcp"
	"mcpdesk/model"
)

const (
	CmdSendMessage       = "sendMessage"
	CmdSwitchProvider    = "switchProvider"
	CmdSetModel          = "setModel"
	CmdClearConversation = "clearConversation"
	CmdGetHistory        = "getHistory"
	CmdGetToolLogs       = "getToolLogs"
	CmdGetAPILogs        = "getApiLogs"
	CmdClearLogs         = "clearLogs"
	CmdGetServerStatus   = "getServerStatus"
	CmdSetCredentials    = "setCredentials"
)

// Command is one inbound request. Only the fields its Type uses are read.
type Command struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Project  string `json:"project,omitempty"`
}

type Response struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// StatusSource reports tool server status. mcp.Manager implements it.
type StatusSource interface {
	Status() []mcp.ServerSnapshot
}

type Option func(*Server)

func WithStatusSource(src StatusSource) Option {
	return func(s *Server) {
		s.status = src
	}
}

// WithCredentials enables the setCredentials command.
func WithCredentials(store *config.CredentialStore) Option {
	return func(s *Server) {
		s.credentials = store
	}
}

type Server struct {
	hub         *Hub
	chat        *chat.Orchestrator
	status      StatusSource
	credentials *config.CredentialStore
	upgrader    websocket.Upgrader
}

func NewServer(hub *Hub, orchestrator *chat.Orchestrator, opts ...Option) *Server {
	s := &Server{
		hub:  hub,
		chat: orchestrator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     localOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// localOrigin accepts requests without an Origin header and browser pages
// served from the loopback interface or the filesystem.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		config.DebugLog.Printf("[Bridge] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		config.DebugLog.Printf("[Bridge] upgrade failed: %v", err)
		return
	}

	c := newClient(uuid.NewString(), conn)
	s.join(c)
	config.DebugLog.WithField("client", c.id).Printf("[Bridge] client connected (%d total)", s.hub.Clients())

	go c.writePump()
	s.readPump(r.Context(), c)

	s.hub.remove(c)
	close(c.done)
	config.DebugLog.WithField("client", c.id).Printf("[Bridge] client disconnected")
}

// join registers c with the hub before taking the greeting snapshot. A
// provider that connects in between is then either part of the snapshot or
// broadcast to c afterwards.
func (s *Server) join(c *client) {
	s.hub.add(c)
	s.greet(c)
}

// greet queues one connectionStatus per initialized provider.
func (s *Server) greet(c *client) {
	active, activeModel := s.chat.Active()
	for _, conn := range s.chat.Connections() {
		ev := model.Event{Type: model.EventConnectionStatus, Provider: conn.Provider, Connected: model.Bool(true), Models: conn.Models}
		if conn.Provider == active {
			ev.Model = activeModel
		}
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		c.offer(data)
	}
}

func (s *Server) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				config.DebugLog.WithField("client", c.id).Printf("[Bridge] read failed: %v", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(Response{Type: "response", Error: fmt.Sprintf("malformed command: %v", err)})
			continue
		}
		if cmd.ID == "" {
			cmd.ID = uuid.NewString()
		}
		c.reply(s.Dispatch(ctx, cmd))
	}
}

// Dispatch executes one command and builds its response.
func (s *Server) Dispatch(ctx context.Context, cmd Command) Response {
	resp := Response{Type: "response", ID: cmd.ID}
	data, err := s.handle(ctx, cmd)
	if err != nil {
		config.DebugLog.WithField("command", cmd.Type).Printf("[Bridge] command failed: %v", err)
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	resp.Data = data
	return resp
}

func (s *Server) handle(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case CmdSendMessage:
		return nil, s.chat.SendMessage(ctx, cmd.Text)
	case CmdSwitchProvider:
		return nil, s.chat.SwitchProvider(cmd.Provider)
	case CmdSetModel:
		return nil, s.chat.SetModel(cmd.Model)
	case CmdClearConversation:
		return nil, s.chat.ClearConversation()
	case CmdGetHistory:
		return s.chat.History(), nil
	case CmdGetToolLogs:
		return s.chat.Ledger().Calls(), nil
	case CmdGetAPILogs:
		return s.chat.Ledger().RawAPI(), nil
	case CmdClearLogs:
		s.chat.Ledger().Clear()
		return nil, nil
	case CmdGetServerStatus:
		if s.status == nil {
			return []mcp.ServerSnapshot{}, nil
		}
		return s.status.Status(), nil
	case CmdSetCredentials:
		return nil, s.setCredentials(ctx, cmd)
	}
	return nil, fmt.Errorf("unknown command type %q", cmd.Type)
}

func (s *Server) setCredentials(ctx context.Context, cmd Command) error {
	if s.credentials == nil {
		return errors.New("credentials cannot be changed on this server")
	}
	if cmd.Provider == "" || cmd.APIKey == "" {
		return errors.New("provider and apiKey are required")
	}
	s.credentials.Set(cmd.Provider, config.Credentials{APIKey: cmd.APIKey, Project: cmd.Project})
	return s.chat.Connect(ctx, cmd.Provider)
}
