package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	globalconfig "mcpdesk/config"
	"mcpdesk/ledger"
)

const defaultStopGrace = 2 * time.Second

// ServerRecord tracks one configured tool server for the life of the
// process. Records survive their child so logs stay inspectable.
type ServerRecord struct {
	Name   string
	Config globalconfig.MCPServerConfig

	mu        sync.RWMutex
	status    ServerStatus
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	pid       int
	startTime time.Time
	lastErr   string
	stopping  bool
	client    *Client
	exited    chan struct{}

	logs   *ledger.Ring[LogLine]
	errors *ledger.Ring[LogLine]

	stdout *outputPipe
	stderr *outputPipe
}

func newServerRecord(cfg globalconfig.MCPServerConfig) *ServerRecord {
	return &ServerRecord{
		Name:   cfg.Name,
		Config: cfg,
		status: StatusStarting,
		exited: make(chan struct{}),
		logs:   ledger.NewRing[LogLine](LogRingSize),
		errors: ledger.NewRing[LogLine](LogRingSize),
	}
}

func (r *ServerRecord) Status() ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *ServerRecord) Client() *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

func (r *ServerRecord) fail(err error) {
	r.mu.Lock()
	r.status = StatusError
	r.lastErr = err.Error()
	r.mu.Unlock()

	r.errors.Push(LogLine{Time: time.Now(), Stream: "supervisor", Text: err.Error()})
	globalconfig.DebugLog.WithField("server", r.Name).Printf("[MCP] server marked error: %v", err)
}

func (r *ServerRecord) snapshot() ServerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := ServerSnapshot{
		Name:         r.Name,
		Description:  r.Config.Description,
		Status:       r.status,
		PID:          r.pid,
		StartTime:    r.startTime,
		LastError:    r.lastErr,
		RecentLogs:   r.logs.Items(),
		RecentErrors: r.errors.Items(),
	}
	if r.status == StatusRunning && !r.startTime.IsZero() {
		snap.Uptime = time.Since(r.startTime).Round(time.Second)
	}
	return snap
}

func (r *ServerRecord) handleStdoutLine(line string) {
	r.logs.Push(logLine("stdout", line))
	if client := r.Client(); client != nil && strings.HasPrefix(strings.TrimSpace(line), "{") {
		client.HandleLine([]byte(line))
	}
}

func (r *ServerRecord) handleStderrLine(line string) {
	r.errors.Push(logLine("stderr", line))
	if globalconfig.Debug {
		globalconfig.DebugLog.WithField("server", r.Name).Debugf("[MCP] stderr: %s", line)
	}
}

// logLine caps the stored text so each ring slot stays small however long
// the line was.
func logLine(stream, line string) LogLine {
	text, _ := ledger.Truncate(line)
	return LogLine{Time: time.Now(), Stream: stream, Text: text}
}

// Supervisor spawns and tears down tool server child processes.
type Supervisor struct {
	mu      sync.RWMutex
	records map[string]*ServerRecord
	order   []string

	runtime          *RuntimeChecker
	discoveryTimeout time.Duration
	invokeTimeout    time.Duration
	stopGrace        time.Duration
}

type SupervisorOption func(*Supervisor)

func WithRPCTimeouts(discovery, invoke time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.discoveryTimeout = discovery
		s.invokeTimeout = invoke
	}
}

func WithStopGrace(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.stopGrace = d
	}
}

func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		records:          make(map[string]*ServerRecord),
		runtime:          NewRuntimeChecker(),
		discoveryTimeout: DefaultDiscoveryTimeout,
		invokeTimeout:    DefaultInvokeTimeout,
		stopGrace:        defaultStopGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAll spawns every enabled server. Failures are recorded on the
// server's record and also returned joined.
func (s *Supervisor) StartAll(ctx context.Context, configs []globalconfig.MCPServerConfig) error {
	var errs []error
	for _, cfg := range configs {
		if cfg.Disabled {
			continue
		}
		if err := s.Start(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start spawns one server. A running server with the same name is an error.
func (s *Supervisor) Start(ctx context.Context, cfg globalconfig.MCPServerConfig) error {
	s.mu.Lock()
	if existing, ok := s.records[cfg.Name]; ok {
		if st := existing.Status(); st == StatusRunning || st == StatusStarting {
			s.mu.Unlock()
			return fmt.Errorf("server %s already running", cfg.Name)
		}
	} else {
		s.order = append(s.order, cfg.Name)
	}
	rec := newServerRecord(cfg)
	s.records[cfg.Name] = rec
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		rec.fail(err)
		return err
	}

	if _, err := s.runtime.CheckCommand(cfg.Command); err != nil {
		rec.fail(err)
		return fmt.Errorf("server %s: %w", cfg.Name, err)
	}

	args := make([]string, len(cfg.Args))
	for i, arg := range cfg.Args {
		args[i] = InterpolateEnv(arg, os.LookupEnv)
	}

	cmd := exec.Command(cfg.Command, args...)
	cmd.Env = configToEnv(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		rec.fail(fmt.Errorf("stdin pipe: %w", err))
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		rec.fail(fmt.Errorf("stdout pipe: %w", err))
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		rec.fail(fmt.Errorf("stderr pipe: %w", err))
		return err
	}

	globalconfig.DebugLog.WithFields(map[string]any{
		"server":  cfg.Name,
		"command": cfg.Command,
		"args":    args,
	}).Printf("[MCP] StartAll: spawning server")

	if err := cmd.Start(); err != nil {
		err = fmt.Errorf("spawn failed: %w", err)
		rec.fail(err)
		return fmt.Errorf("server %s: %w", cfg.Name, err)
	}

	client := NewClient(cfg.Name, stdin,
		WithTimeouts(s.discoveryTimeout, s.invokeTimeout),
		WithWriteErrorHandler(func(err error) {
			rec.fail(fmt.Errorf("write failed: %w", err))
		}),
	)

	rec.mu.Lock()
	rec.cmd = cmd
	rec.stdin = stdin
	rec.pid = cmd.Process.Pid
	rec.startTime = time.Now()
	rec.client = client
	rec.status = StatusRunning
	rec.stdout = newOutputPipe(rec.handleStdoutLine)
	rec.stderr = newOutputPipe(rec.handleStderrLine)
	rec.mu.Unlock()

	globalconfig.DebugLog.Printf("[MCP] StartAll: server '%s' running with PID %d", cfg.Name, rec.pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go pump(stdout, rec.stdout, &readers)
	go pump(stderr, rec.stderr, &readers)
	go s.wait(rec, cmd, &readers)

	return nil
}

// pump copies raw reads into the pipe. Processing happens on the pipe's
// own goroutine.
func pump(r io.Reader, p *outputPipe, wg *sync.WaitGroup) {
	defer wg.Done()
	defer p.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.Push(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) wait(rec *ServerRecord, cmd *exec.Cmd, readers *sync.WaitGroup) {
	readers.Wait()
	err := cmd.Wait()

	rec.stdout.Wait()
	rec.stderr.Wait()

	rec.mu.Lock()
	stopping := rec.stopping
	if rec.status != StatusError || stopping {
		rec.status = StatusStopped
	}
	if err != nil && !stopping {
		rec.lastErr = fmt.Sprintf("exited: %v", err)
	}
	client := rec.client
	rec.mu.Unlock()

	if client != nil {
		client.Close()
	}
	close(rec.exited)

	globalconfig.DebugLog.Printf("[MCP] server '%s' exited (err: %v, requested: %v)", rec.Name, err, stopping)
}

// Stop terminates one server: SIGTERM first, then a kill after the grace
// period. Errors are logged only.
func (s *Supervisor) Stop(name string) {
	rec := s.Record(name)
	if rec == nil {
		return
	}
	s.terminate(rec)
}

func (s *Supervisor) terminate(rec *ServerRecord) {
	rec.mu.Lock()
	cmd := rec.cmd
	running := rec.status == StatusRunning || rec.status == StatusError
	if cmd == nil || cmd.Process == nil || !running {
		rec.mu.Unlock()
		return
	}
	rec.stopping = true
	rec.mu.Unlock()

	select {
	case <-rec.exited:
		return
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		globalconfig.DebugLog.Printf("[MCP] StopAll: SIGTERM to '%s' failed, killing: %v", rec.Name, err)
		if err := cmd.Process.Kill(); err != nil {
			globalconfig.DebugLog.Printf("[MCP] StopAll: kill '%s' failed: %v", rec.Name, err)
		}
	}

	select {
	case <-rec.exited:
	case <-time.After(s.stopGrace):
		globalconfig.DebugLog.Printf("[MCP] StopAll: '%s' ignored SIGTERM for %s, killing (PID: %d)", rec.Name, s.stopGrace, rec.pid)
		if err := cmd.Process.Kill(); err != nil {
			globalconfig.DebugLog.Printf("[MCP] StopAll: kill '%s' failed: %v", rec.Name, err)
		}
		select {
		case <-rec.exited:
		case <-time.After(s.stopGrace):
			globalconfig.DebugLog.Printf("[MCP] StopAll: '%s' did not exit after kill", rec.Name)
		}
	}
}

// StopAll terminates every running server in parallel. It never fails.
func (s *Supervisor) StopAll(ctx context.Context) {
	records := s.Records()
	globalconfig.DebugLog.Printf("[MCP] StopAll: stopping %d servers", len(records))

	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(rec *ServerRecord) {
			defer wg.Done()
			s.terminate(rec)
		}(rec)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		globalconfig.DebugLog.Printf("[MCP] StopAll: gave up waiting: %v", ctx.Err())
	}
}

func (s *Supervisor) Record(name string) *ServerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[name]
}

// Records returns all records in config order.
func (s *Supervisor) Records() []*ServerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ServerRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.records[name])
	}
	return out
}

// Client returns the RPC client of a running server.
func (s *Supervisor) Client(name string) (*Client, error) {
	rec := s.Record(name)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s is not configured", ErrServerUnavailable, name)
	}
	if rec.Status() != StatusRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrServerUnavailable, name, rec.Status())
	}
	return rec.Client(), nil
}

// Status returns a snapshot per server keyed by name.
func (s *Supervisor) Status() map[string]ServerSnapshot {
	out := make(map[string]ServerSnapshot)
	for _, rec := range s.Records() {
		out[rec.Name] = rec.snapshot()
	}
	return out
}

// Snapshots returns the same data as Status in config order.
func (s *Supervisor) Snapshots() []ServerSnapshot {
	records := s.Records()
	out := make([]ServerSnapshot, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.snapshot())
	}
	return out
}

// Running returns the names of running servers in config order.
func (s *Supervisor) Running() []string {
	var names []string
	for _, rec := range s.Records() {
		if rec.Status() == StatusRunning {
			names = append(names, rec.Name)
		}
	}
	return names
}
