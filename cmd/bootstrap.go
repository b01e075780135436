package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mcpdesk/chat"
	"mcpdesk/config"
	"mcpdesk/ledger"
	"mcpdesk/mcp"
	"mcpdesk/model"
	"mcpdesk/provider"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the long-lived components shared by the TUI and the bridge.
type runtime struct {
	cfg     *config.Config
	manager *mcp.Manager
	chat    *chat.Orchestrator
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	config.InitDebugLog(cfg.DataDir(), debug)
	if err := config.ValidateServers(cfg.Servers); err != nil {
		return nil, fmt.Errorf("invalid tool server config: %w", err)
	}
	return cfg, nil
}

func newManager(cfg *config.Config) *mcp.Manager {
	supervisor := mcp.NewSupervisor(mcp.WithRPCTimeouts(cfg.DiscoveryTimeout, cfg.InvokeTimeout))
	return mcp.NewManager(supervisor)
}

func bootstrap(sink model.EventSink) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	manager := newManager(cfg)
	calls := ledger.New()
	orchestrator := chat.New(
		provider.NewFactory(cfg, calls),
		manager,
		chat.WithEventSink(sink),
		chat.WithLedger(calls),
		chat.WithDefaultProvider(cfg.DefaultProvider),
	)

	config.DebugLog.WithFields(logrus.Fields{
		"config":   cfg.Path,
		"servers":  len(cfg.Servers),
		"provider": cfg.DefaultProvider,
	}).Printf("[Startup] configuration loaded")

	return &runtime{cfg: cfg, manager: manager, chat: orchestrator}, nil
}

// start spawns the enabled tool servers and then connects every enabled
// provider. Failures are logged and surface as events; none of them stop
// the session.
func (r *runtime) start(ctx context.Context) {
	if err := r.manager.StartAll(ctx, r.cfg.Servers); err != nil {
		config.DebugLog.Warnf("[Startup] some tool servers failed to start: %v", err)
	}
	for _, id := range provider.EnabledProviders(r.cfg) {
		if err := r.chat.Connect(ctx, id); err != nil {
			config.DebugLog.WithField("provider", id).Printf("[Startup] provider not connected: %v", err)
		}
	}
}

func (r *runtime) shutdown() {
	stopServers(r.manager)
}

func stopServers(manager *mcp.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.StopAll(ctx)
	config.DebugLog.Printf("[Startup] tool servers stopped")
}
