package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

type BridgeConfig struct {
	Listen string `toml:"listen"`
}

type TimeoutConfig struct {
	Discovery string `toml:"discovery"`
	Invoke    string `toml:"invoke"`
}

type UserConfig struct {
	DataDirectory   string                      `toml:"data_directory,omitempty"`
	DefaultProvider string                      `toml:"default_provider"`
	Providers       map[string]ProviderSettings `toml:"providers"`
	Bridge          BridgeConfig                `toml:"bridge"`
	Timeouts        TimeoutConfig               `toml:"timeouts"`
	MCPServersFile  string                      `toml:"mcp_servers_file,omitempty"`
	MCPServers      []MCPServerConfig           `toml:"mcp_servers,omitempty"`
}

type Config struct {
	Path             string
	DataDirectory    string
	DefaultProvider  string
	Providers        map[string]ProviderSettings
	ListenAddr       string
	DiscoveryTimeout time.Duration
	InvokeTimeout    time.Duration
	Servers          []MCPServerConfig
	Credentials      *CredentialStore
}

var Debug = false

// DebugLog is shared by every package. It discards output until InitDebugLog
// enables it.
var DebugLog = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return l
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Provider returns the settings for a provider with defaults filled in.
func (c *Config) Provider(id string) ProviderSettings {
	s := c.Providers[id]
	return s.withDefaults(id)
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("MCPDESK_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if p := os.Getenv("MCPDESK_PROVIDER"); p != "" {
		c.DefaultProvider = p
	}
	if listen := os.Getenv("MCPDESK_LISTEN"); listen != "" {
		c.ListenAddr = listen
	}
}

func CheckDebug() bool {
	debug := os.Getenv("MCPDESK_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog points DebugLog at <dataDir>/debug.log when debugging is
// requested via MCPDESK_DEBUG or force.
func InitDebugLog(dataDir string, force bool) {
	if !force && !CheckDebug() {
		return
	}

	if err := EnsureDir(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create data directory %s: %v\n", dataDir, err)
		return
	}

	logPath := filepath.Join(dataDir, "debug.log")
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	Debug = true
	DebugLog.SetOutput(f)
	DebugLog.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	DebugLog.Printf("=== Debug logging started (MCPDESK_DEBUG=%s) ===", os.Getenv("MCPDESK_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads the user config from path (or the default location), creating
// a commented template on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
	}
	path = ExpandPath(path)

	userCfg, err := LoadUserConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	cfg := &Config{
		Path:            path,
		DataDirectory:   userCfg.DataDirectory,
		DefaultProvider: userCfg.DefaultProvider,
		Providers:       userCfg.Providers,
		ListenAddr:      userCfg.Bridge.Listen,
		Servers:         userCfg.MCPServers,
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = GetDefaultDataDir()
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderAnthropic
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderSettings)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	cfg.DiscoveryTimeout, err = parseTimeout(userCfg.Timeouts.Discovery, DefaultDiscoveryTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery timeout: %w", err)
	}
	cfg.InvokeTimeout, err = parseTimeout(userCfg.Timeouts.Invoke, DefaultInvokeTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid invoke timeout: %w", err)
	}

	if userCfg.MCPServersFile != "" {
		serversPath := ExpandPath(userCfg.MCPServersFile)
		if !filepath.IsAbs(serversPath) {
			serversPath = filepath.Join(filepath.Dir(path), serversPath)
		}
		servers, err := LoadServers(serversPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load tool servers: %w", err)
		}
		cfg.Servers = append(cfg.Servers, servers...)
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = DefaultServers()
	}

	cfg.applyEnvOverrides()
	cfg.Credentials = CredentialsFromEnv()

	if err := os.MkdirAll(cfg.DataDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func parseTimeout(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", value)
	}
	return d, nil
}
