package config

import "time"

const (
	DefaultListenAddr       = "127.0.0.1:8765"
	DefaultDiscoveryTimeout = 3 * time.Second
	DefaultInvokeTimeout    = 30 * time.Second
	DefaultMaxTokens        = 4000
	DefaultTemperature      = 0.7
)

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: ProviderAnthropic,
		Providers:       make(map[string]ProviderSettings),
		Bridge:          BridgeConfig{Listen: DefaultListenAddr},
	}
}

// DefaultServers mirrors the template: a filesystem server rooted at the
// home directory and a browser automation server, both disabled.
func DefaultServers() []MCPServerConfig {
	return []MCPServerConfig{
		{
			Name:        "filesystem",
			Command:     "npx",
			Args:        []string{"-y", "@modelcontextprotocol/server-filesystem", GetHomeDir()},
			Description: "File system operations",
			Disabled:    true,
		},
		{
			Name:        "browser",
			Command:     "npx",
			Args:        []string{"@browsermcp/mcp@latest"},
			Description: "Browser automation",
			Disabled:    true,
		},
	}
}

func GenerateUserConfigTemplate() string {
	return `# mcpdesk configuration
# Location: ~/.config/mcpdesk/config.toml
# This file uses TOML format: https://toml.io

# Directory for the debug log
data_directory = "~/.local/share/mcpdesk"

# Provider used on startup: anthropic, openai or wandb
default_provider = "anthropic"

# API keys are read from ANTHROPIC_API_KEY, OPENAI_API_KEY and WANDB_API_KEY.
# The W&B project can also come from WANDB_PROJECT.
[providers.anthropic]
model = "claude-3-5-sonnet-20241022"

[providers.openai]
model = "gpt-4o"

[providers.wandb]
# project = "team/project"
model = "meta-llama/Llama-3.1-8B-Instruct"

[bridge]
listen = "127.0.0.1:8765"

[timeouts]
discovery = "3s"
invoke = "30s"

# Tool servers can also live in a separate .toml, .yaml or .json file:
# mcp_servers_file = "servers.yaml"

[[mcp_servers]]
name = "filesystem"
command = "npx"
args = ["-y", "@modelcontextprotocol/server-filesystem", "${HOME}"]
description = "File system operations"
disabled = true

[[mcp_servers]]
name = "browser"
command = "npx"
args = ["@browsermcp/mcp@latest"]
description = "Browser automation"
disabled = true
`
}
