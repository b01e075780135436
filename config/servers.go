package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MCPServerConfig describes one tool server child process. Env values may
// reference the parent environment as ${VAR}; interpolation happens at spawn.
type MCPServerConfig struct {
	Name        string            `toml:"name" yaml:"name" json:"name"`
	Command     string            `toml:"command" yaml:"command" json:"command"`
	Args        []string          `toml:"args,omitempty" yaml:"args,omitempty" json:"args,omitempty"`
	Env         map[string]string `toml:"env,omitempty" yaml:"env,omitempty" json:"env,omitempty"`
	Description string            `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	Disabled    bool              `toml:"disabled,omitempty" yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

type ServersFile struct {
	Servers []MCPServerConfig `toml:"servers" yaml:"servers" json:"servers"`
}

// LoadServers reads a tool server list. The format follows the file
// extension: .toml, .yaml/.yml or .json.
func LoadServers(path string) ([]MCPServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file ServersFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("failed to decode servers toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to decode servers yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to decode servers json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported servers file extension %q", ext)
	}

	if err := ValidateServers(file.Servers); err != nil {
		return nil, err
	}
	return file.Servers, nil
}

// ValidateServers rejects records without a name or command and duplicate names.
func ValidateServers(servers []MCPServerConfig) error {
	seen := make(map[string]bool, len(servers))
	for i, s := range servers {
		if s.Name == "" {
			return fmt.Errorf("server #%d: name is required", i+1)
		}
		if s.Command == "" {
			return fmt.Errorf("server %q: command is required", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("server %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// EnabledServers filters out disabled records, keeping config order.
func EnabledServers(servers []MCPServerConfig) []MCPServerConfig {
	enabled := make([]MCPServerConfig, 0, len(servers))
	for _, s := range servers {
		if !s.Disabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}
