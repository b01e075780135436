package mcp

import (
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusRunning  ServerStatus = "running"
	StatusStopped  ServerStatus = "stopped"
	StatusError    ServerStatus = "error"
)

const (
	// LogRingSize bounds the stdout and stderr history kept per server.
	LogRingSize = 50

	DefaultDiscoveryTimeout = 3 * time.Second
	DefaultInvokeTimeout    = 30 * time.Second
)

type LogLine struct {
	Time   time.Time `json:"time"`
	Stream string    `json:"stream"` // "stdout" or "stderr"
	Text   string    `json:"text"`
}

// ToolDescriptor is a tool discovered on a server. Names are assumed unique
// across servers.
type ToolDescriptor struct {
	mcptypes.Tool
	ServerName string `json:"serverName"`
}

// ToolOutput is the flattened result of one tool invocation.
type ToolOutput struct {
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}

// ServerSnapshot is a point-in-time view of a ServerRecord for display.
type ServerSnapshot struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Status       ServerStatus  `json:"status"`
	PID          int           `json:"pid,omitempty"`
	StartTime    time.Time     `json:"startTime,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	LastError    string        `json:"lastError,omitempty"`
	RecentLogs   []LogLine     `json:"recentLogs"`
	RecentErrors []LogLine     `json:"recentErrors"`
	ToolCount    int           `json:"toolCount"`
}
