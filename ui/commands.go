package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"mcpdesk/ledger"
	"mcpdesk/mcp"
	"mcpdesk/model"
)

const helpText = `Commands:
  /provider [id]   list connected providers or switch to one
  /model [query]   list models or pick the best match for query
  /clear           start a new conversation
  /status [name]   show tool server status
  /logs [n]        show the last n tool calls (default 10)
  /quit            exit`

// runCommand executes one slash command and reports its outcome as
// entries. It returns tea.Quit for /quit.
func (a *App) runCommand(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "provider":
		if arg == "" {
			a.addEntry(entrySystem, a.describeConnections())
			return nil
		}
		if err := a.chat.SwitchProvider(arg); err != nil {
			a.addEntry(entryError, err.Error())
		}

	case "model":
		providerID, _ := a.chat.Active()
		models := a.chat.Models(providerID)
		if arg == "" {
			a.addEntry(entrySystem, describeModels(models))
			return nil
		}
		m, err := matchModel(models, arg)
		if err != nil {
			a.addEntry(entryError, err.Error())
			return nil
		}
		if err := a.chat.SetModel(m.ID); err != nil {
			a.addEntry(entryError, err.Error())
			return nil
		}
		a.addEntry(entrySystem, "Model set to "+m.ID)

	case "clear":
		if err := a.chat.ClearConversation(); err != nil {
			a.addEntry(entryError, err.Error())
		}

	case "status":
		var snaps []mcp.ServerSnapshot
		if a.servers != nil {
			snaps = a.servers.Status()
		}
		a.addEntry(entrySystem, mcp.FormatStatus(snaps, arg))

	case "logs":
		n := 10
		if arg != "" {
			if _, err := fmt.Sscanf(arg, "%d", &n); err != nil || n <= 0 {
				a.addEntry(entryError, "usage: /logs [n]")
				return nil
			}
		}
		a.addEntry(entrySystem, formatCalls(a.chat.Ledger().Calls(), n))

	case "help":
		a.addEntry(entrySystem, helpText)

	case "quit", "exit":
		a.events.Close()
		return tea.Quit

	default:
		a.addEntry(entryError, fmt.Sprintf("unknown command /%s, try /help", name))
	}
	return nil
}

func (a *App) describeConnections() string {
	conns := a.chat.Connections()
	if len(conns) == 0 {
		return "No providers are connected."
	}
	active, _ := a.chat.Active()
	var b strings.Builder
	b.WriteString("Providers:")
	for _, c := range conns {
		marker := " "
		if c.Provider == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n %s %s (%d models)", marker, c.Provider, len(c.Models))
	}
	return b.String()
}

func describeModels(models []model.ModelInfo) string {
	if len(models) == 0 {
		return "The active provider reported no models."
	}
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = "  " + m.ID
	}
	return "Models:\n" + strings.Join(ids, "\n")
}

// matchModel prefers an exact id and otherwise takes the best fuzzy match.
func matchModel(models []model.ModelInfo, query string) (model.ModelInfo, error) {
	targets := make([]string, len(models))
	for i, m := range models {
		if m.ID == query {
			return m, nil
		}
		targets[i] = m.ID
	}
	matches := fuzzy.Find(query, targets)
	if len(matches) == 0 {
		return model.ModelInfo{}, fmt.Errorf("no model matches %q", query)
	}
	return models[matches[0].Index], nil
}

// formatCalls lists up to n call-log entries, newest first.
func formatCalls(entries []ledger.Entry, n int) string {
	if len(entries) == 0 {
		return "No tool calls yet."
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	var b strings.Builder
	b.WriteString("Tool calls:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n  %s %-13s %s/%s", e.Time.Format("15:04:05"), e.Kind, e.Source, e.Name)
		if e.Error != "" {
			b.WriteString("  error: " + e.Error)
		}
	}
	return b.String()
}
