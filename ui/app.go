// Package ui is the terminal front end: a chat viewport over the
// orchestrator's event stream with slash commands for provider, model and
// tool server control.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"mcpdesk/chat"
	"mcpdesk/config"
	"mcpdesk/mcp"
)

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryTool
	entrySystem
	entryError
)

type entry struct {
	kind      entryKind
	text      string
	rendered  string // markdown output for finished assistant replies
	at        time.Time
	messageID string
	toolID    string
	streaming bool
}

// StatusSource reports tool server status. mcp.Manager implements it.
type StatusSource interface {
	Status() []mcp.ServerSnapshot
}

type App struct {
	chat    *chat.Orchestrator
	servers StatusSource
	events  *EventQueue

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	entries   []entry
	status    string
	lastReply string

	width  int
	height int
	ready  bool
}

func NewApp(orchestrator *chat.Orchestrator, servers StatusSource, events *EventQueue) App {
	ta := textarea.New()
	ta.Placeholder = "Send a message or /help for commands..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)
	// Enter submits; Alt+Enter inserts a newline.
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	return App{
		chat:     orchestrator,
		servers:  servers,
		events:   events,
		viewport: viewport.New(0, 0),
		textarea: ta,
		spinner:  sp,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, a.spinner.Tick, a.events.next())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-6, 1)
		a.textarea.SetWidth(msg.Width)
		a.ready = true
		for i := range a.entries {
			if a.entries[i].kind == entryAssistant && !a.entries[i].streaming {
				a.entries[i].rendered = renderMarkdown(a.entries[i].text, a.width)
			}
		}
		a.updateViewportContent(true)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			a.events.Close()
			return a, tea.Quit
		case "enter":
			return a.submit()
		case "ctrl+y":
			a.copyLastReply()
			return a, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		}

	case eventMsg:
		a.handleEvent(msg)
		a.updateViewportContent(true)
		return a, a.events.next()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.streaming() {
			a.updateViewportContent(false)
		}
		return a, cmd
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a App) View() string {
	if !a.ready {
		return "Starting..."
	}
	separator := BorderStyle.Render(strings.Repeat("─", a.width))
	footer := FormatFooter("Enter", "Send", "Alt+Enter", "Newline", "Ctrl+Y", "Copy reply", "/help", "Commands", "Ctrl+C", "Quit")
	return strings.Join([]string{
		a.viewport.View(),
		separator,
		a.textarea.View(),
		a.statusLine(),
		footer,
	}, "\n")
}

func (a App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.textarea.Value())
	if text == "" {
		return a, nil
	}
	a.textarea.Reset()

	if strings.HasPrefix(text, "/") {
		cmd := a.runCommand(text)
		a.updateViewportContent(true)
		return a, cmd
	}

	if err := a.chat.SendMessage(context.Background(), text); err != nil {
		a.addEntry(entryError, err.Error())
	} else {
		a.addEntry(entryUser, text)
	}
	a.updateViewportContent(true)
	return a, nil
}

func (a *App) copyLastReply() {
	if a.lastReply == "" {
		a.status = "Nothing to copy yet"
		return
	}
	if err := clipboard.WriteAll(a.lastReply); err != nil {
		config.DebugLog.Printf("[UI] clipboard write failed: %v", err)
		a.status = "Copy failed: " + err.Error()
		return
	}
	a.status = "Copied last reply"
}

func (a *App) addEntry(kind entryKind, text string) {
	a.entries = append(a.entries, entry{kind: kind, text: text, at: time.Now()})
}

func (a App) streaming() bool {
	for _, e := range a.entries {
		if e.streaming {
			return true
		}
	}
	return false
}

func (a App) statusLine() string {
	var parts []string
	if providerID, modelID := a.chat.Active(); providerID != "" {
		parts = append(parts, providerID+"/"+modelID)
	} else {
		parts = append(parts, "no provider")
	}
	if a.servers != nil {
		running := 0
		snaps := a.servers.Status()
		for _, s := range snaps {
			if s.Status == mcp.StatusRunning {
				running++
			}
		}
		parts = append(parts, fmt.Sprintf("%d/%d servers", running, len(snaps)))
	}
	if a.chat.Busy() {
		parts = append(parts, a.spinner.View()+" working")
	}
	if a.status != "" {
		parts = append(parts, a.status)
	}
	return StatusStyle.Render(truncateWidth(strings.Join(parts, " · "), a.width))
}

// Run starts the terminal UI and blocks until the user quits.
func Run(orchestrator *chat.Orchestrator, servers StatusSource, events *EventQueue) error {
	p := tea.NewProgram(NewApp(orchestrator, servers, events), tea.WithAltScreen())
	_, err := p.Run()
	events.Close()
	return err
}
