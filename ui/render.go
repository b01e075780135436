package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/mattn/go-runewidth"

	"mcpdesk/chat"
	"mcpdesk/config"
	"mcpdesk/model"
)

func (a *App) handleEvent(msg eventMsg) {
	ev := model.Event(msg)
	switch ev.Type {
	case model.EventConnectionStatus:
		if ev.Connected != nil && *ev.Connected {
			line := fmt.Sprintf("Connected to %s (%d models)", ev.Provider, len(ev.Models))
			if ev.Model != "" {
				line += ", using " + ev.Model
			}
			a.addEntry(entrySystem, line)
			return
		}
		a.addEntry(entryError, fmt.Sprintf("%s is unavailable: %s", ev.Provider, ev.Error))

	case model.EventCredentialsRequired:
		a.addEntry(entrySystem, fmt.Sprintf("%s needs an API key. Set %s and restart.", ev.Provider, credentialEnv(ev.Provider)))

	case model.EventConversationCleared:
		a.entries = nil
		a.lastReply = ""
		a.addEntry(entrySystem, "Conversation cleared")

	case model.EventStreamStart:
		a.addEntry(entryAssistant, "")
		last := &a.entries[len(a.entries)-1]
		last.messageID = ev.MessageID
		last.streaming = true

	case model.EventStreamDelta:
		if e := a.findMessage(ev.MessageID); e != nil {
			e.text += ev.Text
		}

	case model.EventStreamEnd:
		e := a.findMessage(ev.MessageID)
		if e == nil {
			return
		}
		e.streaming = false
		e.text = ev.Text
		if ev.Text == chat.UsingToolsPlaceholder {
			e.kind = entrySystem
			return
		}
		e.rendered = renderMarkdown(ev.Text, a.width)
		a.lastReply = ev.Text

	case model.EventStreamError:
		if e := a.findMessage(ev.MessageID); e != nil {
			e.streaming = false
		}
		a.status = ""
		a.addEntry(entryError, ev.Error)

	case model.EventToolCallStart:
		a.addEntry(entryTool, fmt.Sprintf("%s %s", ev.ToolName, compactJSON(ev.Input)))
		a.entries[len(a.entries)-1].toolID = ev.ToolID

	case model.EventToolCallExecuting:
		a.status = "Running " + ev.ToolName

	case model.EventToolCallComplete:
		a.status = ""
		e := a.findTool(ev.ToolID)
		if e == nil {
			return
		}
		if ev.Success != nil && *ev.Success {
			e.text += " ✓"
		} else {
			e.text += " ✗ " + ev.Error
		}
	}
}

func (a *App) findMessage(id string) *entry {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].messageID == id {
			return &a.entries[i]
		}
	}
	return nil
}

func (a *App) findTool(id string) *entry {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].kind == entryTool && a.entries[i].toolID == id {
			return &a.entries[i]
		}
	}
	return nil
}

func (a *App) updateViewportContent(gotoBottom bool) {
	var b strings.Builder
	for i, e := range a.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(a.formatEntry(e))
		b.WriteString("\n")
	}
	a.viewport.SetContent(b.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

func (a App) formatEntry(e entry) string {
	timestamp := DimStyle.Render("[" + e.at.Format("15:04") + "]")
	switch e.kind {
	case entryUser:
		return formatUserMessage(timestamp, e.text)
	case entryAssistant:
		header := timestamp + " " + AssistantStyle.Bold(true).Render("Assistant")
		switch {
		case e.streaming && e.text == "":
			return header + "\n" + a.spinner.View()
		case e.rendered != "":
			return header + "\n" + strings.TrimRight(e.rendered, "\n")
		default:
			return header + "\n" + e.text
		}
	case entryTool:
		return timestamp + " " + ToolStyle.Render("⚙ "+e.text)
	case entryError:
		return timestamp + " " + ErrorStyle.Render("Error: ") + e.text
	default:
		return timestamp + " " + DimStyle.Render(e.text)
	}
}

// formatUserMessage draws a bar down the left edge of the message body.
func formatUserMessage(timestamp, text string) string {
	bar := UserStyle.Render("┃")
	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.WriteString(timestamp + " " + UserStyle.Render("You") + "\n")
	for i, line := range lines {
		b.WriteString(bar + " " + line)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderMarkdown(text string, width int) string {
	if width <= 0 {
		return ""
	}
	return string(markdown.Render(text, max(width-4, 20), 2))
}

func truncateWidth(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return truncateWidth(string(data), 120)
}

func credentialEnv(providerID string) string {
	switch providerID {
	case config.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case config.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case config.ProviderWandb:
		return "WANDB_API_KEY and WANDB_PROJECT"
	}
	return "the provider's API key"
}
