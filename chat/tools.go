package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mcpdesk/config"
	"mcpdesk/ledger"
	"mcpdesk/model"
)

// executeTools runs each requested tool in order. A failing tool becomes an
// error-flagged result and never stops the ones after it.
func (o *Orchestrator) executeTools(ctx context.Context, uses []model.ToolUseBlock) []model.ToolResultBlock {
	results := make([]model.ToolResultBlock, 0, len(uses))
	for _, use := range uses {
		results = append(results, o.executeTool(ctx, use))
	}
	return results
}

func (o *Orchestrator) executeTool(ctx context.Context, use model.ToolUseBlock) (result model.ToolResultBlock) {
	result.ToolUseID = use.ID

	server := ""
	if o.toolbox != nil {
		if desc, ok := o.toolbox.Lookup(use.Name); ok {
			server = desc.ServerName
		}
	}
	log := config.DebugLog.WithFields(logrus.Fields{"tool": use.Name, "toolId": use.ID, "server": server})

	o.emit(model.Event{Type: model.EventToolCallExecuting, ToolID: use.ID, ToolName: use.Name, Input: use.Input})
	o.ledger.Record(ledger.KindToolInvoke, server, use.Name, use.Input, nil, nil)

	start := time.Now()
	var execErr error
	defer func() {
		if r := recover(); r != nil {
			execErr = fmt.Errorf("tool %s panicked: %v", use.Name, r)
			result.Content = execErr.Error()
			result.IsError = true
		}

		o.ledger.Record(ledger.KindToolComplete, server, use.Name, use.Input, result.Content, execErr)

		ev := model.Event{Type: model.EventToolCallComplete, ToolID: use.ID, ToolName: use.Name, Success: model.Bool(!result.IsError)}
		if result.IsError {
			ev.Error = result.Content
		}
		o.emit(ev)
		log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Printf("[Chat] tool finished (error=%v)", result.IsError)
	}()

	if o.toolbox == nil {
		execErr = errors.New("no tools are available")
		result.Content = execErr.Error()
		result.IsError = true
		return result
	}

	out, srv, err := o.toolbox.Execute(ctx, use.Name, use.Input)
	if srv != "" {
		server = srv
	}
	switch {
	case err != nil:
		execErr = err
		result.Content = err.Error()
		result.IsError = true
	case out.IsError:
		execErr = errors.New(out.Content)
		result.Content = out.Content
		result.IsError = true
	default:
		result.Content = out.Content
	}
	return result
}
