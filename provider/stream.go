package provider

import (
	"mcpdesk/config"
	"mcpdesk/model"
)

func emitToolUse(callback model.ChunkCallback, block *model.ToolUseBlock) error {
	return callback(model.ToolUseStart(block.ID, block.Name, block.Input))
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// rawResponse is what goes into the raw API log for one stream: the SDK's
// accumulated message, plus a note for tool calls that were dropped.
func rawResponse(accumulated any, abandoned []AbandonedCall) any {
	if len(abandoned) == 0 {
		return accumulated
	}
	return map[string]any{
		"response":           accumulated,
		"abandonedToolCalls": abandoned,
	}
}

func recordRaw(recorder model.RawRecorder, providerID, name string, request, response any, err error) {
	if recorder == nil {
		return
	}
	recorder.RecordRaw(providerID, name, request, response, err)
}

func modelInfos(providerID string, ids []string) []model.ModelInfo {
	out := make([]model.ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ModelInfo{ID: id, Name: id, Provider: providerID})
	}
	return out
}

func orDefaultTokens(n int64) int64 {
	if n > 0 {
		return n
	}
	return config.DefaultMaxTokens
}

func orDefaultTemperature(t *float64) float64 {
	if t != nil {
		return *t
	}
	return config.DefaultTemperature
}
