package model

import (
	"errors"
	"fmt"
)

var ErrHistoryInvariant = errors.New("tool result without matching tool use")

// ValidateHistory checks that every ToolResult block in message n references
// a ToolUse id emitted in message n-1.
func ValidateHistory(messages []Message) error {
	for i, msg := range messages {
		var previous map[string]bool
		for _, block := range msg.Blocks {
			result, ok := block.(ToolResultBlock)
			if !ok {
				continue
			}
			if i == 0 {
				return fmt.Errorf("%w: message 0 references %q", ErrHistoryInvariant, result.ToolUseID)
			}
			if previous == nil {
				previous = make(map[string]bool)
				for _, use := range messages[i-1].ToolUses() {
					previous[use.ID] = true
				}
			}
			if !previous[result.ToolUseID] {
				return fmt.Errorf("%w: message %d references %q", ErrHistoryInvariant, i, result.ToolUseID)
			}
		}
	}
	return nil
}
