package chat

import "mcpdesk/model"

// SessionState is everything one conversation owns. The orchestrator holds
// exactly one and never shares it outside its lock.
type SessionState struct {
	ProviderID string
	ModelID    string
	History    []model.Message

	// firstTurnDone is set once the first turn commits, so the tool
	// preamble is only ever sent once per conversation.
	firstTurnDone bool
}

// Active returns the selected provider and model ids.
func (s *SessionState) Active() (string, string) {
	return s.ProviderID, s.ModelID
}

func (s *SessionState) reset() {
	s.History = nil
	s.firstTurnDone = false
}
