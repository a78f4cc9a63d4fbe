package agent

import (
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
	"github.com/Protocol-Lattice/lattice-discord/pkg/prompts"
)

// State flows through the agent graph for a single run.
type State struct {
	Handler  prompts.Handler
	ThreadID string
	Query    string
	System   string
	Model    models.Candidate

	Messages []models.Message

	ToolCount      int
	ToolsUsed      []string
	ToolsExhausted bool

	// queued is set once the user query has been appended for this run.
	queued bool
}

// TrimHistory keeps at most limit messages and starts the window on a user
// turn, so a tool result is never separated from the call that produced it.
func TrimHistory(msgs []models.Message, limit int) []models.Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	start := len(msgs) - limit
	for start < len(msgs) && msgs[start].Role != models.RoleUser {
		start++
	}
	return append([]models.Message(nil), msgs[start:]...)
}
