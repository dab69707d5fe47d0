package domain

import (
	"maps"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// ToolCallResult is a tool invocation reported by the assistant API.
// The client never interprets it.
type ToolCallResult struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
}

// Message is a single turn in a chat session. A message is never changed
// after creation; ID is its identity.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Text      string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Agent     string           `json:"agent,omitempty"`
	Intent    string           `json:"intent,omitempty"`
	ToolCalls []ToolCallResult `json:"tool_calls,omitempty"`
}

// Clone returns a copy of the message that shares no slices or maps with m.
func (m Message) Clone() Message {
	if m.ToolCalls == nil {
		return m
	}
	calls := make([]ToolCallResult, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		calls[i] = ToolCallResult{
			Name:   tc.Name,
			Args:   maps.Clone(tc.Args),
			Result: tc.Result,
		}
	}
	m.ToolCalls = calls
	return m
}
