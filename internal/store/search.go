package store

import (
	"fmt"
	"strings"
)

// MessageHit is one full-text search match over persisted messages.
type MessageHit struct {
	SessionID string  `json:"sessionId"`
	Title     string  `json:"title"`
	MessageID string  `json:"messageId"`
	Role      string  `json:"role"`
	Snippet   string  `json:"snippet"`
	Rank      float64 `json:"rank"`
}

// MessageSearch queries the FTS5 index kept over the messages table.
type MessageSearch struct {
	db *DB
}

// NewMessageSearch creates a message search using the given database.
func NewMessageSearch(db *DB) *MessageSearch {
	return &MessageSearch{db: db}
}

// Search finds messages matching query, best matches first. The query is
// matched as a phrase. Limit of 0 defaults to 20.
func (m *MessageSearch) Search(query string, limit int) ([]MessageHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := m.db.sql.Query(
		`SELECT s.id, s.title, msg.msg_id, msg.role,
		        snippet(messages_fts, 0, '[', ']', '…', 12), rank
		 FROM messages_fts
		 JOIN messages msg ON msg.id = messages_fts.rowid
		 JOIN sessions s ON s.id = msg.session_id
		 WHERE messages_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		phrase(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	var hits []MessageHit
	for rows.Next() {
		var h MessageHit
		if err := rows.Scan(&h.SessionID, &h.Title, &h.MessageID, &h.Role, &h.Snippet, &h.Rank); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// phrase quotes s as an FTS5 string so user input is never parsed as
// query syntax.
func phrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
