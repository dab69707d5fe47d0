package domain

import "time"

// DefaultTitle is the title of a session that has not been named yet.
const DefaultTitle = "New Chat"

// Session is one conversation thread and its ordered message history.
// Messages are kept in append order.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// HasDefaultTitle reports whether the session still carries the sentinel title.
func (s *Session) HasDefaultTitle() bool {
	return s.Title == DefaultTitle
}

// Snapshot is the durable form of the session state. Request locks are
// runtime state and are never part of it.
type Snapshot struct {
	Sessions        map[string]*Session `json:"sessions"`
	ActiveSessionID string              `json:"activeSessionId,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		Sessions:        make(map[string]*Session, len(s.Sessions)),
		ActiveSessionID: s.ActiveSessionID,
	}
	for id, sess := range s.Sessions {
		c.Sessions[id] = sess.Clone()
	}
	return c
}
