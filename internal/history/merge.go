package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/title"
)

// Result is the outcome of a merge: the new session mapping and the resolved
// ids in input order, with duplicates reported at their last position.
type Result struct {
	Sessions map[string]*domain.Session
	Order    []string
}

// Merger normalizes decoded records into canonical sessions.
type Merger struct {
	Now   func() time.Time
	NewID func() string
}

// NewMerger returns a Merger using the wall clock and random UUIDs.
func NewMerger() *Merger {
	return &Merger{
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// Merge converts records into sessions. Titles are always regenerated from
// the first messages; a record's own title is ignored. When two records
// resolve to the same id the later one wins.
func (m *Merger) Merge(records []Record) *Result {
	now := m.Now()
	res := &Result{
		Sessions: make(map[string]*domain.Session, len(records)),
		Order:    make([]string, 0, len(records)),
	}

	for _, rec := range records {
		var id string
		var msgs []domain.Message
		switch r := rec.(type) {
		case CanonicalSession:
			id, msgs = r.ID, r.Messages
		case ServerSession:
			id, msgs = r.SessionID, r.Chats
		}
		if id == "" {
			id = m.NewID()
		}

		sess := &domain.Session{
			ID:        id,
			Title:     title.FromMessages(msgs),
			Messages:  make([]domain.Message, 0, len(msgs)),
			CreatedAt: now,
		}
		for _, msg := range msgs {
			msg = msg.Clone()
			if msg.ID == "" {
				msg.ID = m.NewID()
			}
			sess.Messages = append(sess.Messages, msg)
		}
		if len(msgs) > 0 && !msgs[0].Timestamp.IsZero() {
			sess.CreatedAt = msgs[0].Timestamp
		}

		if _, dup := res.Sessions[id]; dup {
			res.Order = removeID(res.Order, id)
		}
		res.Sessions[id] = sess
		res.Order = append(res.Order, id)
	}
	return res
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
