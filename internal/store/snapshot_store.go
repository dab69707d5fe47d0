package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/parley/internal/domain"
)

const (
	metaActiveSession = "active_session_id"
	metaSavedAt       = "saved_at"
)

// SnapshotStore persists the session snapshot in SQLite. Each Save replaces
// the stored state in a single transaction.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a snapshot store using the given database.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save writes snap, replacing whatever was stored before.
func (s *SnapshotStore) Save(snap *domain.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	err := s.db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM messages`); err != nil {
			return fmt.Errorf("clearing messages: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
			return fmt.Errorf("clearing sessions: %w", err)
		}

		sessStmt, err := tx.Prepare(`INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer sessStmt.Close()

		msgStmt, err := tx.Prepare(
			`INSERT INTO messages (msg_id, session_id, seq, role, content, timestamp, agent, intent, tool_calls)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer msgStmt.Close()

		for id, sess := range snap.Sessions {
			if sess == nil {
				continue
			}
			if _, err := sessStmt.Exec(id, sess.Title, formatTime(sess.CreatedAt)); err != nil {
				return fmt.Errorf("inserting session %s: %w", id, err)
			}
			for seq, m := range sess.Messages {
				toolCalls, err := encodeToolCalls(m.ToolCalls)
				if err != nil {
					return fmt.Errorf("encoding tool calls for %s: %w", m.ID, err)
				}
				if _, err := msgStmt.Exec(
					m.ID, id, seq, string(m.Role), m.Text, formatTime(m.Timestamp),
					m.Agent, m.Intent, toolCalls,
				); err != nil {
					return fmt.Errorf("inserting message %s: %w", m.ID, err)
				}
			}
		}

		if err := setMeta(tx, metaActiveSession, snap.ActiveSessionID); err != nil {
			return err
		}
		return setMeta(tx, metaSavedAt, formatTime(time.Now()))
	})
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. It returns nil when nothing was saved yet.
func (s *SnapshotStore) Load() (*domain.Snapshot, error) {
	var savedAt string
	err := s.db.sql.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, metaSavedAt).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot meta: %w", err)
	}

	snap := &domain.Snapshot{Sessions: make(map[string]*domain.Session)}
	err = s.db.sql.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, metaActiveSession).
		Scan(&snap.ActiveSessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading active session: %w", err)
	}

	if err := s.loadSessions(snap); err != nil {
		return nil, err
	}
	if err := s.loadMessages(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SnapshotStore) loadSessions(snap *domain.Snapshot) error {
	rows, err := s.db.sql.Query(`SELECT id, title, created_at FROM sessions`)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sess domain.Session
		var createdAt string
		if err := rows.Scan(&sess.ID, &sess.Title, &createdAt); err != nil {
			return fmt.Errorf("scanning session: %w", err)
		}
		sess.CreatedAt = parseTime(createdAt)
		sess.Messages = []domain.Message{}
		snap.Sessions[sess.ID] = &sess
	}
	return rows.Err()
}

func (s *SnapshotStore) loadMessages(snap *domain.Snapshot) error {
	rows, err := s.db.sql.Query(
		`SELECT msg_id, session_id, role, content, timestamp, agent, intent, tool_calls
		 FROM messages ORDER BY session_id, seq`)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Message
		var sessionID, role, ts string
		var toolCalls sql.NullString
		if err := rows.Scan(&m.ID, &sessionID, &role, &m.Text, &ts, &m.Agent, &m.Intent, &toolCalls); err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		m.Timestamp = parseTime(ts)
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				s.db.log.Warn().Err(err).Str("message", m.ID).Msg("dropping undecodable tool calls")
			}
		}
		if sess, ok := snap.Sessions[sessionID]; ok {
			sess.Messages = append(sess.Messages, m)
		}
	}
	return rows.Err()
}

// MemorySnapshotStore keeps the snapshot in process memory. It backs the
// "memory" session store mode and is lost on exit.
type MemorySnapshotStore struct {
	mu   sync.Mutex
	snap *domain.Snapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

// Save keeps a deep copy of snap.
func (m *MemorySnapshotStore) Save(snap *domain.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	return nil
}

// Load returns a copy of the last saved snapshot, or nil.
func (m *MemorySnapshotStore) Load() (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		`INSERT INTO store_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing meta %s: %w", key, err)
	}
	return nil
}

func encodeToolCalls(calls []domain.ToolCallResult) (sql.NullString, error) {
	if len(calls) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(calls)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
