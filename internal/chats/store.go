// Package chats owns the client-side chat session state: the session map,
// the active session pointer, per-session request locks and the optimistic
// send protocol.
package chats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/history"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/logging"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSendInFlight    = errors.New("a send is already in flight for this session")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnknownSession  = errors.New("unknown session")
	ErrNoSender        = errors.New("no sender configured")
	ErrNoHistorySource = errors.New("no history source configured")
)

// Persister stores and restores the durable snapshot. Load returns a nil
// snapshot when nothing has been saved yet.
type Persister interface {
	Save(snap *domain.Snapshot) error
	Load() (*domain.Snapshot, error)
}

// SendResult is the assistant's reply to a sent message.
type SendResult struct {
	Message   string
	Agent     string
	Intent    string
	ToolCalls []domain.ToolCallResult
}

// Sender delivers a user message to the assistant API.
type Sender interface {
	Send(ctx context.Context, sessionID, text string) (*SendResult, error)
}

// HistorySource fetches the raw server-side history records.
type HistorySource interface {
	FetchHistory(ctx context.Context) ([]json.RawMessage, error)
}

// Identity reports whether the user is signed in.
type Identity interface {
	IsAuthenticated() bool
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sets the snapshot persister.
func WithPersister(p Persister) Option { return func(s *Store) { s.persister = p } }

// WithSender sets the assistant API sender.
func WithSender(snd Sender) Option { return func(s *Store) { s.sender = snd } }

// WithHistory sets the server history source.
func WithHistory(h HistorySource) Option { return func(s *Store) { s.history = h } }

// WithIdentity sets the authentication check used before sends and syncs.
func WithIdentity(id Identity) Option { return func(s *Store) { s.identity = id } }

// WithHooks sets the manager that receives state change events.
func WithHooks(m *hooks.Manager) Option { return func(s *Store) { s.hooks = m } }

// WithSendTimeout bounds each external send. Zero means no bound beyond the
// caller's context.
func WithSendTimeout(d time.Duration) Option { return func(s *Store) { s.sendTimeout = d } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDGenerator overrides session and message id generation.
func WithIDGenerator(gen func() string) Option { return func(s *Store) { s.newID = gen } }

// Store is the single owner of all session state. Every read accessor
// returns a deep copy.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	activeID string
	drafts   map[string]string
	locks    *RequestLock

	persister   Persister
	sender      Sender
	history     HistorySource
	identity    Identity
	hooks       *hooks.Manager
	merger      *history.Merger
	sendTimeout time.Duration
	now         func() time.Time
	newID       func() string
	syncGroup   singleflight.Group

	log *logging.Logger
}

// New creates an empty store. Call Init to restore persisted state.
func New(log *logging.Logger, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*domain.Session),
		drafts:   make(map[string]string),
		locks:    NewRequestLock(),
		now:      time.Now,
		newID:    uuid.NewString,
		log:      log.Sub("chats"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.merger = &history.Merger{Now: s.now, NewID: s.newID}
	return s
}

// Init restores the persisted snapshot and clears all request locks. A
// dangling active pointer is dropped. On a load error the store starts empty
// and the error is returned.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks.Reset()
	s.sessions = make(map[string]*domain.Session)
	s.activeID = ""
	clear(s.drafts)

	if s.persister == nil {
		return nil
	}
	snap, err := s.persister.Load()
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	for id, sess := range snap.Sessions {
		if sess == nil {
			continue
		}
		c := sess.Clone()
		c.ID = id
		s.sessions[id] = c
	}
	if _, ok := s.sessions[snap.ActiveSessionID]; ok {
		s.activeID = snap.ActiveSessionID
	}

	s.log.Info().
		Int("sessions", len(s.sessions)).
		Str("active", s.activeID).
		Msg("session state restored")
	return nil
}

// Teardown writes a final snapshot.
func (s *Store) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persister == nil {
		return nil
	}
	return s.persister.Save(s.snapshotLocked())
}

// CreateSession adds an empty session titled with the default title, makes
// it active and returns its id.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	id := s.uniqueIDLocked()
	s.sessions[id] = &domain.Session{
		ID:        id,
		Title:     domain.DefaultTitle,
		Messages:  []domain.Message{},
		CreatedAt: s.now(),
	}
	s.activeID = id
	s.persistLocked()
	s.mu.Unlock()

	s.log.Debug().Str("session", id).Msg("session created")
	s.emit(hooks.EventSessionCreated, map[string]any{"session_id": id})
	return id
}

// RenameSession sets a session's title. Unknown ids and blank titles are
// ignored; the result reports whether the title changed.
func (s *Store) RenameSession(id, newTitle string) bool {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return false
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	sess.Title = newTitle
	s.persistLocked()
	s.mu.Unlock()

	s.emit(hooks.EventSessionRenamed, map[string]any{"session_id": id, "title": newTitle})
	return true
}

// DeleteSession removes a session. When it was active, the remaining session
// with the newest creation time becomes active, or none if the map is empty.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, id)
	delete(s.drafts, id)
	wasActive := s.activeID == id
	if wasActive {
		s.activeID = s.newestIDLocked()
	}
	active := s.activeID
	s.persistLocked()
	s.mu.Unlock()

	s.log.Debug().Str("session", id).Str("active", active).Msg("session deleted")
	s.emit(hooks.EventSessionDeleted, map[string]any{"session_id": id, "active_session_id": active})
	if wasActive && active != "" {
		s.emit(hooks.EventSessionActivated, map[string]any{"session_id": active})
	}
	return true
}

// SetActiveSession points the active pointer at id. Unknown ids are rejected
// and leave the pointer unchanged.
func (s *Store) SetActiveSession(id string) bool {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return false
	}
	changed := s.activeID != id
	s.activeID = id
	if changed {
		s.persistLocked()
	}
	s.mu.Unlock()

	if changed {
		s.emit(hooks.EventSessionActivated, map[string]any{"session_id": id})
	}
	return true
}

// AppendMessage appends msg to a session. A missing id or timestamp is
// filled in. Unknown sessions are ignored.
func (s *Store) AppendMessage(id string, msg domain.Message) bool {
	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	sess.Messages = append(sess.Messages, msg)
	s.persistLocked()
	s.mu.Unlock()

	s.emit(hooks.EventMessageAppended, map[string]any{
		"session_id": id,
		"message_id": msg.ID,
		"role":       string(msg.Role),
	})
	return true
}

// ReplaceAllSessions merges records into canonical sessions and swaps them in
// for the whole mapping at once. The active pointer is cleared. It returns
// the resolved session ids in record order.
func (s *Store) ReplaceAllSessions(records []history.Record) []string {
	return s.replaceAll(records, false)
}

func (s *Store) replaceAll(records []history.Record, activateFirst bool) []string {
	res := s.merger.Merge(records)

	s.mu.Lock()
	s.sessions = res.Sessions
	s.activeID = ""
	if activateFirst && len(res.Order) > 0 {
		s.activeID = res.Order[0]
	}
	for id := range s.drafts {
		if _, ok := s.sessions[id]; !ok {
			delete(s.drafts, id)
		}
	}
	active := s.activeID
	s.persistLocked()
	s.mu.Unlock()

	s.log.Info().Int("sessions", len(res.Sessions)).Msg("sessions replaced")
	s.emit(hooks.EventSessionsReplaced, map[string]any{"count": len(res.Sessions)})
	if active != "" {
		s.emit(hooks.EventSessionActivated, map[string]any{"session_id": active})
	}
	return res.Order
}

// ClearAll drops every session, the active pointer, drafts and locks.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.sessions = make(map[string]*domain.Session)
	s.activeID = ""
	clear(s.drafts)
	s.locks.Reset()
	s.persistLocked()
	s.mu.Unlock()

	s.log.Info().Msg("session state cleared")
	s.emit(hooks.EventSessionsCleared, nil)
}

// ActiveSessionID returns the active session id, or "" when none is active.
func (s *Store) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveSession returns a copy of the active session, or nil.
func (s *Store) ActiveSession() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[s.activeID].Clone()
}

// Session returns a copy of the session with the given id, or nil.
func (s *Store) Session(id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id].Clone()
}

// Sessions returns copies of all sessions, newest first.
func (s *Store) Sessions() []*domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(*domain.Session) bool { return true })
}

// SearchByTitle returns copies of the sessions whose title contains query,
// ignoring case, newest first. A blank query matches every session.
func (s *Store) SearchByTitle(query string) []*domain.Session {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(sess *domain.Session) bool {
		return strings.Contains(strings.ToLower(sess.Title), q)
	})
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetDraft records unsent input for a session. Drafts are never persisted.
func (s *Store) SetDraft(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	if text == "" {
		delete(s.drafts, id)
	} else {
		s.drafts[id] = text
	}
	return true
}

// Draft returns the unsent input for a session.
func (s *Store) Draft(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[id]
}

// Sending reports whether a send is in flight for the session.
func (s *Store) Sending(id string) bool {
	return s.locks.Held(id)
}

// Snapshot returns a copy of the durable state.
func (s *Store) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *domain.Snapshot {
	snap := &domain.Snapshot{
		Sessions:        make(map[string]*domain.Session, len(s.sessions)),
		ActiveSessionID: s.activeID,
	}
	for id, sess := range s.sessions {
		snap.Sessions[id] = sess.Clone()
	}
	return snap
}

func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(s.snapshotLocked()); err != nil {
		s.log.Error().Err(err).Msg("failed to persist session snapshot")
	}
}

func (s *Store) sortedLocked(keep func(*domain.Session) bool) []*domain.Session {
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, sess.Clone())
		}
	}
	slices.SortFunc(out, compareNewest)
	return out
}

func (s *Store) newestIDLocked() string {
	var newest *domain.Session
	for _, sess := range s.sessions {
		if newest == nil || compareNewest(sess, newest) < 0 {
			newest = sess
		}
	}
	if newest == nil {
		return ""
	}
	return newest.ID
}

func (s *Store) uniqueIDLocked() string {
	for {
		id := s.newID()
		if _, taken := s.sessions[id]; !taken {
			return id
		}
	}
}

func (s *Store) emit(event string, data map[string]any) {
	if s.hooks == nil {
		return
	}
	s.hooks.Emit(context.Background(), event, data)
}

// compareNewest orders sessions by creation time descending, then id ascending.
func compareNewest(a, b *domain.Session) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
