package chats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/title"
)

var errEmptyReply = errors.New("sender returned no reply")

// SendState is a step of the optimistic send protocol.
type SendState int

const (
	StateIdle SendState = iota
	StateSending
	StateCommitted
	StateRolledBack
)

func (st SendState) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("SendState(%d)", int(st))
	}
}

// SendOutcome describes how a send finished.
type SendOutcome struct {
	SessionID   string
	State       SendState
	UserMessage domain.Message
	BotMessage  *domain.Message
	// Title is the session title after the exchange.
	Title string
	// Orphaned is set when the session was deleted while the send was in
	// flight; the reply was dropped.
	Orphaned bool
}

// SendError is returned when the external send fails and the optimistic
// message has been removed again.
type SendError struct {
	SessionID string
	Text      string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending message to session %s: %v", e.SessionID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether sending the same text again may succeed. Only a
// send the caller cancelled is not.
func (e *SendError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

// Send sends text on the active session.
func (s *Store) Send(ctx context.Context, text string) (*SendOutcome, error) {
	id := s.ActiveSessionID()
	if id == "" {
		return nil, ErrNoActiveSession
	}
	return s.SendTo(ctx, id, text)
}

// SendTo runs the optimistic send protocol for one session. The user message
// is appended before the external call and removed again if the call fails.
// A concurrent send on the same session is refused with ErrSendInFlight
// without changing any state. The outcome is non-nil whenever the message
// was appended, including on rollback alongside a *SendError.
func (s *Store) SendTo(ctx context.Context, id, text string) (*SendOutcome, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}
	if s.sender == nil {
		return nil, ErrNoSender
	}
	if s.identity != nil && !s.identity.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	tok, ok := s.locks.Acquire(id)
	if !ok {
		s.mu.Unlock()
		s.log.Debug().Str("session", id).Msg("send refused, request in flight")
		return nil, ErrSendInFlight
	}
	defer s.locks.Release(id, tok)

	userMsg := domain.Message{
		ID:        s.newID(),
		Role:      domain.RoleUser,
		Text:      trimmed,
		Timestamp: s.now(),
	}
	firstExchange := len(sess.Messages) == 0
	sess.Messages = append(sess.Messages, userMsg)
	delete(s.drafts, id)
	s.persistLocked()
	s.mu.Unlock()

	s.emit(hooks.EventMessageAppended, map[string]any{
		"session_id": id,
		"message_id": userMsg.ID,
		"role":       string(userMsg.Role),
	})

	callCtx := ctx
	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}

	s.log.Debug().Str("session", id).Str("message", userMsg.ID).Msg("sending")
	res, err := s.sender.Send(callCtx, id, trimmed)
	if err == nil && res == nil {
		err = errEmptyReply
	}
	if err != nil {
		return s.rollback(id, userMsg, text, err)
	}
	return s.commit(id, userMsg, res, firstExchange), nil
}

func (s *Store) commit(id string, userMsg domain.Message, res *SendResult, firstExchange bool) *SendOutcome {
	out := &SendOutcome{SessionID: id, State: StateCommitted, UserMessage: userMsg}

	bot := domain.Message{
		ID:        s.newID(),
		Role:      domain.RoleBot,
		Text:      res.Message,
		Timestamp: s.now(),
		Agent:     res.Agent,
		Intent:    res.Intent,
		ToolCalls: res.ToolCalls,
	}
	bot = bot.Clone()

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		out.Orphaned = true
		s.log.Warn().Str("session", id).Msg("session deleted during send, reply dropped")
		return out
	}
	sess.Messages = append(sess.Messages, bot)
	if firstExchange && sess.HasDefaultTitle() {
		sess.Title = title.Generate([]string{userMsg.Text, bot.Text})
	}
	out.Title = sess.Title
	s.persistLocked()
	s.mu.Unlock()

	botCopy := bot.Clone()
	out.BotMessage = &botCopy

	s.log.Debug().Str("session", id).Str("agent", bot.Agent).Msg("send committed")
	s.emit(hooks.EventSendCommitted, map[string]any{
		"session_id": id,
		"message_id": bot.ID,
		"title":      out.Title,
	})
	return out
}

func (s *Store) rollback(id string, userMsg domain.Message, text string, cause error) (*SendOutcome, error) {
	out := &SendOutcome{SessionID: id, State: StateRolledBack, UserMessage: userMsg}

	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.Messages = slices.DeleteFunc(sess.Messages, func(m domain.Message) bool {
			return m.ID == userMsg.ID
		})
		s.drafts[id] = text
		out.Title = sess.Title
		s.persistLocked()
	} else {
		out.Orphaned = true
	}
	s.mu.Unlock()

	s.log.Warn().Err(cause).Str("session", id).Msg("send failed, rolled back")
	s.emit(hooks.EventSendRolledBack, map[string]any{
		"session_id": id,
		"message_id": userMsg.ID,
	})
	return out, &SendError{SessionID: id, Text: text, Err: cause}
}
