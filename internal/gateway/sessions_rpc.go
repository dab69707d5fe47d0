package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/parley/internal/chats"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/store"
)

// SessionSummary is the sidebar view of a session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
	Sending      bool      `json:"sending,omitempty"`
}

// SessionsListResponse is returned by sessions.list and sessions.search.
type SessionsListResponse struct {
	Sessions        []SessionSummary `json:"sessions"`
	ActiveSessionID string           `json:"activeSessionId,omitempty"`
}

// SessionResponse is returned by sessions.get and sessions.active.
type SessionResponse struct {
	Session *domain.Session `json:"session"`
	Draft   string          `json:"draft,omitempty"`
	Sending bool            `json:"sending,omitempty"`
}

// ChatSendResponse is returned by chat.send. Refused is set when a send on
// the same session was already in flight; nothing was changed.
type ChatSendResponse struct {
	SessionID   string          `json:"sessionId"`
	State       string          `json:"state,omitempty"`
	Refused     bool            `json:"refused,omitempty"`
	UserMessage *domain.Message `json:"userMessage,omitempty"`
	BotMessage  *domain.Message `json:"botMessage,omitempty"`
	Title       string          `json:"title,omitempty"`
	Orphaned    bool            `json:"orphaned,omitempty"`
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
}

type renameParams struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type chatSendParams struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type chatDraftParams struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

func (s *Server) summaries(list []*domain.Session) []SessionSummary {
	out := make([]SessionSummary, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionSummary{
			ID:           sess.ID,
			Title:        sess.Title,
			CreatedAt:    sess.CreatedAt,
			MessageCount: len(sess.Messages),
			Sending:      s.chats.Sending(sess.ID),
		})
	}
	return out
}

// sessionID decodes params and checks that a session id was given.
func sessionID(rc *RequestContext) (string, bool) {
	var p sessionParams
	if !rc.Bind(&p) {
		return "", false
	}
	if p.SessionID == "" {
		rc.RespondError(CodeInvalidParams, "sessionId is required")
		return "", false
	}
	return p.SessionID, true
}

func (s *Server) rpcSessionsList(rc *RequestContext) {
	rc.Respond(s.sessionsList())
}

func (s *Server) sessionsList() SessionsListResponse {
	return SessionsListResponse{
		Sessions:        s.summaries(s.chats.Sessions()),
		ActiveSessionID: s.chats.ActiveSessionID(),
	}
}

func (s *Server) rpcSessionsGet(rc *RequestContext) {
	id, ok := sessionID(rc)
	if !ok {
		return
	}
	s.respondSession(rc, id)
}

func (s *Server) rpcSessionsActive(rc *RequestContext) {
	id := s.chats.ActiveSessionID()
	if id == "" {
		rc.Respond(SessionResponse{})
		return
	}
	s.respondSession(rc, id)
}

func (s *Server) respondSession(rc *RequestContext, id string) {
	sess := s.chats.Session(id)
	if sess == nil {
		rc.RespondError(CodeNotFound, "unknown session: "+id)
		return
	}
	rc.Respond(SessionResponse{
		Session: sess,
		Draft:   s.chats.Draft(id),
		Sending: s.chats.Sending(id),
	})
}

func (s *Server) rpcSessionsSearch(rc *RequestContext) {
	var p searchParams
	if !rc.Bind(&p) {
		return
	}
	rc.Respond(SessionsListResponse{
		Sessions:        s.summaries(s.chats.SearchByTitle(p.Query)),
		ActiveSessionID: s.chats.ActiveSessionID(),
	})
}

func (s *Server) rpcSessionsCreate(rc *RequestContext) {
	id := s.chats.CreateSession()
	rc.Respond(map[string]any{"sessionId": id})
}

func (s *Server) rpcSessionsRename(rc *RequestContext) {
	var p renameParams
	if !rc.Bind(&p) {
		return
	}
	if s.chats.Session(p.SessionID) == nil {
		rc.RespondError(CodeNotFound, "unknown session: "+p.SessionID)
		return
	}
	if !s.chats.RenameSession(p.SessionID, p.Title) {
		rc.RespondError(CodeInvalidParams, "title must not be blank")
		return
	}
	rc.Respond(map[string]any{"sessionId": p.SessionID, "title": s.chats.Session(p.SessionID).Title})
}

func (s *Server) rpcSessionsDelete(rc *RequestContext) {
	id, ok := sessionID(rc)
	if !ok {
		return
	}
	if !s.chats.DeleteSession(id) {
		rc.RespondError(CodeNotFound, "unknown session: "+id)
		return
	}
	rc.Respond(map[string]any{"deleted": id, "activeSessionId": s.chats.ActiveSessionID()})
}

func (s *Server) rpcSessionsActivate(rc *RequestContext) {
	id, ok := sessionID(rc)
	if !ok {
		return
	}
	if !s.chats.SetActiveSession(id) {
		rc.RespondError(CodeNotFound, "unknown session: "+id)
		return
	}
	rc.Respond(map[string]any{"activeSessionId": id})
}

func (s *Server) rpcMessagesSearch(rc *RequestContext) {
	if s.search == nil {
		rc.RespondError(CodeUnavailable, "message search requires the sqlite session store")
		return
	}
	var p searchParams
	if !rc.Bind(&p) {
		return
	}
	hits, err := s.search.Search(p.Query, p.Limit)
	if err != nil {
		rc.RespondError(CodeSearchFailed, err.Error())
		return
	}
	if hits == nil {
		hits = []store.MessageHit{}
	}
	rc.Respond(map[string]any{"hits": hits})
}

func (s *Server) rpcChatDraft(rc *RequestContext) {
	var p chatDraftParams
	if !rc.Bind(&p) {
		return
	}
	if !s.chats.SetDraft(p.SessionID, p.Text) {
		rc.RespondError(CodeNotFound, "unknown session: "+p.SessionID)
		return
	}
	rc.Respond(map[string]any{"sessionId": p.SessionID})
}

// rpcChatSend runs the send off the read loop; the response arrives once the
// assistant replied or the message was rolled back.
func (s *Server) rpcChatSend(rc *RequestContext) {
	var p chatSendParams
	if !rc.Bind(&p) {
		return
	}

	s.goAsync(func(ctx context.Context) {
		var out *chats.SendOutcome
		var err error
		if p.SessionID == "" {
			out, err = s.chats.Send(ctx, p.Message)
		} else {
			out, err = s.chats.SendTo(ctx, p.SessionID, p.Message)
		}
		s.respondSend(rc, p.SessionID, out, err)
	})
}

func (s *Server) respondSend(rc *RequestContext, id string, out *chats.SendOutcome, err error) {
	var sendErr *chats.SendError
	switch {
	case err == nil:
		bot := out.BotMessage
		user := out.UserMessage
		rc.Respond(ChatSendResponse{
			SessionID:   out.SessionID,
			State:       out.State.String(),
			UserMessage: &user,
			BotMessage:  bot,
			Title:       out.Title,
			Orphaned:    out.Orphaned,
		})
	case errors.Is(err, chats.ErrSendInFlight):
		rc.Respond(ChatSendResponse{SessionID: id, Refused: true})
	case errors.As(err, &sendErr):
		rc.Fail(ErrorShape{
			Code:      CodeSendFailed,
			Message:   sendErr.Err.Error(),
			Retryable: sendErr.Retryable(),
			Details: map[string]any{
				"sessionId": sendErr.SessionID,
				"text":      sendErr.Text,
			},
		})
	case errors.Is(err, chats.ErrEmptyMessage):
		rc.RespondError(CodeInvalidParams, "message is required")
	case errors.Is(err, chats.ErrNoActiveSession):
		rc.RespondError(CodeNoActiveSession, err.Error())
	case errors.Is(err, chats.ErrUnknownSession):
		rc.RespondError(CodeNotFound, err.Error())
	case errors.Is(err, chats.ErrUnauthenticated):
		rc.RespondError(CodeUnauthenticated, err.Error())
	case errors.Is(err, chats.ErrNoSender):
		rc.RespondError(CodeUnavailable, err.Error())
	default:
		rc.RespondError(CodeInternal, err.Error())
	}
}

func (s *Server) rpcHistorySync(rc *RequestContext) {
	s.goAsync(func(ctx context.Context) {
		n, err := s.chats.SyncHistory(ctx)
		if err != nil {
			shape := ErrorShape{Code: CodeSyncFailed, Message: err.Error(), Retryable: true}
			switch {
			case errors.Is(err, chats.ErrUnauthenticated):
				shape.Code, shape.Retryable = CodeUnauthenticated, false
			case errors.Is(err, chats.ErrNoHistorySource):
				shape.Code, shape.Retryable = CodeUnavailable, false
			}
			rc.Fail(shape)
			return
		}
		rc.Respond(map[string]any{"sessions": n, "activeSessionId": s.chats.ActiveSessionID()})
	})
}
