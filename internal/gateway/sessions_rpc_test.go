package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/parley/internal/chats"
	"github.com/soyeahso/parley/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearch struct {
	hits  []store.MessageHit
	err   error
	query string
}

func (s *stubSearch) Search(query string, _ int) ([]store.MessageHit, error) {
	s.query = query
	return s.hits, s.err
}

func TestSessionsLifecycle(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	var created map[string]string
	requireOK(t, call(t, conn, "1", "sessions.create", nil), &created)
	id := created["sessionId"]
	require.NotEmpty(t, id)

	var list SessionsListResponse
	requireOK(t, call(t, conn, "2", "sessions.list", nil), &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, id, list.ActiveSessionID)
	assert.Equal(t, "New Chat", list.Sessions[0].Title)

	var renamed map[string]string
	requireOK(t, call(t, conn, "3", "sessions.rename", renameParams{SessionID: id, Title: "  Trip plan "}), &renamed)
	assert.Equal(t, "Trip plan", renamed["title"])

	var got SessionResponse
	requireOK(t, call(t, conn, "4", "sessions.get", sessionParams{SessionID: id}), &got)
	require.NotNil(t, got.Session)
	assert.Equal(t, "Trip plan", got.Session.Title)
	assert.Empty(t, got.Session.Messages)

	var deleted map[string]string
	requireOK(t, call(t, conn, "5", "sessions.delete", sessionParams{SessionID: id}), &deleted)
	assert.Equal(t, id, deleted["deleted"])
	assert.Empty(t, deleted["activeSessionId"])
	assert.Zero(t, f.chats.Len())
}

func TestSessionsRenameErrors(t *testing.T) {
	f := newFixture(t)
	id := f.chats.CreateSession()
	conn := f.connect(t)

	requireErrCode(t, call(t, conn, "1", "sessions.rename", renameParams{SessionID: "nope", Title: "x"}), "not_found")
	requireErrCode(t, call(t, conn, "2", "sessions.rename", renameParams{SessionID: id, Title: "   "}), "invalid_params")
	assert.Equal(t, "New Chat", f.chats.Session(id).Title)
}

func TestSessionsUnknownIDs(t *testing.T) {
	conn := newFixture(t).connect(t)

	requireErrCode(t, call(t, conn, "1", "sessions.get", sessionParams{SessionID: "nope"}), "not_found")
	requireErrCode(t, call(t, conn, "2", "sessions.delete", sessionParams{SessionID: "nope"}), "not_found")
	requireErrCode(t, call(t, conn, "3", "sessions.activate", sessionParams{SessionID: "nope"}), "not_found")
	requireErrCode(t, call(t, conn, "4", "sessions.get", nil), "invalid_params")
	requireErrCode(t, call(t, conn, "5", "chat.draft", chatDraftParams{SessionID: "nope", Text: "x"}), "not_found")
}

func TestSessionsActivateAndActive(t *testing.T) {
	f := newFixture(t)
	first := f.chats.CreateSession()
	f.chats.CreateSession()
	conn := f.connect(t)

	var active SessionResponse
	requireOK(t, call(t, conn, "1", "sessions.activate", sessionParams{SessionID: first}), nil)
	requireOK(t, call(t, conn, "2", "sessions.active", nil), &active)
	require.NotNil(t, active.Session)
	assert.Equal(t, first, active.Session.ID)

	f.chats.ClearAll()
	active = SessionResponse{}
	requireOK(t, call(t, conn, "3", "sessions.active", nil), &active)
	assert.Nil(t, active.Session)
}

func TestSessionsSearch(t *testing.T) {
	f := newFixture(t)
	a := f.chats.CreateSession()
	f.chats.RenameSession(a, "Quarterly report")
	b := f.chats.CreateSession()
	f.chats.RenameSession(b, "Holiday")
	conn := f.connect(t)

	var res SessionsListResponse
	requireOK(t, call(t, conn, "1", "sessions.search", searchParams{Query: "REPORT"}), &res)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, a, res.Sessions[0].ID)
}

func TestMessagesSearch(t *testing.T) {
	conn := newFixture(t).connect(t)
	requireErrCode(t, call(t, conn, "1", "messages.search", searchParams{Query: "x"}), "unavailable")

	search := &stubSearch{hits: []store.MessageHit{{SessionID: "s-1", MessageID: "m-1", Snippet: "[shipped]"}}}
	conn = newFixture(t, WithMessageSearch(search)).connect(t)

	var res struct {
		Hits []store.MessageHit `json:"hits"`
	}
	requireOK(t, call(t, conn, "2", "messages.search", searchParams{Query: "shipped"}), &res)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "m-1", res.Hits[0].MessageID)
	assert.Equal(t, "shipped", search.query)

	search.err = errors.New("fts5: syntax error")
	requireErrCode(t, call(t, conn, "3", "messages.search", searchParams{Query: "\""}), "search_failed")
}

func TestChatSendCommits(t *testing.T) {
	f := newFixture(t)
	id := f.chats.CreateSession()
	conn := f.connect(t)

	var res ChatSendResponse
	requireOK(t, call(t, conn, "1", "chat.send", chatSendParams{Message: "hello there"}), &res)
	assert.Equal(t, id, res.SessionID)
	assert.Equal(t, "committed", res.State)
	require.NotNil(t, res.UserMessage)
	require.NotNil(t, res.BotMessage)
	assert.Equal(t, "hello there", res.UserMessage.Text)
	assert.Equal(t, "echo: hello there", res.BotMessage.Text)
	assert.Equal(t, "hello there", res.Title)

	sess := f.chats.Session(id)
	require.Len(t, sess.Messages, 2)
}

func TestChatSendRollsBack(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("upstream unavailable")
	id := f.chats.CreateSession()
	conn := f.connect(t)

	shape := requireErrCode(t, call(t, conn, "1", "chat.send", chatSendParams{SessionID: id, Message: "retry me"}), "send_failed")
	assert.True(t, shape.Retryable)
	assert.Equal(t, "upstream unavailable", shape.Message)
	details, ok := shape.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "retry me", details["text"])

	assert.Empty(t, f.chats.Session(id).Messages)
	assert.Equal(t, "retry me", f.chats.Draft(id))
	assert.False(t, f.chats.Sending(id))
}

func TestChatSendValidation(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	requireErrCode(t, call(t, conn, "1", "chat.send", chatSendParams{Message: "hi"}), "no_active_session")
	requireErrCode(t, call(t, conn, "2", "chat.send", chatSendParams{SessionID: "nope", Message: "hi"}), "not_found")

	f.chats.CreateSession()
	requireErrCode(t, call(t, conn, "3", "chat.send", chatSendParams{Message: "   "}), "invalid_params")
}

// While a send waits on the assistant, the same client is still served and a
// second send on the same session is refused without touching state.
func TestChatSendInFlight(t *testing.T) {
	f := newFixture(t)
	f.sender.gate = make(chan struct{})
	f.sender.entered = make(chan string, 2)
	id := f.chats.CreateSession()
	conn := f.connect(t)

	request(t, conn, "first", "chat.send", chatSendParams{SessionID: id, Message: "one"})
	select {
	case <-f.sender.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("send never reached the assistant")
	}

	var list SessionsListResponse
	requireOK(t, call(t, conn, "list", "sessions.list", nil), &list)
	require.Len(t, list.Sessions, 1)
	assert.True(t, list.Sessions[0].Sending)
	assert.Equal(t, 1, list.Sessions[0].MessageCount, "optimistic message is visible")

	var refused ChatSendResponse
	requireOK(t, call(t, conn, "second", "chat.send", chatSendParams{SessionID: id, Message: "two"}), &refused)
	assert.True(t, refused.Refused)
	assert.Len(t, f.chats.Session(id).Messages, 1)

	close(f.sender.gate)
	var done ChatSendResponse
	requireOK(t, readResponse(t, conn, "first"), &done)
	assert.Equal(t, "committed", done.State)
	assert.False(t, f.chats.Sending(id))
}

func TestChatDraft(t *testing.T) {
	f := newFixture(t)
	id := f.chats.CreateSession()
	conn := f.connect(t)

	requireOK(t, call(t, conn, "1", "chat.draft", chatDraftParams{SessionID: id, Text: "half typed"}), nil)
	var got SessionResponse
	requireOK(t, call(t, conn, "2", "sessions.get", sessionParams{SessionID: id}), &got)
	assert.Equal(t, "half typed", got.Draft)
}

func TestHistorySync(t *testing.T) {
	f := newFixture(t)
	f.chats.CreateSession()
	f.hist.records = []json.RawMessage{
		json.RawMessage(`{"session_id":"srv-1","chats":[{"id":"m1","role":"user","message":"Where is my order?","timestamp":"2024-02-01T09:00:00Z"}]}`),
		json.RawMessage(`{"id":"srv-2","messages":[]}`),
	}
	conn := f.connect(t)

	var res map[string]any
	requireOK(t, call(t, conn, "1", "history.sync", nil), &res)
	assert.Equal(t, float64(2), res["sessions"])
	assert.Equal(t, "srv-1", res["activeSessionId"])
	assert.Equal(t, "Where is my order?", f.chats.Session("srv-1").Title)
	assert.Equal(t, 2, f.chats.Len())
}

func TestHistorySyncFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	id := f.chats.CreateSession()
	f.hist.err = errors.New("connection reset")
	conn := f.connect(t)

	shape := requireErrCode(t, call(t, conn, "1", "history.sync", nil), "sync_failed")
	assert.True(t, shape.Retryable)
	assert.NotNil(t, f.chats.Session(id))
}

func TestRespondSendMapsErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{chats.ErrUnauthenticated, "unauthenticated"},
		{chats.ErrNoSender, "unavailable"},
		{errors.New("other"), "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newFixture(t)
			conn := f.connect(t)
			client, ok := anyClient(f.srv)
			require.True(t, ok)

			f.srv.respondSend(&RequestContext{Client: client, Frame: Frame{ID: "x"}, Server: f.srv}, "", nil, tt.err)
			requireErrCode(t, readResponse(t, conn, "x"), tt.code)
		})
	}
}

func anyClient(s *Server) (*Client, bool) {
	s.clients.mu.RLock()
	defer s.clients.mu.RUnlock()
	for _, c := range s.clients.clients {
		return c, true
	}
	return nil, false
}
