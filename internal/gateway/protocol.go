package gateway

import "encoding/json"

// ProtocolVersion is the wire protocol this server speaks.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed by the server.
const (
	EventConnectChallenge = "connect.challenge"
	EventSessionsChanged  = "sessions.changed"
)

// RPC methods. MethodConnect is only valid as the first request.
const (
	MethodConnect          = "connect"
	MethodHealth           = "health"
	MethodConfigGet        = "config.get"
	MethodConfigSet        = "config.set"
	MethodSessionsList     = "sessions.list"
	MethodSessionsGet      = "sessions.get"
	MethodSessionsSearch   = "sessions.search"
	MethodSessionsCreate   = "sessions.create"
	MethodSessionsRename   = "sessions.rename"
	MethodSessionsDelete   = "sessions.delete"
	MethodSessionsActivate = "sessions.activate"
	MethodSessionsActive   = "sessions.active"
	MethodMessagesSearch   = "messages.search"
	MethodChatSend         = "chat.send"
	MethodChatDraft        = "chat.draft"
	MethodHistorySync      = "history.sync"
)

// Error codes carried in ErrorShape.Code.
const (
	CodeProtocol        = "protocol_error"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeMethodNotFound  = "method_not_found"
	CodeInvalidParams   = "invalid_params"
	CodeNotFound        = "not_found"
	CodeNoActiveSession = "no_active_session"
	CodeUnauthenticated = "unauthenticated"
	CodeUnavailable     = "unavailable"
	CodeSendFailed      = "send_failed"
	CodeSyncFailed      = "sync_failed"
	CodeSearchFailed    = "search_failed"
	CodeInternal        = "internal_error"
)

// Frame is the envelope of every WebSocket message; Type selects which of
// the request, response and event fields are set.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int    `json:"retryAfterMs,omitempty"`
}

// ConnectParams open a connection.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	UserAgent   string       `json:"userAgent,omitempty"`
}

// ClientInfo identifies the connecting UI.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"` // "ui" | "cli"
}

// ConnectAuth carries the gateway credential.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
	// EventSeq is the seq of the last sessions.changed event sent before
	// this hello.
	EventSeq int64 `json:"eventSeq"`
	// State is the session list at connect time; later changes arrive as
	// sessions.changed events.
	State SessionsListResponse `json:"state"`
}

// ServerInfo identifies the gateway.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the methods and events the server supports.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy tells the client the frame limits.
type ServerPolicy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
}

// SessionsChanged is the payload of a sessions.changed event. Event is one
// of the session state hook names; Data holds its fields.
type SessionsChanged struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// NewRequest builds a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse builds a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse builds an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &errShape}
}

// NewEvent builds an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
