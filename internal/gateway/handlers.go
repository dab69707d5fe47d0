package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the health payload. Over plain HTTP only Status is set.
type HealthResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version,omitempty"`
	Clients       int            `json:"clients,omitempty"`
	ClientModes   map[string]int `json:"clientModes,omitempty"`
	Sessions      int            `json:"sessions,omitempty"`
	UptimeSeconds int64          `json:"uptimeSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
}

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext is a single request frame from an authenticated client.
// Handlers answer it exactly once, possibly from another goroutine.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response carrying payload.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends a non-retryable error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Fail(ErrorShape{Code: code, Message: message})
}

// Fail sends shape as the error response.
func (rc *RequestContext) Fail(shape ErrorShape) {
	rc.Server.log.Debug().
		Str("method", rc.Frame.Method).
		Str("code", shape.Code).
		Str("error", shape.Message).
		Msg("rpc failed")
	if err := rc.Client.RespondError(rc.Frame.ID, shape); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error")
	}
}

// Bind decodes the request params into target. Missing params leave target
// untouched. On a decode error it answers invalid_params and returns false.
func (rc *RequestContext) Bind(target any) bool {
	if len(rc.Frame.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(rc.Frame.Params, target); err != nil {
		rc.RespondError(CodeInvalidParams, "invalid params: "+err.Error())
		return false
	}
	return true
}
