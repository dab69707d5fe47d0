package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/parley/internal/config"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"api",
	"chat",
	"session",
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle(MethodHealth, s.rpcHealth)
	s.Handle(MethodConfigGet, s.rpcConfigGet)
	s.Handle(MethodConfigSet, s.rpcConfigSet)

	s.Handle(MethodSessionsList, s.rpcSessionsList)
	s.Handle(MethodSessionsGet, s.rpcSessionsGet)
	s.Handle(MethodSessionsSearch, s.rpcSessionsSearch)
	s.Handle(MethodSessionsCreate, s.rpcSessionsCreate)
	s.Handle(MethodSessionsRename, s.rpcSessionsRename)
	s.Handle(MethodSessionsDelete, s.rpcSessionsDelete)
	s.Handle(MethodSessionsActivate, s.rpcSessionsActivate)
	s.Handle(MethodSessionsActive, s.rpcSessionsActive)
	s.Handle(MethodMessagesSearch, s.rpcMessagesSearch)

	s.Handle(MethodChatSend, s.rpcChatSend)
	s.Handle(MethodChatDraft, s.rpcChatDraft)
	s.Handle(MethodHistorySync, s.rpcHistorySync)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if resp.Clients > 0 {
		resp.ClientModes = s.clients.CountByMode()
	}
	if s.chats != nil {
		resp.Sessions = s.chats.Len()
	}
	if !s.startedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

// configPath validates key against the allowlist and splits it.
func configPath(rc *RequestContext, key string) ([]string, bool) {
	if key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return nil, false
	}
	if !isAllowedConfigPath(key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+key)
		return nil, false
	}
	path, err := config.ParseConfigPath(key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return nil, false
	}
	return path, true
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if !rc.Bind(&p) {
		return
	}
	path, ok := configPath(rc, p.Key)
	if !ok {
		return
	}

	s.mu.RLock()
	val, found := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()

	if !found {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if !rc.Bind(&p) {
		return
	}
	path, ok := configPath(rc, p.Key)
	if !ok {
		return
	}
	if !config.KnownPath(path) {
		rc.RespondError(CodeInvalidParams, "unknown config key: "+p.Key)
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}
