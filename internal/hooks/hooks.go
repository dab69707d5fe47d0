// Package hooks dispatches session-state change events to subscribers.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/parley/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionCreated   = "session_created"
	EventSessionRenamed   = "session_renamed"
	EventSessionDeleted   = "session_deleted"
	EventSessionActivated = "session_activated"
	EventMessageAppended  = "message_appended"
	EventSendCommitted    = "send_committed"
	EventSendRolledBack   = "send_rolled_back"
	EventSessionsReplaced = "sessions_replaced"
	EventSessionsCleared  = "sessions_cleared"
	EventGatewayStart     = "gateway_start"
	EventGatewayStop      = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionCreated,
	EventSessionRenamed,
	EventSessionDeleted,
	EventSessionActivated,
	EventMessageAppended,
	EventSendCommitted,
	EventSendRolledBack,
	EventSessionsReplaced,
	EventSessionsCleared,
	EventGatewayStart,
	EventGatewayStop,
}

// StateEvents lists the events that signal a change to the session state.
var StateEvents = AllEvents[:len(AllEvents)-2]

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and debugging.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnEach registers the same handler under one name for several events.
func (m *Manager) OnEach(events []string, name string, handler Handler) {
	for _, event := range events {
		m.On(event, name, handler)
	}
}

// OffEach removes the named handler from several events.
func (m *Manager) OffEach(events []string, name string) {
	for _, event := range events {
		m.Off(event, name)
	}
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

// Emit calls the event's handlers in registration order on the calling
// goroutine. A handler error is logged and the remaining handlers still run.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	m.mu.RLock()
	handlers := slices.Clone(m.handlers[event])
	m.mu.RUnlock()

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}
