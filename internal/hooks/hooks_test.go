package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/parley/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventGatewayStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventGatewayStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventMessageAppended, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventMessageAppended, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventMessageAppended, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventMessageAppended, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventMessageAppended, map[string]any{
		"session_id": "s-1",
		"message_id": "m-1",
	})

	assert.Equal(t, "s-1", gotData["session_id"])
	assert.Equal(t, "m-1", gotData["message_id"])
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventGatewayStart, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventGatewayStart, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	// Should not panic; second handler should still run
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	// Should not panic
	m.Emit(context.Background(), EventGatewayStop, nil)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventGatewayStart, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventGatewayStart, "removable")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, callCount) // should not have been called again
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventGatewayStart, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventGatewayStart, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventGatewayStart, "remove-me")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, 1, keepCalled)
}

func TestManager_Count(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventGatewayStart))

	m.On(EventGatewayStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventGatewayStart))

	m.On(EventGatewayStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventGatewayStart))
}

func TestManager_HandlerRemovesItselfDuringEmit(t *testing.T) {
	m := testManager()

	calls := 0
	m.On(EventSessionDeleted, "once", func(_ context.Context, _ Payload) error {
		calls++
		m.Off(EventSessionDeleted, "once")
		return nil
	})
	m.On(EventSessionDeleted, "after", func(_ context.Context, _ Payload) error {
		calls++
		return nil
	})

	m.Emit(context.Background(), EventSessionDeleted, nil)
	assert.Equal(t, 2, calls, "handlers registered at emit time all run")
	m.Emit(context.Background(), EventSessionDeleted, nil)
	assert.Equal(t, 3, calls)
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventGatewayStart)
	assert.Contains(t, AllEvents, EventMessageAppended)
}

func TestStateEvents_ExcludeGateway(t *testing.T) {
	assert.NotContains(t, StateEvents, EventGatewayStart)
	assert.NotContains(t, StateEvents, EventGatewayStop)
	assert.Contains(t, StateEvents, EventSessionCreated)
	assert.Contains(t, StateEvents, EventSessionsCleared)
}

func TestManager_OnEach_OffEach(t *testing.T) {
	m := testManager()

	var seen []string
	m.OnEach(StateEvents, "watcher", func(_ context.Context, p Payload) error {
		seen = append(seen, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventSessionCreated, nil)
	m.Emit(context.Background(), EventSendRolledBack, nil)
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, []string{EventSessionCreated, EventSendRolledBack}, seen)

	m.OffEach(StateEvents, "watcher")
	m.Emit(context.Background(), EventSessionCreated, nil)
	assert.Len(t, seen, 2)
	assert.Equal(t, 0, m.Count(EventSessionDeleted))
}
