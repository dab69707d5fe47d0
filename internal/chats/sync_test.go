package chats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/parley/internal/domain"
)

func TestSyncHistory_ReplacesAndActivatesFirst(t *testing.T) {
	h := &fakeHistory{records: []string{
		`{"session_id":"srv-1","count":2,"chats":[{"role":"user","message":"hi"},{"role":"bot","message":"Hello!"}]}`,
		`{"id":"local-2","messages":[{"id":"m1","role":"user","message":"orders?"}]}`,
	}}
	s, p := testStore(t, WithHistory(h), WithIdentity(fakeIdentity(true)))
	s.CreateSession()

	n, err := s.SyncHistory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "srv-1", s.ActiveSessionID())
	assert.Equal(t, "hi", s.Session("srv-1").Title)
	assert.Equal(t, "orders?", s.Session("local-2").Title)
	assert.Equal(t, "srv-1", p.saved().ActiveSessionID)
}

func TestSyncHistory_MalformedRecordsNeverAbort(t *testing.T) {
	h := &fakeHistory{records: []string{`"junk"`, `{"id":"ok"}`, `{}`}}
	s, _ := testStore(t, WithHistory(h))

	n, err := s.SyncHistory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	ok := s.Session("ok")
	require.NotNil(t, ok)
	assert.Equal(t, domain.DefaultTitle, ok.Title)
}

func TestSyncHistory_FetchFailureLeavesState(t *testing.T) {
	h := &fakeHistory{err: errBoom}
	s, p := testStore(t, WithHistory(h))
	id := s.CreateSession()
	saves := p.saveCount()

	n, err := s.SyncHistory(context.Background())

	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, n)
	assert.Equal(t, id, s.ActiveSessionID())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, saves, p.saveCount())
}

func TestSyncHistory_Preconditions(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.SyncHistory(context.Background())
	assert.ErrorIs(t, err, ErrNoHistorySource)

	s, _ = testStore(t, WithHistory(&fakeHistory{}), WithIdentity(fakeIdentity(false)))
	_, err = s.SyncHistory(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSyncHistory_EmptyHistory(t *testing.T) {
	s, _ := testStore(t, WithHistory(&fakeHistory{}))
	s.CreateSession()

	n, err := s.SyncHistory(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ActiveSessionID())
}

func TestSyncHistory_ConcurrentCallsShareFetch(t *testing.T) {
	h := &fakeHistory{records: []string{`{"id":"a"}`}, gate: make(chan struct{})}
	s, _ := testStore(t, WithHistory(h))

	const callers = 4
	var wg sync.WaitGroup
	results := make([]int, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.SyncHistory(context.Background())
	}()

	// Wait until the first fetch is parked on the gate before joining.
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.calls == 1
	}, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = s.SyncHistory(context.Background())
		}()
	}
	close(h.gate)
	wg.Wait()

	assert.Equal(t, 1, s.Len())
	for _, n := range results {
		assert.Equal(t, 1, n)
	}
}
