package chats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// tickClock returns a clock that advances one second per call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := epoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type memPersister struct {
	mu    sync.Mutex
	snap  *domain.Snapshot
	saves int
	fail  error
}

func (p *memPersister) Save(snap *domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.fail != nil {
		return p.fail
	}
	p.snap = snap.Clone()
	return nil
}

func (p *memPersister) Load() (*domain.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	return p.snap.Clone(), nil
}

func (p *memPersister) saved() *domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Clone()
}

func (p *memPersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// fakeSender answers every message with a fixed reply. When gate is set,
// Send signals on entered and blocks until gate is closed or the context ends.
type fakeSender struct {
	reply   *SendResult
	err     error
	gate    chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	calls []string
}

func (f *fakeSender) Send(ctx context.Context, sessionID, text string) (*SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sessionID+":"+text)
	f.mu.Unlock()

	if f.gate != nil {
		if f.entered != nil {
			f.entered <- struct{}{}
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []string
	err     error
	calls   int
	gate    chan struct{}
}

func (f *fakeHistory) FetchHistory(ctx context.Context) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]json.RawMessage, len(f.records))
	for i, r := range f.records {
		out[i] = json.RawMessage(r)
	}
	return out, nil
}

type fakeIdentity bool

func (f fakeIdentity) IsAuthenticated() bool { return bool(f) }

var errBoom = errors.New("boom")

func testStore(t *testing.T, opts ...Option) (*Store, *memPersister) {
	t.Helper()
	p := &memPersister{}
	base := []Option{
		WithPersister(p),
		WithClock(tickClock()),
		WithIDGenerator(seqIDs("id")),
	}
	s := New(logging.New(nil, "silent"), append(base, opts...)...)
	if err := s.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s, p
}

// recorder collects hook events in emission order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) attach(m *hooks.Manager) {
	m.OnEach(hooks.StateEvents, "recorder", func(_ context.Context, p hooks.Payload) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, p.Event)
		return nil
	})
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// senderFunc adapts a function to Sender.
type senderFunc func(ctx context.Context, sessionID, text string) (*SendResult, error)

func (f senderFunc) Send(ctx context.Context, sessionID, text string) (*SendResult, error) {
	return f(ctx, sessionID, text)
}
