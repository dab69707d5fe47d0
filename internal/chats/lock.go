package chats

import "sync"

// LockToken identifies one acquisition of a RequestLock entry.
type LockToken uint64

// RequestLock is a set of session ids with a send in flight. At most one
// holder exists per id; acquisition is a single critical section so
// concurrent callers for the same id yield exactly one winner.
type RequestLock struct {
	mu   sync.Mutex
	ids  map[string]LockToken
	last LockToken
}

// NewRequestLock returns an empty lock set.
func NewRequestLock() *RequestLock {
	return &RequestLock{ids: make(map[string]LockToken)}
}

// Acquire marks id as locked and returns the holder's token. It reports
// false and changes nothing when id is already locked.
func (l *RequestLock) Acquire(id string) (LockToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.ids[id]; held {
		return 0, false
	}
	l.last++
	l.ids[id] = l.last
	return l.last, true
}

// Release unlocks id if tok is still its holder. Releasing twice, or after
// a Reset handed id to someone else, is a no-op.
func (l *RequestLock) Release(id string, tok LockToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ids[id] == tok {
		delete(l.ids, id)
	}
}

// Held reports whether id is locked.
func (l *RequestLock) Held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.ids[id]
	return held
}

// Len returns the number of locked ids.
func (l *RequestLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Reset releases every lock. Tokens issued before the reset stay invalid.
func (l *RequestLock) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.ids)
}
