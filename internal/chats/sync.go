package chats

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/parley/internal/history"
)

const syncKey = "history"

// SyncHistory fetches the server history and replaces all local sessions
// with it. The first resolved session becomes active. Concurrent calls share
// one fetch. A failed fetch leaves local state untouched.
func (s *Store) SyncHistory(ctx context.Context) (int, error) {
	if s.history == nil {
		return 0, ErrNoHistorySource
	}
	if s.identity != nil && !s.identity.IsAuthenticated() {
		return 0, ErrUnauthenticated
	}

	v, err, shared := s.syncGroup.Do(syncKey, func() (any, error) {
		return s.syncOnce(ctx)
	})
	if err != nil {
		return 0, err
	}
	if shared {
		s.log.Debug().Msg("history sync shared with concurrent caller")
	}
	return v.(int), nil
}

func (s *Store) syncOnce(ctx context.Context) (int, error) {
	raw, err := s.history.FetchHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching history: %w", err)
	}

	records, errs := history.DecodeAll(raw)
	for _, err := range errs {
		if errors.Is(err, history.ErrBadTimestamp) {
			s.log.Debug().Err(err).Msg("history timestamp not parsed, message kept without one")
			continue
		}
		s.log.Warn().Err(err).Msg("malformed history record")
	}

	ids := s.replaceAll(records, true)
	return len(ids), nil
}
