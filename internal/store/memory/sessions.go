package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/acentrix/quotefunnel/internal/core"
)

type key struct {
	session string
	line    core.LineCode
}

// SessionStore is the in-memory session record store used in dev and tests.
type SessionStore struct {
	mu   sync.RWMutex
	recs map[key]core.SessionRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{recs: map[key]core.SessionRecord{}}
}

func (s *SessionStore) Get(_ context.Context, sessionID string, line core.LineCode) (core.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key{sessionID, line}]
	if !ok {
		return core.SessionRecord{}, fmt.Errorf("%w: session record %s/%s", core.ErrNotFound, sessionID, line)
	}
	return rec, nil
}

func (s *SessionStore) Put(_ context.Context, rec core.SessionRecord) error {
	if rec.SessionID == "" || rec.ProductLine == "" {
		return fmt.Errorf("%w: session record needs session id and product line", core.ErrValidation)
	}
	s.mu.Lock()
	s.recs[key{rec.SessionID, rec.ProductLine}] = rec
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string, line core.LineCode) error {
	s.mu.Lock()
	delete(s.recs, key{sessionID, line})
	s.mu.Unlock()
	return nil
}
