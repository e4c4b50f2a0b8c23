package application

import (
	"sync"

	"github.com/bnema/terms-cli/internal/domain"
)

// CursorStore holds the sync position of every conversation. Cursors live in
// memory only; the optional snapshot cache persists them alongside messages.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[domain.ConversationID]domain.Cursor
}

func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[domain.ConversationID]domain.Cursor)}
}

func (s *CursorStore) Get(id domain.ConversationID) (domain.Cursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursor, ok := s.cursors[id]
	return cursor, ok
}

// Advance stores the delta token of a fully applied round.
func (s *CursorStore) Advance(id domain.ConversationID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor := s.cursors[id]
	cursor.DeltaToken = token
	s.cursors[id] = cursor
}

// SetPagination records the continuation toward older history. An empty
// token means history is complete.
func (s *CursorStore) SetPagination(id domain.ConversationID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor := s.cursors[id]
	cursor.PageToken = token
	s.cursors[id] = cursor
}

// Drop forgets the cursor so the next sync starts a fresh baseline.
func (s *CursorStore) Drop(id domain.ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, id)
}

func (s *CursorStore) Restore(id domain.ConversationID, cursor domain.Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[id] = cursor
}
