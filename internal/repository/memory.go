package repository

import (
	"context"
	"sync"

	"tts-relay/internal/domain"
)

// MemoryStore is an in-memory ledger and conversation state store. It backs
// the long-poll runner and tests; nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	spent  map[string]int
	states map[string]domain.ConversationState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spent:  make(map[string]int),
		states: make(map[string]domain.ConversationState),
	}
}

// GetOrCreate returns the quota record for identity, creating a zero record
// on first contact. The mutex makes concurrent first contacts observe a
// single record.
func (s *MemoryStore) GetOrCreate(_ context.Context, identity string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spent, ok := s.spent[identity]
	if !ok {
		s.spent[identity] = 0
	}
	return domain.User{Identity: identity, CharactersSpent: spent}, nil
}

// Charge adds characters to the identity's counter and returns the updated
// record.
func (s *MemoryStore) Charge(_ context.Context, identity string, characters int) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spent[identity] += characters
	return domain.User{Identity: identity, CharactersSpent: s.spent[identity]}, nil
}

// State returns the conversation mode for identity, Inactive when absent.
func (s *MemoryStore) State(_ context.Context, identity string) (domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[identity]
	if !ok {
		return domain.StateInactive, nil
	}
	return state, nil
}

// Activate marks identity as active. Idempotent.
func (s *MemoryStore) Activate(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[identity] = domain.StateActive
	return nil
}
