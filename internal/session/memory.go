package session

import (
	"context"
	"encoding/json"
	"sync"

	"babygen/internal/domain"
)

// MemoryStore keeps sessions in process memory. It round-trips state
// through JSON so callers never share mutable references with the store,
// matching the behavior of the Redis backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*domain.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	if state.StageArtifacts == nil {
		state.StageArtifacts = make(map[domain.GenerationStage]domain.SourceArtifact)
	}
	return &state, nil
}

func (s *MemoryStore) Save(ctx context.Context, state *domain.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[state.ID] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}
