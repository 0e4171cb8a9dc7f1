package store

import (
	"errors"
	"sync"

	"github.com/AngelCh415/perfmerge/internal/models"
)

var ErrNotFound = errors.New("run not found")

// MemoryStore keeps the results of merge runs for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*models.RunResult
	latest string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*models.RunResult)}
}

func (s *MemoryStore) Put(r *models.RunResult) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
	if cur, ok := s.runs[s.latest]; !ok || !r.StartedAt.Before(cur.StartedAt) {
		s.latest = r.ID
	}
}

func (s *MemoryStore) Get(id string) (*models.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Latest() (*models.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[s.latest]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) All() []models.RunResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RunResult, 0, len(s.runs))
	for _, v := range s.runs {
		out = append(out, *v)
	}
	return out
}
