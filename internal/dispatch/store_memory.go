package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

// InMemoryStore keeps attempts in memory for tests and single-process runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	attempts map[domain.AttemptID]Attempt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attempts: make(map[domain.AttemptID]Attempt)}
}

func (s *InMemoryStore) Save(_ context.Context, attempt *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return sentinel.ErrConflict
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.AttemptID) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &attempt, nil
}

func (s *InMemoryStore) Update(_ context.Context, attempt *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *InMemoryStore) ListByArtifact(_ context.Context, artifact domain.ArtifactID) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Attempt
	for _, attempt := range s.attempts {
		if attempt.ArtifactID == artifact {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return channelPriority[out[i].Channel] < channelPriority[out[j].Channel]
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (s *InMemoryStore) DeleteByArtifact(_ context.Context, artifact domain.ArtifactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, attempt := range s.attempts {
		if attempt.ArtifactID == artifact {
			delete(s.attempts, id)
		}
	}
	return nil
}

func (s *InMemoryStore) Due(_ context.Context, now time.Time, limit int) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Attempt
	for _, attempt := range s.attempts {
		if attempt.Status != AttemptQueued && attempt.Status != AttemptRetrying {
			continue
		}
		if attempt.ScheduledAt.After(now) {
			continue
		}
		out = append(out, attempt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
