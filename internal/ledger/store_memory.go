package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

// InMemoryStore keeps per-tenant chains in memory. Used by unit tests and
// single-process deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	chains map[domain.TenantID][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chains: make(map[domain.TenantID][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[entry.TenantID]
	if len(chain) > 0 && chain[len(chain)-1].SequenceIndex >= entry.SequenceIndex {
		return sentinel.ErrConflict
	}
	s.chains[entry.TenantID] = append(chain, *entry)
	return nil
}

func (s *InMemoryStore) Last(_ context.Context, tenant domain.TenantID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[tenant]
	if len(chain) == 0 {
		return nil, sentinel.ErrNotFound
	}
	last := chain[len(chain)-1]
	return &last, nil
}

func (s *InMemoryStore) Range(_ context.Context, tenant domain.TenantID, from, to uint64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.chains[tenant] {
		if entry.SequenceIndex < from {
			continue
		}
		if to != 0 && entry.SequenceIndex > to {
			break
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *InMemoryStore) PurgeBefore(_ context.Context, tenant domain.TenantID, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[tenant]
	keep := 0
	for keep < len(chain) && chain[keep].Timestamp.Before(cutoff) {
		keep++
	}
	if keep == 0 {
		return 0, nil
	}
	remaining := append([]Entry(nil), chain[keep:]...)
	if len(remaining) > 0 {
		remaining[0].PredecessorPurged = true
	}
	s.chains[tenant] = remaining
	return keep, nil
}

// Tamper overwrites a stored entry in place. Only for verification tests;
// production stores have no mutation path.
func (s *InMemoryStore) Tamper(tenant domain.TenantID, sequenceIndex uint64, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.chains[tenant]
	for i := range chain {
		if chain[i].SequenceIndex == sequenceIndex {
			mutate(&chain[i])
			return true
		}
	}
	return false
}
