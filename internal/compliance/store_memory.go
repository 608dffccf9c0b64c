package compliance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

// InMemoryStore keeps artifacts in memory for tests and single-process runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[domain.ArtifactID]workflow.Artifact
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[domain.ArtifactID]workflow.Artifact)}
}

func (s *InMemoryStore) Save(_ context.Context, artifact *workflow.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[artifact.ID]; exists {
		return sentinel.ErrConflict
	}
	s.artifacts[artifact.ID] = cloneArtifact(artifact)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenant domain.TenantID, id domain.ArtifactID) (*workflow.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[id]
	if !ok || artifact.TenantID != tenant {
		return nil, sentinel.ErrNotFound
	}
	copied := cloneArtifact(&artifact)
	return &copied, nil
}

func (s *InMemoryStore) Update(_ context.Context, artifact *workflow.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.artifacts[artifact.ID]
	if !ok || existing.TenantID != artifact.TenantID {
		return sentinel.ErrNotFound
	}
	s.artifacts[artifact.ID] = cloneArtifact(artifact)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, tenant domain.TenantID, id domain.ArtifactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.artifacts[id]
	if !ok || existing.TenantID != tenant {
		return sentinel.ErrNotFound
	}
	delete(s.artifacts, id)
	return nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenant domain.TenantID) ([]workflow.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Artifact
	for _, artifact := range s.artifacts {
		if artifact.TenantID == tenant {
			out = append(out, cloneArtifact(&artifact))
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) ListDeadlined(_ context.Context, now time.Time) ([]workflow.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Artifact
	for _, artifact := range s.artifacts {
		if artifact.StatusDeadline == nil || artifact.StatusDeadline.After(now) {
			continue
		}
		if workflow.IsTerminal(artifact.Type, artifact.Status) {
			continue
		}
		out = append(out, cloneArtifact(&artifact))
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemoryStore) All(_ context.Context) ([]workflow.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Artifact, 0, len(s.artifacts))
	for _, artifact := range s.artifacts {
		out = append(out, cloneArtifact(&artifact))
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(artifacts []workflow.Artifact) {
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})
}

// cloneArtifact copies the maps and slices the caller could otherwise mutate
// behind the store's back.
func cloneArtifact(a *workflow.Artifact) workflow.Artifact {
	copied := *a
	if a.StatusDeadline != nil {
		deadline := *a.StatusDeadline
		copied.StatusDeadline = &deadline
	}
	copied.History = append([]workflow.TransitionRecord(nil), a.History...)
	copied.SensitiveFields = make(map[string]fieldcrypt.EncryptedField, len(a.SensitiveFields))
	for name, field := range a.SensitiveFields {
		copied.SensitiveFields[name] = field
	}
	return copied
}
