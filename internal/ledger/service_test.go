package ledger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	store  *InMemoryStore
	svc    *Service
	tenant domain.TenantID
	actor  domain.ActorID
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.svc = NewService(s.store, slog.New(slog.DiscardHandler))
	s.tenant = domain.NewTenantID()
	s.actor = domain.NewActorID()
}

func (s *LedgerSuite) append(action Action, payload any) *Entry {
	entry, err := s.svc.Append(s.ctx, AppendInput{
		TenantID: s.tenant,
		ActorID:  s.actor,
		Action:   action,
		Payload:  payload,
	})
	s.Require().NoError(err)
	return entry
}

func (s *LedgerSuite) TestFirstEntryLinksToGenesis() {
	entry := s.append(ActionArtifactCreated, map[string]string{"kind": "access_request"})

	s.Equal(uint64(1), entry.SequenceIndex)
	s.Equal(GenesisHash, entry.PreviousHash)

	recomputed, err := ComputeSelfHash(entry)
	s.Require().NoError(err)
	s.Equal(recomputed, entry.SelfHash)
}

func (s *LedgerSuite) TestChainLinksAndVerifies() {
	for i := 0; i < 10; i++ {
		s.append(ActionArtifactModified, map[string]int{"revision": i})
	}

	result, err := s.svc.VerifyChain(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	s.True(result.Intact)
	s.Nil(result.BrokenAtIndex)
	s.Equal(10, result.CheckedEntries)
	s.NoError(result.Err())
}

func (s *LedgerSuite) TestTamperedContentIsPinpointed() {
	for i := 0; i < 8; i++ {
		s.append(ActionStatusChanged, map[string]int{"step": i})
	}

	s.Require().True(s.store.Tamper(s.tenant, 5, func(e *Entry) {
		e.PayloadDigest = "0000000000000000000000000000000000000000000000000000000000000000"
	}))

	result, err := s.svc.VerifyChain(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	s.False(result.Intact)
	s.Require().NotNil(result.BrokenAtIndex)
	s.Equal(uint64(5), *result.BrokenAtIndex)

	var chainErr *ChainBrokenError
	s.Require().ErrorAs(result.Err(), &chainErr)
	s.Equal(uint64(5), chainErr.Index)
}

func (s *LedgerSuite) TestSwappedLinkIsDetected() {
	for i := 0; i < 4; i++ {
		s.append(ActionArtifactAccessed, i)
	}

	// Rewrite entry 3 to be internally consistent but linked to the wrong
	// predecessor. Full rehashing must still catch the forged link.
	s.Require().True(s.store.Tamper(s.tenant, 3, func(e *Entry) {
		e.PreviousHash = GenesisHash
		selfHash, err := ComputeSelfHash(e)
		s.Require().NoError(err)
		e.SelfHash = selfHash
	}))

	result, err := s.svc.VerifyChain(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	s.False(result.Intact)
	s.Equal(uint64(3), *result.BrokenAtIndex)
}

func (s *LedgerSuite) TestSubRangeVerification() {
	for i := 0; i < 6; i++ {
		s.append(ActionArtifactAccessed, i)
	}

	result, err := s.svc.VerifyChain(s.ctx, s.tenant, 3, 5)
	s.Require().NoError(err)
	s.True(result.Intact)
	s.Equal(3, result.CheckedEntries)
}

func (s *LedgerSuite) TestConcurrentAppendsSameTenantSingleChain() {
	const writers = 16

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := s.svc.Append(s.ctx, AppendInput{
				TenantID: s.tenant,
				ActorID:  s.actor,
				Action:   ActionArtifactModified,
				Payload:  i,
			})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	entries, err := s.store.Range(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, writers)

	seen := make(map[string]bool)
	for i, entry := range entries {
		s.Equal(uint64(i+1), entry.SequenceIndex, "no duplicate or missing sequence index")
		s.False(seen[entry.PreviousHash], "no duplicate previous hash")
		seen[entry.PreviousHash] = true
	}

	result, err := s.svc.VerifyChain(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	s.True(result.Intact, "exactly one chain, no fork")
}

func (s *LedgerSuite) TestTenantsDoNotShareChains() {
	other := domain.NewTenantID()

	s.append(ActionArtifactCreated, "a")
	entry, err := s.svc.Append(s.ctx, AppendInput{
		TenantID: other,
		ActorID:  s.actor,
		Action:   ActionArtifactCreated,
		Payload:  "b",
	})
	s.Require().NoError(err)

	s.Equal(uint64(1), entry.SequenceIndex, "each tenant starts its own chain")
	s.Equal(GenesisHash, entry.PreviousHash)
}

func (s *LedgerSuite) TestPurgeMarksSuccessorBroken() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc := NewService(s.store, slog.New(slog.DiscardHandler), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}))
	for i := 0; i < 5; i++ {
		_, err := svc.Append(s.ctx, AppendInput{
			TenantID: s.tenant, ActorID: s.actor,
			Action: ActionArtifactAccessed, Payload: i,
		})
		s.Require().NoError(err)
	}

	removed, err := s.store.PurgeBefore(s.ctx, s.tenant, base.Add(3*time.Hour+time.Minute))
	s.Require().NoError(err)
	s.Equal(3, removed)

	result, err := svc.VerifyChain(s.ctx, s.tenant, 1, 0)
	s.Require().NoError(err)
	s.False(result.Intact, "a purge boundary stays visibly broken")
	s.Require().NotNil(result.BrokenAtIndex)
	s.Equal(uint64(4), *result.BrokenAtIndex)
}

func (s *LedgerSuite) TestAppendValidatesInput() {
	_, err := s.svc.Append(s.ctx, AppendInput{ActorID: s.actor, Action: ActionArtifactCreated})
	s.Error(err)

	_, err = s.svc.Append(s.ctx, AppendInput{TenantID: s.tenant, Action: ActionArtifactCreated})
	s.Error(err)

	_, err = s.svc.Append(s.ctx, AppendInput{TenantID: s.tenant, ActorID: s.actor})
	s.Error(err)
}

func TestTenantLockReuse(t *testing.T) {
	svc := NewService(NewInMemoryStore(), slog.New(slog.DiscardHandler))
	tenant := domain.NewTenantID()

	var wg sync.WaitGroup
	locks := make([]*sync.Mutex, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks[i] = svc.tenantLock(tenant)
		}()
	}
	wg.Wait()

	for i := 1; i < 8; i++ {
		if locks[i] != locks[0] {
			t.Fatal("tenantLock must return one mutex per tenant")
		}
	}
}

func TestPurgeBeforeEnforcesRetentionFloor(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	svc := NewService(store, slog.New(slog.DiscardHandler),
		WithClock(func() time.Time { return now }))
	tenant := domain.NewTenantID()
	actor := domain.NewActorID()

	for i := 0; i < 4; i++ {
		_, err := svc.Append(ctx, AppendInput{
			TenantID: tenant,
			ActorID:  actor,
			Action:   ActionArtifactCreated,
			Payload:  map[string]int{"n": i},
		})
		require.NoError(t, err)
		now = now.Add(24 * time.Hour)
	}

	_, err := svc.PurgeBefore(ctx, tenant, base.Add(48*time.Hour), retention.BasisLitigationHold)
	require.ErrorIs(t, err, retention.ErrLegalHold)

	_, err = svc.PurgeBefore(ctx, tenant, base.Add(48*time.Hour), retention.BasisConsent)
	require.ErrorIs(t, err, retention.ErrRetentionViolation)

	now = base.Add(60 * 24 * time.Hour)
	removed, err := svc.PurgeBefore(ctx, tenant, base.Add(48*time.Hour), retention.BasisConsent)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	result, err := svc.VerifyChain(ctx, tenant, 3, 0)
	require.NoError(t, err)
	require.False(t, result.Intact)
	require.Equal(t, uint64(3), *result.BrokenAtIndex)
}

func TestVerifyChainSurvivesMicrosecondStores(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Date(2026, 4, 1, 10, 0, 0, 123456789, time.UTC)
	svc := NewService(store, slog.New(slog.DiscardHandler),
		WithClock(func() time.Time { return now }))
	tenant := domain.NewTenantID()

	entry, err := svc.Append(ctx, AppendInput{
		TenantID: tenant,
		ActorID:  domain.NewActorID(),
		Action:   ActionArtifactCreated,
		Payload:  map[string]string{"kind": "access_request"},
	})
	require.NoError(t, err)
	require.Equal(t, entry.Timestamp, entry.Timestamp.Truncate(time.Microsecond))

	// TIMESTAMPTZ round-trips at microsecond precision; an entry read back
	// from postgres must still rehash to the value it was stored with.
	store.Tamper(tenant, 1, func(e *Entry) {
		e.Timestamp = e.Timestamp.Truncate(time.Microsecond)
	})

	result, err := svc.VerifyChain(ctx, tenant, 1, 0)
	require.NoError(t, err)
	require.True(t, result.Intact)
	require.Nil(t, result.BrokenAtIndex)
}
