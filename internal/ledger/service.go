package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

// Publisher fans appended entries out to a secondary sink (Kafka). The fan-out
// is a fallible secondary write: its failure is logged and counted but never
// fails the append itself.
type Publisher interface {
	Publish(ctx context.Context, entry *Entry)
}

// Service appends to and verifies per-tenant hash chains.
//
// Appends for one tenant are strictly serialized through a per-tenant mutex so
// PreviousHash always reflects the true immediate predecessor. Two concurrent
// appends reading the same stale predecessor would silently fork the chain,
// which is why this path never uses optimistic retry on hash linkage.
// Appends for different tenants do not contend.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time

	mu    sync.Mutex
	locks map[domain.TenantID]*sync.Mutex
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithPublisher attaches the entry fan-out publisher.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service over the given store.
func NewService(store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("ledger"),
		now:    time.Now,
		locks:  make(map[domain.TenantID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendInput carries the caller-supplied parts of a new entry.
type AppendInput struct {
	TenantID  domain.TenantID
	ActorID   domain.ActorID
	Action    Action
	Payload   any
	RequestID string
	UserAgent string
}

// Append records a new entry at the head of the tenant's chain. A failed
// append surfaces as an error, never a partial write; callers that can
// tolerate latency should retry with AppendWithRetry.
func (s *Service) Append(ctx context.Context, in AppendInput) (*Entry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Append",
		trace.WithAttributes(
			attribute.String("tenant_id", in.TenantID.String()),
			attribute.String("action", string(in.Action)),
		))
	defer span.End()

	if in.TenantID.IsNil() {
		return nil, errors.New("ledger: tenant id is required")
	}
	if in.ActorID.IsNil() {
		return nil, errors.New("ledger: actor id is required")
	}
	if in.Action == "" {
		return nil, errors.New("ledger: action is required")
	}

	digest, err := DigestPayload(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	lock := s.tenantLock(in.TenantID)
	lock.Lock()
	defer lock.Unlock()

	sequence := uint64(1)
	previous := GenesisHash
	last, err := s.store.Last(ctx, in.TenantID)
	switch {
	case err == nil:
		sequence = last.SequenceIndex + 1
		previous = last.SelfHash
	case errors.Is(err, sentinel.ErrNotFound):
		// First entry for this tenant; chain starts at the genesis value.
	default:
		return nil, fmt.Errorf("ledger: read chain head: %w", err)
	}

	entry := &Entry{
		SequenceIndex: sequence,
		// TIMESTAMPTZ holds microseconds; anything finer would rehash
		// differently after a round-trip through the postgres store.
		Timestamp:     s.now().UTC().Truncate(time.Microsecond),
		TenantID:      in.TenantID,
		ActorID:       in.ActorID,
		Action:        in.Action,
		PayloadDigest: digest,
		PreviousHash:  previous,
		RequestID:     in.RequestID,
		UserAgent:     in.UserAgent,
	}
	entry.SelfHash, err = ComputeSelfHash(entry)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	if err := s.store.Append(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.IncAppendFailures()
		}
		return nil, fmt.Errorf("ledger: append entry %d for tenant %s: %w",
			entry.SequenceIndex, in.TenantID, err)
	}
	if s.metrics != nil {
		s.metrics.IncAppends(string(in.Action))
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, entry)
	}
	return entry, nil
}

// AppendWithRetry retries Append with exponential backoff when the store is
// unavailable. Validation errors and conflicts are not retried.
func (s *Service) AppendWithRetry(ctx context.Context, in AppendInput, attempts int, backoff time.Duration) (*Entry, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff << (attempt - 1)):
			}
		}
		entry, err := s.Append(ctx, in)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, sentinel.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
		s.logger.WarnContext(ctx, "ledger append retrying",
			"tenant_id", in.TenantID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("ledger: append exhausted %d attempts: %w", attempts, lastErr)
}

// VerifyChain recomputes hashes over [from, to] and reports the first broken
// link. Every entry in the range is rehashed; a forged entry could otherwise
// appear internally consistent if only spot-checked. A break is reported in
// the result and never repaired.
func (s *Service) VerifyChain(ctx context.Context, tenant domain.TenantID, from, to uint64) (VerificationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.VerifyChain",
		trace.WithAttributes(
			attribute.String("tenant_id", tenant.String()),
			attribute.Int64("from", int64(from)),
			attribute.Int64("to", int64(to)),
		))
	defer span.End()

	if from == 0 {
		from = 1
	}
	if to != 0 && to < from {
		return VerificationResult{}, fmt.Errorf("ledger: invalid range [%d, %d]", from, to)
	}

	entries, err := s.store.Range(ctx, tenant, from, to)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("ledger: read range: %w", err)
	}

	result := VerificationResult{Intact: true, CheckedEntries: len(entries)}
	broken := func(index uint64) VerificationResult {
		if s.metrics != nil {
			s.metrics.IncChainBreaks()
		}
		return VerificationResult{Intact: false, BrokenAtIndex: &index, CheckedEntries: len(entries)}
	}

	expectedPrevious := ""
	for i := range entries {
		entry := &entries[i]

		// Sequence continuity inside the range.
		if i > 0 && entry.SequenceIndex != entries[i-1].SequenceIndex+1 {
			return broken(entry.SequenceIndex), nil
		}

		// Every entry is rehashed, no shortcuts.
		recomputed, err := ComputeSelfHash(entry)
		if err != nil {
			return VerificationResult{}, fmt.Errorf("ledger: rehash entry %d: %w", entry.SequenceIndex, err)
		}
		if recomputed != entry.SelfHash {
			return broken(entry.SequenceIndex), nil
		}

		switch {
		case i == 0 && entry.SequenceIndex == 1:
			if entry.PreviousHash != GenesisHash {
				return broken(entry.SequenceIndex), nil
			}
		case i == 0:
			// Range starts mid-chain; linkage to the predecessor outside
			// the range cannot be checked here. A purged predecessor is
			// still a visible break.
			if entry.PredecessorPurged {
				return broken(entry.SequenceIndex), nil
			}
		default:
			if entry.PredecessorPurged || entry.PreviousHash != expectedPrevious {
				return broken(entry.SequenceIndex), nil
			}
		}
		expectedPrevious = entry.SelfHash
	}
	return result, nil
}

// PurgeBefore removes a tenant's entries older than cutoff once the
// governing retention basis allows it. Litigation holds refuse outright;
// a cutoff inside the retention window is a retention violation. The
// oldest surviving entry keeps its purge marker, so verification reports
// the gap instead of healing around it.
func (s *Service) PurgeBefore(ctx context.Context, tenant domain.TenantID, cutoff time.Time, basis retention.LegalBasis) (int, error) {
	if basis == retention.BasisLitigationHold {
		return 0, retention.ErrLegalHold
	}
	minimum, err := retention.MinimumRetention(basis)
	if err != nil {
		return 0, err
	}
	if s.now().Sub(cutoff) < minimum {
		return 0, fmt.Errorf("%w: cutoff %s is inside the %s retention window",
			retention.ErrRetentionViolation, cutoff.UTC().Format(time.RFC3339), basis)
	}

	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	removed, err := s.store.PurgeBefore(ctx, tenant, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: purge before %s: %w", cutoff.UTC().Format(time.RFC3339), err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "ledger entries purged",
			"tenant_id", tenant,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
			"removed", removed,
		)
	}
	return removed, nil
}

// tenantLock returns the mutex serializing appends for one tenant.
func (s *Service) tenantLock(tenant domain.TenantID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[tenant]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[tenant] = lock
	}
	return lock
}
