package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/ledger"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// ledgerAppendAttempts bounds the retry of the evidentiary append; the trail
// write shares the artifact operation's fate, so it only retries briefly.
const (
	ledgerAppendAttempts = 3
	ledgerAppendBackoff  = 100 * time.Millisecond
)

// Config carries the retry policy. Zero values fall back to defaults.
type Config struct {
	MaxRetries  int           // total attempts per channel, default 3
	BackoffBase time.Duration // first retry delay, default 30s
	SystemActor domain.ActorID
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	return c
}

// Dispatcher schedules deliveries and applies attempt results. Every state
// transition appends a ledger entry.
type Dispatcher struct {
	store   Store
	ledger  *ledger.Service
	parents ParentState
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	jitter  func(time.Duration) time.Duration
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithJitter overrides the backoff jitter, used by tests.
func WithJitter(j func(time.Duration) time.Duration) Option {
	return func(d *Dispatcher) { d.jitter = j }
}

// New creates a dispatcher.
func New(store Store, ledgerSvc *ledger.Service, parents ParentState, cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		ledger:  ledgerSvc,
		parents: parents,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		jitter: func(base time.Duration) time.Duration {
			if base <= 0 {
				return 0
			}
			return time.Duration(rand.Int64N(int64(base / 2)))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScheduleDelivery creates one queued attempt per delivery, ordered by
// configured channel priority.
func (d *Dispatcher) ScheduleDelivery(ctx context.Context, artifact *workflow.Artifact, deliveries []Delivery) ([]Attempt, error) {
	if len(deliveries) == 0 {
		return nil, fmt.Errorf("dispatch: at least one delivery is required")
	}
	ordered := append([]Delivery(nil), deliveries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return channelPriority[ordered[i].Channel] < channelPriority[ordered[j].Channel]
	})

	now := d.now()
	attempts := make([]Attempt, 0, len(ordered))
	for _, delivery := range ordered {
		attempt := Attempt{
			ID:              domain.NewAttemptID(),
			ArtifactID:      artifact.ID,
			TenantID:        artifact.TenantID,
			Channel:         delivery.Channel,
			Recipient:       delivery.Recipient,
			RenderedContent: delivery.RenderedContent,
			AttemptNumber:   1,
			Status:          AttemptQueued,
			ScheduledAt:     now,
		}
		if err := d.store.Save(ctx, &attempt); err != nil {
			return nil, fmt.Errorf("dispatch: save attempt: %w", err)
		}
		d.appendTrail(ctx, &attempt, ledger.ActionDeliveryQueued)
		if d.metrics != nil {
			d.metrics.IncScheduled(string(delivery.Channel))
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

// HasAttempts reports whether any delivery attempt exists for the artifact.
// Breach sweeps use it to avoid re-escalating on every pass.
// PurgeArtifact removes every attempt belonging to a purged artifact.
// Attempts share their parent's retention fate and have no deletion path of
// their own.
func (d *Dispatcher) PurgeArtifact(ctx context.Context, artifactID domain.ArtifactID) error {
	if err := d.store.DeleteByArtifact(ctx, artifactID); err != nil {
		return fmt.Errorf("dispatch: purge attempts for artifact %s: %w", artifactID, err)
	}
	return nil
}

func (d *Dispatcher) HasAttempts(ctx context.Context, artifactID domain.ArtifactID) (bool, error) {
	attempts, err := d.store.ListByArtifact(ctx, artifactID)
	if err != nil {
		return false, fmt.Errorf("dispatch: list attempts: %w", err)
	}
	return len(attempts) > 0, nil
}

// BeginSend moves a due attempt to sending. It is idempotent under
// at-least-once sweep triggers: only queued and retrying attempts move, and
// false is returned for anything else so re-processing is a no-op.
func (d *Dispatcher) BeginSend(ctx context.Context, attempt *Attempt) (bool, error) {
	current, err := d.store.Get(ctx, attempt.ID)
	if err != nil {
		return false, fmt.Errorf("dispatch: load attempt: %w", err)
	}
	if current.Status != AttemptQueued && current.Status != AttemptRetrying {
		return false, nil
	}

	// Cancellation contract: a parent moved to a terminal status causes
	// outstanding deliveries to be skipped at evaluation time, not
	// interrupted.
	terminal, err := d.parents.IsTerminal(ctx, current.TenantID, current.ArtifactID)
	if err != nil {
		return false, fmt.Errorf("dispatch: check parent status: %w", err)
	}
	if terminal {
		now := d.now()
		current.Status = AttemptFailed
		current.CompletedAt = &now
		current.ErrorReason = "skipped: parent artifact reached terminal status"
		if err := d.store.Update(ctx, current); err != nil {
			return false, fmt.Errorf("dispatch: update attempt: %w", err)
		}
		d.appendTrail(ctx, current, ledger.ActionDeliveryFailed)
		*attempt = *current
		return false, nil
	}

	current.Status = AttemptSending
	if err := d.store.Update(ctx, current); err != nil {
		return false, fmt.Errorf("dispatch: update attempt: %w", err)
	}
	d.appendTrail(ctx, current, ledger.ActionDeliverySending)
	*attempt = *current
	return true, nil
}

// RecordResult applies a provider outcome to a sending attempt. Success
// transitions to delivered. Failure transitions to failed and, while retries
// remain, schedules a retrying attempt with exponential backoff plus jitter;
// once retries are exhausted the parent's escalation is marked unresolved, a
// ledger entry is appended, and ErrDeliveryExhausted is returned.
//
// Re-processing an attempt that already completed is a no-op.
func (d *Dispatcher) RecordResult(ctx context.Context, attempt *Attempt, result Result) error {
	current, err := d.store.Get(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("dispatch: load attempt: %w", err)
	}
	if current.Status != AttemptSending {
		return nil
	}

	now := d.now()
	current.CompletedAt = &now
	current.ProviderRef = result.ProviderRef

	if result.Success {
		current.Status = AttemptDelivered
		if err := d.store.Update(ctx, current); err != nil {
			return fmt.Errorf("dispatch: update attempt: %w", err)
		}
		d.appendTrail(ctx, current, ledger.ActionDeliveryDelivered)
		if d.metrics != nil {
			d.metrics.IncDelivered(string(current.Channel))
		}
		*attempt = *current
		return nil
	}

	current.Status = AttemptFailed
	current.ErrorReason = result.Err
	if err := d.store.Update(ctx, current); err != nil {
		return fmt.Errorf("dispatch: update attempt: %w", err)
	}
	d.appendTrail(ctx, current, ledger.ActionDeliveryFailed)
	if d.metrics != nil {
		d.metrics.IncFailed(string(current.Channel))
	}
	*attempt = *current

	if current.AttemptNumber >= d.cfg.MaxRetries {
		return d.exhaust(ctx, current)
	}

	retry := Attempt{
		ID:              domain.NewAttemptID(),
		ArtifactID:      current.ArtifactID,
		TenantID:        current.TenantID,
		Channel:         current.Channel,
		Recipient:       current.Recipient,
		RenderedContent: current.RenderedContent,
		AttemptNumber:   current.AttemptNumber + 1,
		Status:          AttemptRetrying,
		ScheduledAt:     now.Add(d.backoff(current.AttemptNumber)),
	}
	if err := d.store.Save(ctx, &retry); err != nil {
		return fmt.Errorf("dispatch: schedule retry: %w", err)
	}
	d.appendTrail(ctx, &retry, ledger.ActionDeliveryRetrying)
	return nil
}

// backoff returns base * 2^(n-1) plus jitter for the nth failure.
func (d *Dispatcher) backoff(failedAttempts int) time.Duration {
	base := d.cfg.BackoffBase << (failedAttempts - 1)
	return base + d.jitter(base)
}

func (d *Dispatcher) exhaust(ctx context.Context, attempt *Attempt) error {
	if err := d.parents.MarkEscalationUnresolved(ctx, attempt.TenantID, attempt.ArtifactID); err != nil {
		return fmt.Errorf("dispatch: mark escalation unresolved: %w", err)
	}
	d.appendTrail(ctx, attempt, ledger.ActionEscalationUnresolved)
	if d.metrics != nil {
		d.metrics.IncExhausted(string(attempt.Channel))
	}
	d.logger.WarnContext(ctx, "delivery retries exhausted",
		"artifact_id", attempt.ArtifactID,
		"channel", attempt.Channel,
		"attempts", attempt.AttemptNumber,
	)
	return fmt.Errorf("%w: channel %s after %d attempts",
		ErrDeliveryExhausted, attempt.Channel, attempt.AttemptNumber)
}

// appendTrail writes the evidentiary ledger entry for a transition. The
// primary attempt update has already been persisted; the trail append retries
// briefly and a residual failure is surfaced in logs and metrics rather than
// unwinding the attempt.
func (d *Dispatcher) appendTrail(ctx context.Context, attempt *Attempt, action ledger.Action) {
	_, err := d.ledger.AppendWithRetry(ctx, ledger.AppendInput{
		TenantID: attempt.TenantID,
		ActorID:  d.cfg.SystemActor,
		Action:   action,
		Payload:  attempt,
	}, ledgerAppendAttempts, ledgerAppendBackoff)
	if err != nil {
		if d.metrics != nil {
			d.metrics.IncTrailFailures()
		}
		d.logger.ErrorContext(ctx, "delivery trail append failed",
			"attempt_id", attempt.ID,
			"action", action,
			"error", err,
		)
	}
}
