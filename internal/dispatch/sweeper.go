package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval = 15 * time.Second
	defaultSweepBatch    = 64
	sweepConcurrency     = 8
)

// Sweeper drains the due queue: every tick it loads attempts whose scheduled
// time has passed and pushes each one through send and result recording.
// Processing is at-least-once; BeginSend's status check makes replays no-ops,
// so multiple instances may sweep the same store safely.
type Sweeper struct {
	dispatcher *Dispatcher
	providers  map[Channel]Provider
	logger     *slog.Logger
	interval   time.Duration
	batch      int
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the tick interval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithSweepBatch overrides the per-tick batch size.
func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) { s.batch = n }
}

// NewSweeper creates a sweeper over the given providers, one per channel.
func NewSweeper(dispatcher *Dispatcher, providers map[Channel]Provider, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		dispatcher: dispatcher,
		providers:  providers,
		logger:     logger,
		interval:   defaultSweepInterval,
		batch:      defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "dispatch sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce processes one batch of due attempts. Per-attempt failures are
// logged and do not abort the rest of the batch; only store-level failures
// loading the batch are returned.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	due, err := s.dispatcher.store.Due(ctx, s.dispatcher.now(), s.batch)
	if err != nil {
		return fmt.Errorf("dispatch: load due attempts: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i := range due {
		attempt := due[i]
		g.Go(func() error {
			if err := s.process(ctx, &attempt); err != nil {
				s.logger.ErrorContext(ctx, "attempt processing failed",
					"attempt_id", attempt.ID,
					"channel", attempt.Channel,
					"error", err,
				)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) process(ctx context.Context, attempt *Attempt) error {
	provider, ok := s.providers[attempt.Channel]
	if !ok {
		return fmt.Errorf("dispatch: no provider for channel %s", attempt.Channel)
	}

	proceed, err := s.dispatcher.BeginSend(ctx, attempt)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	result, err := provider.Send(ctx, Delivery{
		Channel:         attempt.Channel,
		Recipient:       attempt.Recipient,
		RenderedContent: attempt.RenderedContent,
	})
	if err != nil {
		// A transport error counts as a failed attempt, the same as an
		// explicit provider rejection.
		result = Result{Success: false, Err: err.Error()}
	}
	return s.dispatcher.RecordResult(ctx, attempt, result)
}
