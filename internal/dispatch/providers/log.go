package providers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Mawilis/legal-doc-system-sub010/internal/dispatch"
)

// Log records deliveries to the structured log instead of an external
// transport. It stands in for channels without a configured gateway in
// development and staging environments.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (p *Log) Send(ctx context.Context, delivery dispatch.Delivery) (dispatch.Result, error) {
	ref := uuid.NewString()
	p.logger.InfoContext(ctx, "notification delivered to log sink",
		"channel", delivery.Channel,
		"recipient", delivery.Recipient,
		"provider_ref", ref,
	)
	return dispatch.Result{Success: true, ProviderRef: ref}, nil
}
