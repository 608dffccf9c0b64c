// Package dispatch tracks multi-channel delivery of compliance notifications
// as a sub-state-machine (queued, sending, delivered, failed, retrying) and
// records every transition in the hash-chain ledger, giving provable delivery
// history independent of any transport provider's own logs.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// Channel identifies a delivery transport class.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// channelPriority orders scheduling; lower dispatches first.
var channelPriority = map[Channel]int{
	ChannelEmail:   0,
	ChannelSMS:     1,
	ChannelPush:    2,
	ChannelWebhook: 3,
}

// ValidChannel reports whether c names a known transport class.
func ValidChannel(c Channel) bool {
	_, ok := channelPriority[c]
	return ok
}

// AttemptStatus is the delivery sub-state-machine.
type AttemptStatus string

const (
	AttemptQueued    AttemptStatus = "queued"
	AttemptSending   AttemptStatus = "sending"
	AttemptDelivered AttemptStatus = "delivered"
	AttemptFailed    AttemptStatus = "failed"
	AttemptRetrying  AttemptStatus = "retrying"
)

// ErrDeliveryExhausted is returned when an attempt fails with no retries
// left. It is a reported, human-actionable state, not a fatal process error.
var ErrDeliveryExhausted = errors.New("dispatch: delivery retries exhausted")

// Attempt is one delivery try for one channel. Attempts belong exclusively to
// their parent artifact and are removed only when the parent is purged.
type Attempt struct {
	ID              domain.AttemptID  `json:"id"`
	ArtifactID      domain.ArtifactID `json:"artifact_id"`
	TenantID        domain.TenantID   `json:"tenant_id"`
	Channel         Channel           `json:"channel"`
	Recipient       string            `json:"recipient"`
	RenderedContent string            `json:"rendered_content"`
	AttemptNumber   int               `json:"attempt_number"`
	Status          AttemptStatus     `json:"status"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	ErrorReason     string            `json:"error_reason,omitempty"`
	ProviderRef     string            `json:"provider_ref,omitempty"`
}

// Delivery is what the dispatcher hands a transport provider. The dispatcher
// knows nothing of the provider's protocol.
type Delivery struct {
	Channel         Channel
	Recipient       string
	RenderedContent string
}

// Result is the provider's verdict on one send.
type Result struct {
	Success     bool
	ProviderRef string
	Err         string
}

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks Provider,Store,ParentState

// Provider delivers rendered content over one channel.
type Provider interface {
	Send(ctx context.Context, delivery Delivery) (Result, error)
}

// Store persists delivery attempts and serves the due queue for the sweep.
type Store interface {
	Save(ctx context.Context, attempt *Attempt) error
	Get(ctx context.Context, id domain.AttemptID) (*Attempt, error)
	Update(ctx context.Context, attempt *Attempt) error
	ListByArtifact(ctx context.Context, artifact domain.ArtifactID) ([]Attempt, error)
	// DeleteByArtifact removes every attempt belonging to the artifact.
	// Attempts are owned by their parent; this is the only deletion path.
	DeleteByArtifact(ctx context.Context, artifact domain.ArtifactID) error
	// Due returns queued and retrying attempts whose ScheduledAt is at or
	// before now, oldest first, capped at limit.
	Due(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
}

// ParentState answers whether an attempt's parent artifact has reached a
// terminal status, and records escalation exhaustion on it. The compliance
// layer implements this; dispatch never touches artifacts directly.
type ParentState interface {
	IsTerminal(ctx context.Context, tenant domain.TenantID, artifact domain.ArtifactID) (bool, error)
	MarkEscalationUnresolved(ctx context.Context, tenant domain.TenantID, artifact domain.ArtifactID) error
}
