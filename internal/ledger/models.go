// Package ledger implements the per-tenant hash-chained audit ledger. Every
// sensitive action is recorded as an immutable entry whose hash covers the
// previous entry's hash, so retroactive tampering is detectable by rehashing
// the chain.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/crypto"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// Action classifies what a ledger entry records.
type Action string

const (
	// Access and mutation of compliance artifacts.
	ActionArtifactAccessed Action = "artifact_accessed"
	ActionArtifactCreated  Action = "artifact_created"
	ActionArtifactModified Action = "artifact_modified"
	ActionStatusChanged    Action = "status_changed"

	// Notification and escalation dispatch trail.
	ActionDeliveryQueued       Action = "delivery_queued"
	ActionDeliverySending      Action = "delivery_sending"
	ActionDeliveryDelivered    Action = "delivery_delivered"
	ActionDeliveryFailed       Action = "delivery_failed"
	ActionDeliveryRetrying     Action = "delivery_retrying"
	ActionEscalationUnresolved Action = "escalation_unresolved"

	// Housekeeping with evidentiary significance.
	ActionRetentionPurge Action = "retention_purge"
	ActionKeyRotated     Action = "key_rotated"
)

// GenesisHash is the previous-hash value of the first entry in a tenant's
// chain: the hex form of 32 zero bytes.
var GenesisHash = hex.EncodeToString(make([]byte, crypto.DigestSize))

// Entry is one immutable ledger record. It is created exactly once at append
// time and never mutated; SelfHash is recomputable from the other fields, and
// PreviousHash links it to its true immediate predecessor.
type Entry struct {
	SequenceIndex uint64          `json:"sequence_index"`
	Timestamp     time.Time       `json:"timestamp"`
	TenantID      domain.TenantID `json:"tenant_id"`
	ActorID       domain.ActorID  `json:"actor_id"`
	Action        Action          `json:"action"`
	PayloadDigest string          `json:"payload_digest"`
	PreviousHash  string          `json:"previous_hash"`
	SelfHash      string          `json:"self_hash"`

	// Request context carried for forensics; not part of the hash input so
	// enrichment pipelines can stay independent of chain verification.
	RequestID string `json:"request_id,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// PredecessorPurged marks that the entry's predecessor was removed by a
	// retention purge. The link stays visibly broken; verification never
	// heals it.
	PredecessorPurged bool `json:"predecessor_purged,omitempty"`
}

// hashInput is the canonical serialization hashed into SelfHash. Field order
// is fixed by the struct declaration, so the digest is deterministic.
type hashInput struct {
	SequenceIndex uint64 `json:"sequence_index"`
	Timestamp     string `json:"timestamp"`
	TenantID      string `json:"tenant_id"`
	ActorID       string `json:"actor_id"`
	Action        Action `json:"action"`
	PayloadDigest string `json:"payload_digest"`
	PreviousHash  string `json:"previous_hash"`
}

// ComputeSelfHash returns the hash the entry must carry given its own fields
// and PreviousHash. Exposed so verification can recompute it independently.
func ComputeSelfHash(e *Entry) (string, error) {
	in := hashInput{
		SequenceIndex: e.SequenceIndex,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		TenantID:      e.TenantID.String(),
		ActorID:       e.ActorID.String(),
		Action:        e.Action,
		PayloadDigest: e.PayloadDigest,
		PreviousHash:  e.PreviousHash,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("serialize hash input: %w", err)
	}
	sum := crypto.Digest(raw)
	return hex.EncodeToString(sum[:]), nil
}

// DigestPayload hashes the acted-upon object for inclusion in an entry.
func DigestPayload(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	sum := crypto.Digest(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerificationResult reports the outcome of a chain verification. It always
// carries the index of the first broken link so operators can pinpoint
// tampering; a bare boolean is never exposed.
type VerificationResult struct {
	Intact         bool    `json:"intact"`
	BrokenAtIndex  *uint64 `json:"broken_at_index"`
	CheckedEntries int     `json:"checked_entries"`
}

// Err returns a ChainBrokenError when the chain is not intact, nil otherwise.
func (r VerificationResult) Err() error {
	if r.Intact {
		return nil
	}
	return &ChainBrokenError{Index: *r.BrokenAtIndex}
}

// ChainBrokenError signals a failed chain verification. It is always reported
// to the caller and never auto-healed: rewriting the chain would destroy its
// evidentiary value.
type ChainBrokenError struct {
	Index uint64
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("ledger: chain broken at sequence index %d", e.Index)
}

// Store persists ledger entries partitioned by tenant. Implementations must
// reject duplicate (tenant, sequence index) pairs with sentinel.ErrConflict
// and must never write a partial entry.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Last(ctx context.Context, tenant domain.TenantID) (*Entry, error)
	Range(ctx context.Context, tenant domain.TenantID, from, to uint64) ([]Entry, error)
	// PurgeBefore removes entries older than cutoff and marks the first
	// surviving entry's predecessor link as purged. Returns the number of
	// entries removed.
	PurgeBefore(ctx context.Context, tenant domain.TenantID, cutoff time.Time) (int, error)
}
