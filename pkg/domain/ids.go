package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Typed identifiers keep tenant, actor and artifact IDs from being mixed up at
// call sites. They wrap uuid.UUID so stores can persist them natively.

type TenantID uuid.UUID

type ActorID uuid.UUID

type ArtifactID uuid.UUID

type AttemptID uuid.UUID

func NewTenantID() TenantID     { return TenantID(uuid.New()) }
func NewActorID() ActorID       { return ActorID(uuid.New()) }
func NewArtifactID() ArtifactID { return ArtifactID(uuid.New()) }
func NewAttemptID() AttemptID   { return AttemptID(uuid.New()) }

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id ActorID) String() string    { return uuid.UUID(id).String() }
func (id ArtifactID) String() string { return uuid.UUID(id).String() }
func (id AttemptID) String() string  { return uuid.UUID(id).String() }

// SystemActorID attributes ledger entries produced by background jobs
// (sweeps, rotations) rather than an authenticated caller.
var SystemActorID = ActorID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ArtifactID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AttemptID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps the string UUID form in JSON payloads and ledger
// hash input instead of the raw byte-array encoding of the underlying type.

func (id TenantID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id ActorID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ArtifactID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id AttemptID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(text []byte) error {
	parsed, err := ParseTenantID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ActorID) UnmarshalText(text []byte) error {
	parsed, err := ParseActorID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ArtifactID) UnmarshalText(text []byte) error {
	parsed, err := ParseArtifactID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AttemptID) UnmarshalText(text []byte) error {
	parsed, err := ParseAttemptID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseTenantID parses and validates a tenant identifier. The nil UUID is
// rejected so an unset partition key can never pass tenant scoping.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parse(s, "tenant id")
	return TenantID(u), err
}

func ParseActorID(s string) (ActorID, error) {
	u, err := parse(s, "actor id")
	return ActorID(u), err
}

func ParseArtifactID(s string) (ArtifactID, error) {
	u, err := parse(s, "artifact id")
	return ArtifactID(u), err
}

func ParseAttemptID(s string) (AttemptID, error) {
	u, err := parse(s, "attempt id")
	return AttemptID(u), err
}

func parse(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s must not be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", kind, s, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must not be the nil UUID", kind)
	}
	return u, nil
}
