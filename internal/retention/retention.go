// Package retention computes legally mandated retention periods and disposal
// dates. The legal basis attached to an artifact drives a minimum retention
// that callers can lengthen but never shorten.
package retention

import (
	"errors"
	"fmt"
	"time"
)

// LegalBasis is the regulatory ground justifying retention of a record.
type LegalBasis string

const (
	BasisConsent            LegalBasis = "consent"
	BasisContract           LegalBasis = "contract"
	BasisLegalObligation    LegalBasis = "legal_obligation"
	BasisVitalInterest      LegalBasis = "vital_interest"
	BasisPublicTask         LegalBasis = "public_task"
	BasisLegitimateInterest LegalBasis = "legitimate_interest"
	BasisLitigationHold     LegalBasis = "litigation_hold"
)

// DisposalMethod says how records are disposed of once retention lapses.
type DisposalMethod string

const (
	DisposalSecureDelete DisposalMethod = "secure_delete"
	DisposalAnonymize    DisposalMethod = "anonymize"
	DisposalArchive      DisposalMethod = "archive"
)

var (
	// ErrRetentionViolation is returned for disposal attempts before the
	// mandated minimum has elapsed.
	ErrRetentionViolation = errors.New("retention: disposal before mandated minimum")

	// ErrLegalHold is returned for any retention-shortening or deletion
	// request against a record under legal hold. Deliberately distinct
	// from ErrRetentionViolation so callers can surface it specifically.
	ErrLegalHold = errors.New("retention: record is under legal hold")

	// ErrUnknownBasis is returned when a legal basis is not in the table.
	ErrUnknownBasis = errors.New("retention: unknown legal basis")
)

const day = 24 * time.Hour

// Policy is the mandated floor and disposal method for one legal basis.
type Policy struct {
	Minimum  time.Duration
	Disposal DisposalMethod
}

// policies is the static lookup table. Durations follow the common statutory
// floors; litigation hold is effectively indefinite.
var policies = map[LegalBasis]Policy{
	BasisConsent:            {Minimum: 30 * day, Disposal: DisposalSecureDelete},
	BasisContract:           {Minimum: 6 * 365 * day, Disposal: DisposalArchive},
	BasisLegalObligation:    {Minimum: 7 * 365 * day, Disposal: DisposalArchive},
	BasisVitalInterest:      {Minimum: 90 * day, Disposal: DisposalSecureDelete},
	BasisPublicTask:         {Minimum: 5 * 365 * day, Disposal: DisposalArchive},
	BasisLegitimateInterest: {Minimum: 365 * day, Disposal: DisposalAnonymize},
	BasisLitigationHold:     {Minimum: 100 * 365 * day, Disposal: DisposalArchive},
}

// Known reports whether the basis has a policy entry.
func Known(basis LegalBasis) bool {
	_, ok := policies[basis]
	return ok
}

// MinimumRetention returns the mandated retention floor for a legal basis.
func MinimumRetention(basis LegalBasis) (time.Duration, error) {
	policy, ok := policies[basis]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBasis, basis)
	}
	return policy.Minimum, nil
}

// Disposal returns the disposal method mandated for a legal basis.
func Disposal(basis LegalBasis) (DisposalMethod, error) {
	policy, ok := policies[basis]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBasis, basis)
	}
	return policy.Disposal, nil
}

// EffectiveRetention returns the retention actually applied: the requested
// duration, floored at the mandated minimum. Callers can only lengthen,
// never shorten, mandated retention.
func EffectiveRetention(requested time.Duration, basis LegalBasis) (time.Duration, error) {
	minimum, err := MinimumRetention(basis)
	if err != nil {
		return 0, err
	}
	if requested > minimum {
		return requested, nil
	}
	return minimum, nil
}

// DisposalDate returns createdAt plus the effective retention for requested.
func DisposalDate(createdAt time.Time, requested time.Duration, basis LegalBasis) (time.Time, error) {
	effective, err := EffectiveRetention(requested, basis)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(effective), nil
}

// CheckDisposal authorizes a disposal request at `now` for a record created at
// createdAt. Records under litigation hold always refuse with ErrLegalHold;
// anything earlier than the mandated minimum refuses with ErrRetentionViolation.
func CheckDisposal(createdAt, now time.Time, basis LegalBasis) error {
	if basis == BasisLitigationHold {
		return ErrLegalHold
	}
	minimum, err := MinimumRetention(basis)
	if err != nil {
		return err
	}
	if now.Before(createdAt.Add(minimum)) {
		return fmt.Errorf("%w: %s retained until %s",
			ErrRetentionViolation, basis, createdAt.Add(minimum).Format(time.RFC3339))
	}
	return nil
}
