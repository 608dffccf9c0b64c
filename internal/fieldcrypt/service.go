// Package fieldcrypt encrypts named record fields at rest. It sits between
// the crypto primitives and the stores: callers hand it plaintext values and
// get back self-describing EncryptedField wrappers carrying nonce, tag and
// key-rotation metadata.
package fieldcrypt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mawilis/legal-doc-system-sub010/internal/crypto"
)

// ErrDecryption is returned when a field cannot be decrypted. It wraps the
// underlying cause (integrity failure, retired key) and must be treated as a
// hard failure: the ciphertext is never surfaced in its place.
var ErrDecryption = errors.New("fieldcrypt: field decryption failed")

// reencryptConcurrency bounds the rotation pass so a large migration does not
// starve request-path encryption of CPU.
const reencryptConcurrency = 8

// Service encrypts and decrypts individual fields using keys derived from the
// keyring for a (tenant, purpose) context.
type Service struct {
	keyring *Keyring
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a field encryption service.
func NewService(keyring *Keyring, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		keyring: keyring,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EncryptField encrypts value under the active key generation for keyCtx and
// stamps the result with algorithm and rotation metadata.
func (s *Service) EncryptField(ctx context.Context, name string, value []byte, keyCtx KeyContext) (EncryptedField, error) {
	generation := s.keyring.ActiveGeneration()
	key, err := s.keyring.keyFor(keyCtx, generation)
	if err != nil {
		return EncryptedField{}, fmt.Errorf("encrypt field %q: %w", name, err)
	}

	sealed, nonce, err := crypto.Encrypt(value, key)
	if err != nil {
		return EncryptedField{}, fmt.Errorf("encrypt field %q: %w", name, err)
	}
	if s.metrics != nil {
		s.metrics.IncFieldsEncrypted()
	}

	// Seal appends the tag to the ciphertext; the stored form keeps them
	// apart so tampering with either is distinguishable in forensics.
	split := len(sealed) - crypto.TagSize
	return EncryptedField{
		CipherText:    sealed[:split],
		Nonce:         nonce,
		Tag:           sealed[split:],
		AlgorithmID:   AlgorithmXChaCha20Poly1305,
		KeyGeneration: generation,
		EncryptedAt:   s.now(),
	}, nil
}

// DecryptField recovers the plaintext of field. It fails closed with an error
// wrapping ErrDecryption when the tag does not verify or the field's key
// generation has rotated out of the read window.
func (s *Service) DecryptField(ctx context.Context, field EncryptedField, keyCtx KeyContext) ([]byte, error) {
	if field.AlgorithmID != AlgorithmXChaCha20Poly1305 {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrDecryption, field.AlgorithmID)
	}
	key, err := s.keyring.keyFor(keyCtx, field.KeyGeneration)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncDecryptFailures("key_retired")
		}
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	sealed := make([]byte, 0, len(field.CipherText)+len(field.Tag))
	sealed = append(sealed, field.CipherText...)
	sealed = append(sealed, field.Tag...)

	plaintext, err := crypto.Decrypt(sealed, field.Nonce, key)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncDecryptFailures("integrity")
		}
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return plaintext, nil
}

// RotateIfDue advances the keyring when the rotation interval has elapsed and
// reports whether a rotation happened. The caller is expected to follow a
// rotation with a Reencrypt pass over stored fields.
func (s *Service) RotateIfDue(now time.Time) (uint32, bool) {
	if !s.keyring.RotationDue(now) {
		return s.keyring.ActiveGeneration(), false
	}
	generation := s.keyring.Rotate(now)
	s.logger.Info("encryption key rotated", "generation", generation)
	if s.metrics != nil {
		s.metrics.IncRotations()
	}
	return generation, true
}

// FieldRef names one stored field for the re-encryption pass.
type FieldRef struct {
	Name   string
	Field  *EncryptedField
	KeyCtx KeyContext
}

// Reencrypt migrates fields to the active generation. Failures are isolated
// per record: a field that cannot be migrated is logged and counted, and the
// pass continues. Fields already at the active generation are skipped.
func (s *Service) Reencrypt(ctx context.Context, refs []FieldRef) (migrated, failed int, err error) {
	active := s.keyring.ActiveGeneration()

	var g errgroup.Group
	g.SetLimit(reencryptConcurrency)
	attempted := make([]bool, len(refs))
	results := make([]error, len(refs))

	for i, ref := range refs {
		if ref.Field == nil || ref.Field.KeyGeneration == active {
			continue
		}
		attempted[i] = true
		g.Go(func() error {
			plaintext, derr := s.DecryptField(ctx, *ref.Field, ref.KeyCtx)
			if derr != nil {
				results[i] = derr
				return nil // isolate: one record must not block the rest
			}
			fresh, eerr := s.EncryptField(ctx, ref.Name, plaintext, ref.KeyCtx)
			if eerr != nil {
				results[i] = eerr
				return nil
			}
			*ref.Field = fresh
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return 0, 0, werr
	}

	for i, ref := range refs {
		if !attempted[i] {
			continue
		}
		if results[i] != nil {
			failed++
			s.logger.Error("field re-encryption failed",
				"field", ref.Name,
				"tenant_id", ref.KeyCtx.TenantID,
				"purpose", ref.KeyCtx.Purpose,
				"error", results[i],
			)
			continue
		}
		migrated++
	}
	if s.metrics != nil {
		s.metrics.AddReencrypted(migrated, failed)
	}
	return migrated, failed, nil
}
