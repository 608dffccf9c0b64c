package fieldcrypt

import (
	"errors"
	"sync"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/crypto"
)

// ErrKeyRetired is returned when a field was encrypted under a generation that
// has rotated out of the read window without being migrated. Callers must
// treat this as a hard failure; the ciphertext is never returned as a value.
var ErrKeyRetired = errors.New("fieldcrypt: key generation retired without migration")

// Keyring tracks the active key generation and derives per-context keys from a
// single master key. After a rotation, data written under the previous
// generation stays readable (dual-key read window) until the re-encryption
// pass has migrated it; anything older fails with ErrKeyRetired.
type Keyring struct {
	mu         sync.RWMutex
	master     []byte
	generation uint32
	rotatedAt  time.Time
	interval   time.Duration
}

// NewKeyring validates the master key and starts at generation 1.
func NewKeyring(master []byte, interval time.Duration, now time.Time) (*Keyring, error) {
	if len(master) != crypto.KeySize {
		return nil, crypto.ErrKeySize
	}
	if interval <= 0 {
		return nil, errors.New("fieldcrypt: rotation interval must be positive")
	}
	return &Keyring{
		master:     append([]byte(nil), master...),
		generation: 1,
		rotatedAt:  now,
		interval:   interval,
	}, nil
}

// ActiveGeneration returns the generation new writes use.
func (k *Keyring) ActiveGeneration() uint32 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.generation
}

// RotationDue reports whether the rotation interval has elapsed.
func (k *Keyring) RotationDue(now time.Time) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return !now.Before(k.rotatedAt.Add(k.interval))
}

// Rotate advances to a new active generation. The previous generation remains
// readable so rotation never invalidates data awaiting migration.
func (k *Keyring) Rotate(now time.Time) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.generation++
	k.rotatedAt = now
	return k.generation
}

// keyFor derives the key for a context at a specific generation. Only the
// active and the immediately previous generation are within the read window.
func (k *Keyring) keyFor(ctx KeyContext, generation uint32) ([]byte, error) {
	k.mu.RLock()
	active := k.generation
	master := k.master
	k.mu.RUnlock()

	if generation == 0 || generation > active {
		return nil, ErrKeyRetired
	}
	if generation < active-1 { // underflow safe: generation >= 1 here
		return nil, ErrKeyRetired
	}
	return crypto.DeriveKey(master, ctx.label(), generation)
}
