// Package crypto provides the authenticated-encryption and hashing primitives
// the ledger and field-encryption layers are built on. It wraps
// XChaCha20-Poly1305 for encryption and SHA-256 for digests; key derivation
// uses HKDF so per-tenant keys never have to be stored individually.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required symmetric key length in bytes.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the length of the random per-call nonce. XChaCha20's
	// 24-byte nonce makes random generation safe without a counter.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the length of the Poly1305 authentication tag appended to
	// the ciphertext by Seal.
	TagSize = chacha20poly1305.Overhead

	// DigestSize is the length of Digest output.
	DigestSize = sha256.Size
)

var (
	// ErrKeySize is returned when a key is not exactly KeySize bytes.
	ErrKeySize = errors.New("crypto: key must be 32 bytes")

	// ErrIntegrity is returned when authenticated decryption fails tag
	// verification. The AEAD verifies the full tag in constant time, so the
	// error carries no information about where verification failed.
	ErrIntegrity = errors.New("crypto: ciphertext failed integrity check")
)

// Encrypt seals plaintext under key with a fresh random nonce. The returned
// ciphertext includes the Poly1305 tag as its final TagSize bytes. A nonce is
// never reused for the same key: each call draws NonceSize bytes from
// crypto/rand, which at 24 bytes makes collision probability negligible.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. It fails closed: on any tag
// mismatch the plaintext is withheld entirely and ErrIntegrity is returned.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("crypto: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// Digest returns the SHA-256 digest of data. Used for payload digests and for
// chain linking; deterministic by construction.
func Digest(data []byte) [DigestSize]byte {
	return sha256.Sum256(data)
}

// DeriveKey derives a KeySize-byte key from the master key for the given
// context and generation. The same inputs always yield the same key, so the
// keyring only needs to persist the master key and generation counters.
func DeriveKey(master []byte, context string, generation uint32) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrKeySize
	}
	info := fmt.Sprintf("%s|gen:%d", context, generation)
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return chacha20poly1305.NewX(key)
}
