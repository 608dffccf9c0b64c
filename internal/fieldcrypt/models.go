package fieldcrypt

import (
	"fmt"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
)

// AlgorithmXChaCha20Poly1305 identifies the only algorithm currently written.
// The field carries it so a future algorithm change can coexist with old data.
const AlgorithmXChaCha20Poly1305 = "xchacha20poly1305"

// EncryptedField wraps a single encrypted record field. It is owned by the
// record that embeds it and is never shared between records.
type EncryptedField struct {
	CipherText    []byte    `json:"cipher_text"`
	Nonce         []byte    `json:"nonce"`
	Tag           []byte    `json:"tag"`
	AlgorithmID   string    `json:"algorithm_id"`
	KeyGeneration uint32    `json:"key_generation"`
	EncryptedAt   time.Time `json:"encrypted_at"`
}

// KeyContext scopes key derivation. Records for different tenants or purposes
// are encrypted under unrelated keys even though they share one master key.
type KeyContext struct {
	TenantID domain.TenantID
	Purpose  string
}

func (c KeyContext) label() string {
	return fmt.Sprintf("%s|%s", c.TenantID, c.Purpose)
}
