package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/driftflow/driftflow/internal/config"
)

// SealedPrefix marks a value that has been through Seal. Stored context
// snapshots carry secret variable values only in this form.
const SealedPrefix = "enc:"

var ErrNotSealed = errors.New("value is not sealed")

// Box seals and opens secret variable values before they touch the database.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box from a 32 byte key.
func NewBox(key []byte) (*Box, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	return &Box{aead: aead}, nil
}

// FromEnv builds a Box from the hex encoded key in DFLOW_SECRET_KEY. When the
// key is unset a random ephemeral key is used; runs suspended across a
// restart then lose their secret values, so a fixed key should be set for any
// multi instance or durable deployment.
func FromEnv() (*Box, error) {
	raw := config.GetSystemSettingString(config.SECRET_KEY)
	if raw == "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("secrets: %w", err)
		}
		slog.Warn("DFLOW_SECRET_KEY not set, sealing secrets with an ephemeral key")
		return NewBox(key)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("secrets: DFLOW_SECRET_KEY is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secrets: DFLOW_SECRET_KEY must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return NewBox(key)
}

// Seal encrypts a plaintext value. Sealing is idempotent: an already sealed
// value is returned unchanged.
func (b *Box) Seal(plaintext string) (string, error) {
	if strings.HasPrefix(plaintext, SealedPrefix) {
		return plaintext, nil
	}
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, SealedPrefix) {
		return "", ErrNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("secrets: %w", err)
	}
	if len(raw) < b.aead.NonceSize() {
		return "", errors.New("secrets: sealed value too short")
	}
	nonce, ciphertext := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether a value carries the sealed marker.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
