package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// kdf parameters for deriving the AES key from the configured secret
const (
	cipherKeySalt       = "mailmirror.token.v1"
	cipherKeyIterations = 10000
	cipherKeyLength     = 32
)

// TokenCipher encrypts OAuth tokens at rest with AES-256-GCM.
// With no secret configured it is a passthrough, and ciphertext that
// fails to decrypt is returned verbatim: values written before
// encryption was enabled keep working.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives the cipher key from secret. Empty secret
// yields a passthrough cipher.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return &TokenCipher{}, nil
	}

	key := pbkdf2.Key([]byte(secret), []byte(cipherKeySalt), cipherKeyIterations, cipherKeyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext), or the plaintext when
// the cipher is a passthrough.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if c.aead == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any decode or authentication failure means
// the value was stored before encryption was enabled; the raw value is
// returned as-is.
func (c *TokenCipher) Decrypt(value string) string {
	if c.aead == nil || value == "" {
		return value
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return value
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return value
	}
	return string(plaintext)
}
