// Package cipher implements the opaque credential-at-rest cipher the rest of
// the proxy is written against. Account tokens are encrypted before they
// reach the repository (C2) and decrypted only in memory, on demand.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens credential strings. Implementations must never
// return plaintext from Seal and must never leave partially-written output
// on error.
type Cipher interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// ErrInvalidCiphertext is returned when Open receives a value that was not
// produced by Seal (wrong length, bad base64, failed AEAD tag check).
var ErrInvalidCiphertext = errors.New("cipher: invalid ciphertext")

type chacha struct {
	aead stdcipher.AEAD
}

// NewChaCha20Poly1305 builds a Cipher over a 32-byte key, typically loaded
// from an env var or secrets manager by the caller. The key never appears in
// persisted output.
func NewChaCha20Poly1305(key []byte) (Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return &chacha{aead: aead}, nil
}

func (c *chacha) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cipher: nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *chacha) Open(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
