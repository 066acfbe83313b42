// Package secrets encrypts and decrypts credential payloads with XChaCha20-Poly1305.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey is returned when the key is not 32 bytes
	ErrInvalidKey = errors.New("secrets: key must be 32 bytes")

	// ErrCorruptPayload is returned when a payload cannot be decoded or authenticated.
	// It never wraps the underlying cause so payload details stay out of logs.
	ErrCorruptPayload = errors.New("secrets: payload is corrupt or was encrypted with a different key")
)

// Box holds the AEAD used for every payload
type Box struct {
	key []byte
}

// NewBox creates a box from a raw 32 byte key
func NewBox(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Box{key: k}, nil
}

// NewBoxFromBase64 creates a box from a base64 (std encoding) key
func NewBoxFromBase64(encoded string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secrets: key is not valid base64: %w", err)
	}
	return NewBox(key)
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext)
func (b *Box) Encrypt(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a payload produced by Encrypt
func (b *Box) Decrypt(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrCorruptPayload
	}

	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCorruptPayload
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCorruptPayload
	}
	return plaintext, nil
}

// EncryptJSON marshals v and encrypts it
func (b *Box) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("secrets: failed to marshal payload: %w", err)
	}
	return b.Encrypt(data)
}

// Decrypt opens a payload and decodes it as JSON into T
func Decrypt[T any](b *Box, payload string) (T, error) {
	var out T
	plaintext, err := b.Decrypt(payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return out, ErrCorruptPayload
	}
	return out, nil
}
