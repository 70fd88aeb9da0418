// Package token wraps and unwraps bearer tokens with an authenticated
// symmetric cipher so raw signed tokens never cross the wire in plaintext.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
)

// MaxPlaintext bounds the size of a token accepted by Encode.
const MaxPlaintext = 8 * 1024

// EncodeError reports an input that cannot be wrapped.
type EncodeError struct {
	Reason string
}

func (e *EncodeError) Error() string { return "token encode failed: " + e.Reason }

// DecodeError reports ciphertext that is malformed, produced under a
// different key, or tampered with. Decode never fails with any other
// error type.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "token decode failed: " + e.Reason }

// Codec is a reversible transform over opaque token strings. The cipher key
// is derived from the secret once and cached; Rotate invalidates the cache.
type Codec struct {
	mu     sync.Mutex
	secret string
	aead   cipher.AEAD
}

func New(secret string) *Codec {
	return &Codec{secret: secret}
}

// cipherFor derives the 256-bit key from the secret on first use.
func (c *Codec) cipherFor() (cipher.AEAD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aead != nil {
		return c.aead, nil
	}

	key := sha256.Sum256([]byte(c.secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	c.aead = aead
	return aead, nil
}

// Encode wraps a plaintext token. The output is base64url over
// nonce||ciphertext||tag.
func (c *Codec) Encode(plaintext string) (string, error) {
	if plaintext == "" {
		return "", &EncodeError{Reason: "empty token"}
	}
	if len(plaintext) > MaxPlaintext {
		return "", &EncodeError{Reason: "token exceeds maximum length"}
	}

	aead, err := c.cipherFor()
	if err != nil {
		return "", &EncodeError{Reason: err.Error()}
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", &EncodeError{Reason: err.Error()}
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode unwraps a token previously produced by Encode. Integrity failures
// surface as *DecodeError, never as a valid-but-empty result.
func (c *Codec) Decode(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", &DecodeError{Reason: "empty token"}
	}

	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecodeError{Reason: "invalid encoding"}
	}

	aead, err := c.cipherFor()
	if err != nil {
		return "", &DecodeError{Reason: err.Error()}
	}

	if len(raw) <= aead.NonceSize() {
		return "", &DecodeError{Reason: "ciphertext too short"}
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecodeError{Reason: "invalid or tampered token"}
	}
	return string(plaintext), nil
}

// LooksWrapped is an advisory structural check for whether a token has
// already been wrapped. Raw JWTs start with a base64 JSON header ("eyJ").
// Callers must still treat Decode failure as the source of truth.
func (c *Codec) LooksWrapped(token string) bool {
	if len(token) < 10 {
		return false
	}
	return !strings.HasPrefix(token, "eyJ")
}

// Rotate replaces the secret and drops the cached key. This is an explicit
// administrative operation, never performed implicitly per call.
func (c *Codec) Rotate(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secret = secret
	c.aead = nil
}
