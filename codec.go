package keyset

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/scrypt"
)

var _encoder = base64.RawURLEncoding

// Token binary layout: nonce(16) ‖ tag(16) ‖ ciphertext, base64url encoded
// without padding so the token is safe inside a query string.
const (
	nonceSize = 16
	tagSize   = 16
)

const (
	// MinSecretLen is the minimum accepted length of the configured cursor
	// secret. Checked once, at codec construction.
	MinSecretLen = 32

	// DefaultTTL bounds how long a minted cursor stays valid.
	DefaultTTL = 24 * time.Hour
)

// scrypt parameters for deriving the cipher key from the configured secret.
// The salt is fixed: tokens carry no key-derivation state, so every process
// sharing the secret derives the same key.
const (
	scryptN       = 1 << 15
	scryptR       = 8
	scryptP       = 1
	derivedKeyLen = 32
)

var cursorKeySalt = []byte("keyset.cursor.v1")

// Codec encrypts cursor payloads into opaque URL-safe tokens and back.
// The key is derived once at construction; a Codec is immutable and safe
// for concurrent use.
type Codec struct {
	aead cipher.AEAD
	ttl  time.Duration
}

type CodecOption func(*Codec)

// WithTTL overrides DefaultTTL. A non-positive value is rejected at
// construction.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// NewCodec derives a 256-bit key from secret via scrypt and prepares an
// AES-GCM cipher for it. Construction is intentionally the slow part;
// Encode and Decode only pay for the cipher itself.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("cursor secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}

	key, err := scrypt.Key([]byte(secret), cursorKeySalt, scryptN, scryptR, scryptP, derivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("cannot derive cursor key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cannot init cursor cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cannot init cursor cipher: %w", err)
	}

	c := &Codec{
		aead: aead,
		ttl:  DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ttl <= 0 {
		return nil, fmt.Errorf("cursor ttl must be positive, got %s", c.ttl)
	}

	return c, nil
}

// TTL returns the configured cursor lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode serializes and encrypts a payload into a token. Each call draws a
// fresh random nonce, so encoding the same payload twice yields different
// tokens that decode to the same value.
func (c *Codec) Encode(payload *Payload) (string, error) {
	if payload == nil || len(payload.Fields) == 0 {
		return "", fmt.Errorf("cannot encode empty cursor payload")
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("cannot marshal cursor payload: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cannot generate cursor nonce: %w", err)
	}

	// Seal returns ciphertext‖tag; the wire layout wants nonce‖tag‖ciphertext.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	token := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	token = append(token, nonce...)
	token = append(token, tag...)
	token = append(token, ciphertext...)

	return _encoder.EncodeToString(token), nil
}

// Decode authenticates and parses a token. An empty token means "no cursor"
// and decodes to nil without error.
//
// Every failure mode — malformed base64, truncated layout, tag mismatch,
// payload parse failure, unsupported version — collapses into the bare
// ErrInvalidCursor so the error reveals nothing about where decoding
// stopped. Expiry is only reported for a fully authenticated token.
func (c *Codec) Decode(token string) (*Payload, error) {
	if len(token) == 0 {
		return nil, nil
	}

	payload, err := c.decode(token)
	if err != nil {
		recordCursorDecode(decodeResultForErr(err))
		return nil, err
	}

	recordCursorDecode(decodeResultOK)

	return payload, nil
}

func (c *Codec) decode(token string) (*Payload, error) {
	raw, err := _encoder.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	if len(raw) < nonceSize+tagSize {
		return nil, ErrInvalidCursor
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ciphertext := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var payload Payload
	if err = json.Unmarshal(plaintext, &payload); err != nil {
		return nil, ErrInvalidCursor
	}

	if payload.Version != PayloadVersion {
		return nil, ErrInvalidCursor
	}

	if payload.Age(time.Now()) > c.ttl {
		return nil, ErrExpiredCursor
	}

	return &payload, nil
}
