// Package codec holds the low-level token and secret primitives shared by
// the engine and its stores: one-way token hashing, random token
// generation, device fingerprinting, and authenticated secret encryption.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HashToken returns the hex SHA-256 digest of a raw token. Refresh, reset,
// and verification tokens are persisted only in this form.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomToken returns n cryptographically random bytes as a hex string.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token size must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// DeviceFingerprint derives a non-authoritative device identifier from the
// user agent and IP. Informational session metadata only, never a security
// boundary.
func DeviceFingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(sum[:])
}

const gcmTagSize = 16

// ErrDecryptFailed is returned by SecretBox.Open for malformed ciphertext
// or an authentication-tag mismatch. Decryption fails closed; corrupted
// input never yields plaintext.
var ErrDecryptFailed = errors.New("secret decryption failed")

// SecretBox provides authenticated symmetric encryption for stored TOTP
// secrets. The AES-256-GCM key is derived by hashing the server signing key,
// so no second key needs to be configured or rotated independently.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives the encryption key from the signing key and returns
// a ready SecretBox.
func NewSecretBox(signingKey []byte) (*SecretBox, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("secret box requires a signing key")
	}
	key := sha256.Sum256(signingKey)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SecretBox{aead: aead}, nil
}

// Seal encrypts plaintext and returns the opaque ciphertext string in
// nonceHex.cipherHex.tagHex form. The dot-joined segments self-describe the
// nonce and authentication tag so the value round-trips byte-exact.
func (b *SecretBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	body := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return hex.EncodeToString(nonce) + "." +
		hex.EncodeToString(body) + "." +
		hex.EncodeToString(tag), nil
}

// Open decrypts an opaque string produced by Seal. Returns ErrDecryptFailed
// for any malformed segment or tag mismatch.
func (b *SecretBox) Open(opaque string) (string, error) {
	parts := strings.Split(opaque, ".")
	if len(parts) != 3 {
		return "", ErrDecryptFailed
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != b.aead.NonceSize() {
		return "", ErrDecryptFailed
	}
	body, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptFailed
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != gcmTagSize {
		return "", ErrDecryptFailed
	}

	plain, err := b.aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
