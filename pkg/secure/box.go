// Package secure provides the client-side at-rest protection layer:
// an AES-256-GCM box for sealing small blobs, and tiered local storage
// that prefers the OS credential vault and degrades to files.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required box key length (AES-256).
const KeySize = 32

var (
	ErrKeySize         = errors.New("key must be 32 bytes")
	ErrCiphertextShort = errors.New("ciphertext shorter than nonce")
	ErrDecrypt         = errors.New("ciphertext authentication failed")
)

// CryptoError wraps a failure in the sealing layer so callers can
// distinguish crypto faults from storage faults.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("secure: %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// Box seals and opens blobs with AES-256-GCM. The wire format is
// nonce || ciphertext_with_tag.
type Box struct {
	key []byte
}

// NewBox creates a box from a 256-bit key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: "new", Err: ErrKeySize}
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Box{key: k}, nil
}

// DeriveKey produces a box key from a salt and a device fingerprint, so
// that blobs are only readable on the device that wrote them.
func DeriveKey(salt, fingerprint string) []byte {
	sum := sha256.Sum256([]byte(salt + ":" + fingerprint))
	return sum[:]
}

// DeriveStorageKey produces the opaque storage slot name for a blob kind
// on a given device. Salts differ between kinds so one slot never aliases
// another.
func DeriveStorageKey(kindSalt, fingerprint string) string {
	sum := sha256.Sum256([]byte(kindSalt + ":" + fingerprint))
	return hex.EncodeToString(sum[:])
}

// Seal encrypts plaintext with a fresh 96-bit nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &CryptoError{Op: "seal", Err: err}
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (b *Box) Open(blob []byte) ([]byte, error) {
	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, &CryptoError{Op: "open", Err: ErrCiphertextShort}
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Op: "open", Err: ErrDecrypt}
	}
	return plaintext, nil
}

// SealString encrypts a string and returns base64.
func (b *Box) SealString(plaintext string) (string, error) {
	sealed, err := b.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString decrypts a base64 string produced by SealString.
func (b *Box) OpenString(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &CryptoError{Op: "open", Err: err}
	}
	plaintext, err := b.Open(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (b *Box) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, &CryptoError{Op: "cipher", Err: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: "cipher", Err: err}
	}
	return gcm, nil
}
