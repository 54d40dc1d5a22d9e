package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyLength = 32 // AES-256

// ErrDecrypt is returned when a ciphertext fails authentication (tampered
// data or wrong key). Callers must treat the payload as unreadable rather
// than surface garbage plaintext.
var ErrDecrypt = errors.New("message decrypt failed")

// Cipher encrypts message payloads with AES-256-GCM using a fresh random
// nonce per message. A disabled Cipher stores nothing in ciphertext form;
// whether encryption is on is decided once at startup, never per call.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the process-wide message key and returns a ready Cipher.
// A 64-char hex key is used directly; any other secret of at least 32
// characters is run through HKDF-SHA256. enabled=false returns a nil
// Cipher, which callers treat as plaintext mode.
func New(enabled bool, secret string) (*Cipher, error) {
	if !enabled {
		return nil, nil
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Enabled reports whether this cipher actually encrypts. Safe on nil.
func (c *Cipher) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt seals plaintext and returns (ciphertext, nonce). The nonce is
// stored alongside the ciphertext and required for decryption.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	if !c.Enabled() {
		return nil, nil, errors.New("cipher disabled")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	return c.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens a ciphertext, verifying the GCM authentication tag. Any
// tamper or key mismatch yields ErrDecrypt, never corrupted plaintext.
func (c *Cipher) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if !c.Enabled() {
		return nil, errors.New("cipher disabled")
	}
	if len(nonce) != c.aead.NonceSize() {
		return nil, ErrDecrypt
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func deriveKey(secret string) ([]byte, error) {
	if len(secret) < keyLength {
		return nil, fmt.Errorf("encryption key must be at least %d characters", keyLength)
	}
	if len(secret) == 2*keyLength {
		if raw, err := hex.DecodeString(secret); err == nil {
			return raw, nil
		}
	}
	key := make([]byte, keyLength)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("agrilink-chat-message-key"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}
