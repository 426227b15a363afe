// Package crypt encrypts provider credential bundles at rest (AES-256-GCM).
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrBadCiphertext = errors.New("crypt: malformed or tampered ciphertext")

// Keychain holds the derived symmetric key. The raw secret never leaves this package.
type Keychain struct {
	key [32]byte
}

// NewKeychain derives a 256-bit key from the configured secret. An empty secret
// is rejected so a misconfigured deployment fails at startup, not at decrypt time.
func NewKeychain(secret string) (*Keychain, error) {
	if secret == "" {
		return nil, errors.New("crypt: empty encryption secret")
	}
	k := &Keychain{key: sha256.Sum256([]byte(secret))}
	return k, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (k *Keychain) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (k *Keychain) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrBadCiphertext
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrBadCiphertext
	}
	return string(plain), nil
}
