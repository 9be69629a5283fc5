// Package cipher encrypts chat message text with the single key shared by every client.
package cipher

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Placeholder replaces text that cannot be decrypted.
const Placeholder = "[Unable to decrypt message]"

// ErrMalformedCiphertext indicates the payload is not something this cipher produced.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// MessageCipher seals and opens message text.
type MessageCipher struct {
	aead cipher.AEAD
}

// New derives the shared key from a passphrase and salt.
func New(passphrase, salt string) (*MessageCipher, error) {
	if passphrase == "" {
		return nil, errors.New("message key passphrase must not be empty")
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, chacha20poly1305.KeySize)
	return NewWithKey(key)
}

// NewWithKey builds a cipher from a raw 32-byte key.
func NewWithKey(key []byte) (*MessageCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise message cipher: %w", err)
	}
	return &MessageCipher{aead: aead}, nil
}

// Encrypt returns base64(nonce || sealed text).
func (c *MessageCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *MessageCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrMalformedCiphertext
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return string(plain), nil
}

// DecryptOrPlaceholder never fails; the bool reports whether decryption succeeded.
func (c *MessageCipher) DecryptOrPlaceholder(ciphertext string) (string, bool) {
	plain, err := c.Decrypt(ciphertext)
	if err != nil {
		return Placeholder, false
	}
	return plain, true
}
