// Package crypto seals account secrets at rest.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertext = errors.New("crypto: ciphertext too short")

// AEAD encrypts strings with XChaCha20-Poly1305 and a random nonce prefix.
type AEAD struct{ aead cipher.AEAD }

// New expects a 32 byte key.
func New(key []byte) (*AEAD, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: a}, nil
}

// Seal returns base64(nonce || ciphertext). The owner binds the ciphertext
// to its row so it cannot be swapped between accounts.
func (a *AEAD) Seal(plaintext, owner string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	buf := a.aead.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

func (a *AEAD) Open(sealed, owner string) (string, error) {
	buf, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	ns := a.aead.NonceSize()
	if len(buf) < ns {
		return "", ErrCiphertext
	}
	pt, err := a.aead.Open(nil, buf[:ns], buf[ns:], []byte(owner))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
