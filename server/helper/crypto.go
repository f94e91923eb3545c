package helper

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// Encrypt seals text with AES-GCM under a key derived from secret and returns it base64 encoded.
func Encrypt(text string, secret string) (string, error) {
	if text == "" {
		return "", nil
	}
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "failed to read nonce")
	}
	sealed := gcm.Seal(nonce, nonce, []byte(text), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(encoded string, secret string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	gcm, err := newGCM(secret)
	if err != nil {
		return "", err
	}

	sealed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode ciphertext")
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plain, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to decrypt")
	}
	return string(plain), nil
}

func newGCM(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gcm")
	}
	return gcm, nil
}
