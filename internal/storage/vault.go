package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Vault seals token material before it reaches the store, so a copied
// redis dump does not leak a usable session.
type Vault struct {
	key []byte
}

func NewVault(deviceSecret string) (*Vault, error) {
	if deviceSecret == "" {
		return nil, fmt.Errorf("vault: device secret is required")
	}
	sum := sha256.Sum256([]byte(deviceSecret))
	return &Vault{key: sum[:]}, nil
}

func (v *Vault) Seal(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("vault seal: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("vault decode: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault open: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("vault open: sealed value too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault open: %w", err)
	}
	return plaintext, nil
}
