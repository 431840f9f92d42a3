package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	keyFileMode = 0600
	keyDirMode  = 0700
	keyBytes    = 32 // AES-256
	nonceBytes  = 12 // GCM standard nonce size
)

// EncryptedField holds AES-256-GCM encrypted data
type EncryptedField struct {
	Ciphertext string `json:"ciphertext"` // base64, includes GCM tag
	IV         string `json:"iv"`         // base64 12-byte nonce
}

// LoadOrCreateKey reads the hex-encoded key file at path, generating
// 32 random bytes on first use. Returns the raw key.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("corrupt keyfile %s: %w", path, err)
		}
		if len(key) != keyBytes {
			return nil, fmt.Errorf("keyfile %s has wrong length: got %d, want %d", path, len(key), keyBytes)
		}
		return key, nil
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read keyfile %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), keyDirMode); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), keyFileMode); err != nil {
		return nil, fmt.Errorf("failed to write keyfile %s: %w", path, err)
	}

	return key, nil
}

func encrypt(key []byte, plaintext []byte) (*EncryptedField, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return &EncryptedField{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

func decrypt(key []byte, field *EncryptedField) ([]byte, error) {
	if field == nil {
		return nil, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(field.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(field.IV)
	if err != nil {
		return nil, fmt.Errorf("failed to decode IV: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong key or tampered data): %w", err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// KeyFingerprint returns the first 8 hex chars of the SHA-256 of the key
func KeyFingerprint(key []byte) string {
	h := sha256.Sum256(key)
	return hex.EncodeToString(h[:4])
}
