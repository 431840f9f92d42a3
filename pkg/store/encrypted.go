package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

const encryptedPrefix = "enc:v1:"

// DefaultSecretKeys are the keys whose values are encrypted at rest
var DefaultSecretKeys = []string{KeyAPIKey, KeySavedServers}

// EncryptedStore wraps a Store and encrypts the values of secret keys
// with AES-256-GCM. Other keys pass through untouched.
type EncryptedStore struct {
	inner   Store
	key     []byte
	secrets map[string]bool
}

// NewEncryptedStore wraps inner. key must be 32 bytes.
func NewEncryptedStore(inner Store, key []byte, secretKeys ...string) (*EncryptedStore, error) {
	if len(key) != keyBytes {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyBytes, len(key))
	}
	if len(secretKeys) == 0 {
		secretKeys = DefaultSecretKeys
	}
	secrets := make(map[string]bool, len(secretKeys))
	for _, k := range secretKeys {
		secrets[k] = true
	}
	return &EncryptedStore{inner: inner, key: key, secrets: secrets}, nil
}

// Fingerprint identifies the encryption key without exposing it
func (e *EncryptedStore) Fingerprint() string {
	return KeyFingerprint(e.key)
}

func (e *EncryptedStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return value, ok, err
	}
	plain, err := e.open(key, value)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (e *EncryptedStore) MultiGet(ctx context.Context, keys ...string) (map[string]string, error) {
	values, err := e.inner.MultiGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for k, v := range values {
		plain, err := e.open(k, v)
		if err != nil {
			return nil, err
		}
		values[k] = plain
	}
	return values, nil
}

func (e *EncryptedStore) Set(ctx context.Context, key, value string) error {
	return e.MultiSet(ctx, map[string]string{key: value})
}

func (e *EncryptedStore) MultiSet(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		s, err := e.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = s
	}
	return e.inner.MultiSet(ctx, sealed)
}

func (e *EncryptedStore) MultiRemove(ctx context.Context, keys ...string) error {
	return e.inner.MultiRemove(ctx, keys...)
}

func (e *EncryptedStore) Keys(ctx context.Context) ([]string, error) {
	return e.inner.Keys(ctx)
}

func (e *EncryptedStore) Close() error {
	return e.inner.Close()
}

func (e *EncryptedStore) seal(key, value string) (string, error) {
	if !e.secrets[key] {
		return value, nil
	}
	field, err := encrypt(e.key, []byte(value))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt %q: %w", key, err)
	}
	data, err := json.Marshal(field)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return encryptedPrefix + string(data), nil
}

func (e *EncryptedStore) open(key, value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		if e.secrets[key] {
			// Written before encryption was enabled; re-sealed on next write
			log.Printf("[store] secret key %q is stored in plaintext", key)
		}
		return value, nil
	}
	var field EncryptedField
	if err := json.Unmarshal([]byte(strings.TrimPrefix(value, encryptedPrefix)), &field); err != nil {
		return "", fmt.Errorf("failed to parse encrypted %q: %w", key, err)
	}
	plain, err := decrypt(e.key, &field)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %q: %w", key, err)
	}
	return string(plain), nil
}
