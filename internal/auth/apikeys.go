package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

const (
	keyStoreVersion = 1
	keyIDLength     = 8
	keySecretBytes  = 24
)

var (
	ErrKeyNotFound = errors.New("API key not found")
	ErrKeyInvalid  = errors.New("API key invalid")
	ErrKeyExpired  = errors.New("API key expired")
	ErrKeyRevoked  = errors.New("API key revoked")
)

// KeyRecord is one stored API key. Only the hash is persisted; the
// plaintext key is shown once at creation.
type KeyRecord struct {
	KeyID     string     `json:"key_id"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	Hash      string     `json:"hash"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	IsActive  bool       `json:"is_active"`
}

type keyStoreFile struct {
	Version   int         `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
	Keys      []KeyRecord `json:"keys"`
}

// KeyStore manages API keys backed by an atomically-written JSON file.
type KeyStore struct {
	path string

	mu   sync.Mutex
	keys []KeyRecord
}

// OpenKeyStore loads the store at path, creating an empty one if the
// file does not exist.
func OpenKeyStore(path string) (*KeyStore, error) {
	s := &KeyStore{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key store: %w", err)
	}
	var file keyStoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse key store %s: %w", path, err)
	}
	s.keys = file.Keys
	return s, nil
}

// Create mints a new key with the given name and role. The returned
// plaintext key is never stored.
func (s *KeyStore) Create(name string, role Role, lifetime time.Duration) (plaintext string, record *KeyRecord, err error) {
	if !role.Valid() {
		return "", nil, fmt.Errorf("unknown role %q", role)
	}

	secret := make([]byte, keySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	idBytes := make([]byte, keyIDLength/2)
	if _, err := rand.Read(idBytes); err != nil {
		return "", nil, fmt.Errorf("generate key id: %w", err)
	}
	keyID := hex.EncodeToString(idBytes)
	plaintext = keyID + "." + hex.EncodeToString(secret)

	rec := KeyRecord{
		KeyID:     keyID,
		Name:      name,
		Role:      role,
		Hash:      hashKey(plaintext),
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	if lifetime > 0 {
		expires := rec.CreatedAt.Add(lifetime)
		rec.ExpiresAt = &expires
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, rec)
	if err := s.persistLocked(); err != nil {
		s.keys = s.keys[:len(s.keys)-1]
		return "", nil, err
	}
	stored := rec
	return plaintext, &stored, nil
}

// Validate checks a presented key and returns its principal. The hash
// comparison is constant time.
func (s *KeyStore) Validate(plaintext string) (*Principal, error) {
	if len(plaintext) <= keyIDLength {
		return nil, ErrKeyInvalid
	}
	keyID := plaintext[:keyIDLength]
	presented := hashKey(plaintext)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keys {
		rec := &s.keys[i]
		if rec.KeyID != keyID {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(rec.Hash), []byte(presented)) != 1 {
			return nil, ErrKeyInvalid
		}
		if !rec.IsActive {
			return nil, ErrKeyRevoked
		}
		if rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt) {
			return nil, ErrKeyExpired
		}
		now := time.Now().UTC()
		rec.LastUsed = &now
		// Last-used is best effort; a failed write does not block auth.
		_ = s.persistLocked()

		p := &Principal{UserID: rec.Name, Role: rec.Role, Method: MethodAPIKey}
		if rec.ExpiresAt != nil {
			p.ExpiresAt = *rec.ExpiresAt
		}
		return p, nil
	}
	return nil, ErrKeyInvalid
}

// Revoke deactivates a key by id. Revoking a revoked key is an error.
func (s *KeyStore) Revoke(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keys {
		if s.keys[i].KeyID != keyID {
			continue
		}
		if !s.keys[i].IsActive {
			return ErrKeyRevoked
		}
		s.keys[i].IsActive = false
		return s.persistLocked()
	}
	return ErrKeyNotFound
}

// List returns a snapshot of all key records.
func (s *KeyStore) List() []KeyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeyRecord, len(s.keys))
	copy(out, s.keys)
	return out
}

// persistLocked writes the store atomically. Caller holds the mutex.
func (s *KeyStore) persistLocked() error {
	file := keyStoreFile{
		Version:   keyStoreVersion,
		UpdatedAt: time.Now().UTC(),
		Keys:      s.keys,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key store: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write key store: %w", err)
	}
	return nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
