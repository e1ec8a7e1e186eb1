package accountstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerateProxyKey mints a fresh bearer token and its hash. The raw token is
// returned exactly once, to the caller of the issuance endpoint; only the
// hash and a short preview are persisted.
func GenerateProxyKey() (raw string, hashed string, preview string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("accountstore: generate key: %w", err)
	}
	raw = "sk-proxy-" + base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(raw))
	hashed = hex.EncodeToString(sum[:])
	preview = raw[:10] + "..." + raw[len(raw)-4:]
	return raw, hashed, preview, nil
}

// MemoryProxyKeyRepository is the in-process ProxyKeyRepository.
type MemoryProxyKeyRepository struct {
	mu   sync.RWMutex
	keys map[string]*ProxyApiKey
}

// NewMemoryProxyKeyRepository constructs an empty store.
func NewMemoryProxyKeyRepository() *MemoryProxyKeyRepository {
	return &MemoryProxyKeyRepository{keys: make(map[string]*ProxyApiKey)}
}

func (r *MemoryProxyKeyRepository) Create(_ context.Context, key *ProxyApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	key.IsActive = true
	clone := *key
	r.keys[key.ID] = &clone
	return nil
}

func (r *MemoryProxyKeyRepository) FindByHashedKey(_ context.Context, hashed string) (*ProxyApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.HashedKey != hashed {
			continue
		}
		if !k.IsActive {
			continue
		}
		if k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt) {
			continue
		}
		clone := *k
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (r *MemoryProxyKeyRepository) ListForUser(_ context.Context, userID string) ([]*ProxyApiKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ProxyApiKey
	for _, k := range r.keys {
		if k.UserID != userID {
			continue
		}
		clone := *k
		out = append(out, &clone)
	}
	return out, nil
}

func (r *MemoryProxyKeyRepository) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok {
		return ErrNotFound
	}
	k.IsActive = false
	return nil
}
