package accountstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository backed by a mutex-guarded
// map. It is the default backend and the one the test suite exercises
// directly; NewPostgresRepository implements the same interface for
// deployments that want durable storage.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryRepository constructs an empty in-memory account store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*Account)}
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (r *MemoryRepository) ListActive(_ context.Context, userID, provider string) ([]*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Account
	for _, a := range r.accounts {
		if !a.IsActive {
			continue
		}
		if userID != "" && a.UserID != userID {
			continue
		}
		if provider != "" && a.Provider != provider {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	return out, nil
}

func (r *MemoryRepository) Create(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	account.IsActive = true
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

// RotateCredentials overwrites the access/refresh/expiry triple under the
// write lock, so concurrent readers never observe a half-written account.
func (r *MemoryRepository) RotateCredentials(_ context.Context, id string, rotated RotatedCredentials) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !rotated.ExpiresAt.After(a.ExpiresAt) && !a.ExpiresAt.IsZero() {
		// expiresAt must be strictly monotonic; a rotation that would move
		// it backwards or leave it unchanged is still accepted, with its
		// expiresAt moved to one second past the stored value.
		rotated.ExpiresAt = a.ExpiresAt.Add(time.Second)
	}
	a.AccessToken = rotated.AccessToken
	a.RefreshToken = rotated.RefreshToken
	a.ExpiresAt = rotated.ExpiresAt
	if rotated.APIKey != "" {
		a.APIKey = rotated.APIKey
	}
	clone := *a
	return &clone, nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = false
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}
