// Package accountstore implements C2: CRUD over provider accounts keyed by
// (userId, provider), with atomic persistence of rotated credential triples.
package accountstore

import (
	"context"
	"errors"
	"time"
)

// Tier mirrors the Google Code Assist subscription tiers; other providers
// leave it empty.
type Tier string

const (
	TierFree     Tier = "free-tier"
	TierLegacy   Tier = "legacy-tier"
	TierStandard Tier = "standard-tier"
	TierPaid     Tier = "paid"
)

// Account identifies one upstream credential. Exactly one of (OAuth fields)
// xor (apiKey-only, with RefreshToken=APIKey and ExpiresAt=now+1y) is set.
// AccessToken/RefreshToken/APIKey are stored as ciphertext produced by
// internal/cipher; callers decrypt on demand, never at rest.
type Account struct {
	ID           string
	UserID       string
	Provider     string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	IsActive     bool

	ProjectID   string
	Tier        Tier
	APIKey      string
	AccountID   string
	WorkspaceID string

	CreatedAt time.Time
}

// ErrNotFound is returned when an account id has no matching row.
var ErrNotFound = errors.New("accountstore: account not found")

// ErrConflict is returned when an atomic rotation loses a compare-and-set
// race against a concurrent writer.
var ErrConflict = errors.New("accountstore: conflicting concurrent update")

// RotatedCredentials is the triple that must be persisted atomically after a
// successful refresh; partial writes are forbidden.
type RotatedCredentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	APIKey       string // optional, iFlow-style secondary key refresh
}

// Repository is the C2 contract. Concrete implementations (in-memory,
// Postgres) must guarantee RotateCredentials is atomic: either the whole
// triple lands, or none of it does.
type Repository interface {
	Get(ctx context.Context, id string) (*Account, error)
	ListActive(ctx context.Context, userID, provider string) ([]*Account, error)
	Create(ctx context.Context, account *Account) error
	RotateCredentials(ctx context.Context, id string, rotated RotatedCredentials) (*Account, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ProxyApiKey is a user-issued bearer token the caller presents to this
// proxy. It is orthogonal to Account: it authenticates the caller to us, not
// us to an upstream provider.
type ProxyApiKey struct {
	ID         string
	UserID     string
	Name       string
	KeyPreview string
	HashedKey  string
	IsActive   bool
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// ProxyKeyRepository manages issuance/revocation of ProxyApiKey rows.
type ProxyKeyRepository interface {
	Create(ctx context.Context, key *ProxyApiKey) error
	FindByHashedKey(ctx context.Context, hashed string) (*ProxyApiKey, error)
	ListForUser(ctx context.Context, userID string) ([]*ProxyApiKey, error)
	Revoke(ctx context.Context, id string) error
}

// RefreshBuffer is the per-provider lead time before ExpiresAt at which a
// credential is considered due for refresh (§3 invariants).
var RefreshBuffer = map[string]time.Duration{
	"copilot":     5 * time.Minute,
	"codex":       5 * time.Minute,
	"antigravity": 60 * time.Minute,
	"gemini_cli":  30 * time.Minute,
	"iflow":       24 * time.Hour,
}

// NeedsRefresh reports whether now is within the provider's refresh buffer
// of the account's expiry.
func NeedsRefresh(provider string, expiresAt, now time.Time) bool {
	buffer, ok := RefreshBuffer[provider]
	if !ok {
		buffer = 5 * time.Minute
	}
	return now.After(expiresAt.Add(-buffer))
}
