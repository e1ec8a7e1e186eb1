package accountstore

import (
	"context"
	"testing"
	"time"
)

func TestRotateCredentialsAtomicAndMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	expiry := time.Now().Add(time.Hour)
	acc := &Account{UserID: "u1", Provider: "codex", AccessToken: "a0", RefreshToken: "r0", ExpiresAt: expiry}
	if err := repo.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	rotated, err := repo.RotateCredentials(ctx, acc.ID, RotatedCredentials{
		AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expiry.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.AccessToken != "a1" || rotated.RefreshToken != "r1" {
		t.Fatalf("rotation did not land atomically: %+v", rotated)
	}
	if !rotated.ExpiresAt.After(expiry) {
		t.Fatalf("expiresAt did not advance monotonically")
	}

	// A rotation that would move expiresAt backwards is nudged forward
	// instead, preserving strict monotonicity.
	rotated2, err := repo.RotateCredentials(ctx, acc.ID, RotatedCredentials{
		AccessToken: "a2", RefreshToken: "r2", ExpiresAt: expiry,
	})
	if err != nil {
		t.Fatalf("rotate2: %v", err)
	}
	if !rotated2.ExpiresAt.After(rotated.ExpiresAt) {
		t.Fatalf("expiresAt not strictly monotonic across refreshes: %v -> %v", rotated.ExpiresAt, rotated2.ExpiresAt)
	}
}

func TestNeedsRefreshUsesPerProviderBuffer(t *testing.T) {
	now := time.Now()
	if !NeedsRefresh("iflow", now.Add(23*time.Hour), now) {
		t.Fatalf("iflow has a 24h buffer, 23h out should need refresh")
	}
	if NeedsRefresh("copilot", now.Add(time.Hour), now) {
		t.Fatalf("copilot has a 5m buffer, 1h out should not need refresh yet")
	}
}
