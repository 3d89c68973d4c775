package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

func testUser() *domain.User {
	orgID := "org-1"
	return &domain.User{
		ID:             "user-1",
		Role:           domain.RoleUser,
		OrganizationID: &orgID,
	}
}

func TestIssuePairAndParseAccess(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore())

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	claims, err := tm.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q", claims.UserID)
	}
	if claims.Role != domain.RoleUser {
		t.Errorf("Role = %q", claims.Role)
	}
	if claims.TokenUse != UseAccess {
		t.Errorf("TokenUse = %q", claims.TokenUse)
	}
	if claims.LineageID == "" {
		t.Error("LineageID empty")
	}
}

func TestParseAccessRejectsRefreshToken(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore())

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := tm.ParseAccess(pair.RefreshToken); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("ParseAccess(refresh) err = %v, want ErrTokenMalformed", err)
	}
}

func TestParseAccessExpired(t *testing.T) {
	now := time.Now()
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore()).
		WithClock(func() time.Time { return now })

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := tm.ParseAccess(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ParseAccess err = %v, want ErrTokenExpired", err)
	}
}

func TestRefreshMintsAccessInSameLineage(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore())

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	original, err := tm.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}

	minted, _, err := tm.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := tm.ParseAccess(minted)
	if err != nil {
		t.Fatalf("ParseAccess(minted): %v", err)
	}
	if claims.LineageID != original.LineageID {
		t.Errorf("lineage changed: %q vs %q", claims.LineageID, original.LineageID)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore())

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, _, err := tm.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh(access) err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRevokeBlocksRefresh(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore())

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if err := tm.Revoke(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := tm.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh after revoke err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRevokeScopedToLineage(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, NewMemoryRefreshStore())

	first, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	second, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if err := tm.Revoke(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := tm.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Errorf("second login refresh failed after first logout: %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("secret", 15*time.Minute, 7*24*time.Hour, nil)
	other := NewTokenManager("other", 15*time.Minute, 7*24*time.Hour, nil)

	pair, err := tm.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := other.ParseAccess(pair.AccessToken); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("ParseAccess with wrong secret err = %v, want ErrTokenMalformed", err)
	}
}
