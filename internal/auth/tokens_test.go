package auth

import (
	"errors"
	"testing"
	"time"

	"clipstream/internal/models"
)

func newTestManager(t *testing.T, clock func() time.Time) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager(TokenManagerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return manager
}

func testUser() models.User {
	return models.User{ID: "user-1", Username: "alice", Email: "alice@example.com"}
}

func TestNewTokenManagerValidatesSecrets(t *testing.T) {
	cases := []struct {
		name string
		cfg  TokenManagerConfig
	}{
		{"missing access secret", TokenManagerConfig{RefreshSecret: "r"}},
		{"missing refresh secret", TokenManagerConfig{AccessSecret: "a"}},
		{"identical secrets", TokenManagerConfig{AccessSecret: "same", RefreshSecret: "same"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTokenManager(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestIssueAndVerify(t *testing.T) {
	manager := newTestManager(t, nil)
	pair, err := manager.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("expected distinct tokens")
	}

	access, err := manager.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if access.UserID != "user-1" || access.Username != "alice" || access.Email != "alice@example.com" {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	refresh, err := manager.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if refresh.UserID != "user-1" {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
}

func TestIssuedTokensAreUnique(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestManager(t, func() time.Time { return fixed })

	first, err := manager.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := manager.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("refresh tokens issued at the same instant must differ")
	}
	if first.AccessToken == second.AccessToken {
		t.Fatal("access tokens issued at the same instant must differ")
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	manager := newTestManager(t, nil)
	pair, err := manager.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := manager.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token rejected as access token, got %v", err)
	}
	if _, err := manager.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access token rejected as refresh token, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager := newTestManager(t, nil)
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := manager.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	manager := newTestManager(t, nil)
	other, err := NewTokenManager(TokenManagerConfig{
		AccessSecret:  "other-access",
		RefreshSecret: "other-refresh",
	})
	if err != nil {
		t.Fatalf("NewTokenManager other: %v", err)
	}
	pair, err := other.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := manager.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign signature rejected, got %v", err)
	}
}

func TestExpiredTokensAreRejected(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestManager(t, func() time.Time { return current })

	pair, err := manager.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(DefaultAccessTTL + time.Minute)
	if _, err := manager.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired access token rejected, got %v", err)
	}
	if _, err := manager.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh token still valid: %v", err)
	}

	current = current.Add(DefaultRefreshTTL)
	if _, err := manager.VerifyRefresh(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired refresh token rejected, got %v", err)
	}
}
