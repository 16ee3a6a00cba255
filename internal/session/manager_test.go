package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/FarisLab/StudySync/internal/auth"
	"github.com/FarisLab/StudySync/internal/ownership"
)

var testSecret = []byte("test-secret")

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), testSecret, 15*time.Minute, 24*time.Hour)
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestIssueAndAuthenticate(t *testing.T) {
	m := newTestManager()
	tokens, err := m.Issue(context.Background(), "user-1", "Ada")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.UserID != "user-1" || tokens.UserName != "Ada" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}

	user, err := m.Authenticate(bearer(tokens.AccessToken))
	if err != nil || user != "user-1" {
		t.Fatalf("expected user-1, got %q err=%v", user, err)
	}

	cookieReq := httptest.NewRequest(http.MethodGet, "/", nil)
	cookieReq.AddCookie(&http.Cookie{Name: CookieName, Value: tokens.AccessToken})
	if user, err := m.Authenticate(cookieReq); err != nil || user != "user-1" {
		t.Fatalf("expected cookie auth, got %q err=%v", user, err)
	}
}

func TestAuthenticateRejectsMissingAndForgedTokens(t *testing.T) {
	m := newTestManager()
	if _, err := m.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil)); !errors.Is(err, ownership.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated without token, got %v", err)
	}

	forged, err := auth.IssueToken([]byte("other-secret"), auth.NewClaims("user-1", "Ada", time.Hour, time.Now()))
	if err != nil {
		t.Fatalf("issue forged: %v", err)
	}
	if _, err := m.Authenticate(bearer(forged)); !errors.Is(err, ownership.ErrUnauthenticated) {
		t.Fatalf("expected forged token to fail, got %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := m.Authenticate(req); !errors.Is(err, ownership.ErrUnauthenticated) {
		t.Fatalf("expected basic auth to be ignored, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	first, err := m.Issue(ctx, "user-1", "Ada")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	second, err := m.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.UserName != "Ada" {
		t.Fatalf("expected rotated token for Ada, got %+v", second)
	}
	if _, err := m.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old refresh token to be revoked, got %v", err)
	}
	if _, err := m.Refresh(ctx, ""); !IsUnauthenticated(err) {
		t.Fatalf("expected empty token to be unauthenticated, got %v", err)
	}
}

func TestConcurrentRefreshRedeemsTokenOnce(t *testing.T) {
	redisStore, _ := setupTestRedis(t)
	stores := map[string]Store{"memory": NewMemoryStore(), "redis": redisStore}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, testSecret, 15*time.Minute, 24*time.Hour)
			ctx := context.Background()
			tokens, err := m.Issue(ctx, "user-1", "Ada")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}

			const attempts = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0
			for range attempts {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := m.Refresh(ctx, tokens.RefreshToken); err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					} else if !errors.Is(err, ErrSessionNotFound) {
						t.Errorf("unexpected refresh error: %v", err)
					}
				}()
			}
			wg.Wait()
			if succeeded != 1 {
				t.Fatalf("expected exactly one refresh to succeed, got %d", succeeded)
			}
		})
	}
}

func TestMemoryStoreTakeExpired(t *testing.T) {
	s := NewMemoryStore()
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "h", TokenData{UserID: "u"}, current.Add(time.Minute)); err != nil {
		t.Fatalf("save: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := s.TakeRefreshSession(ctx, "h"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if _, ok := s.sessions["h"]; ok {
		t.Fatal("expected expired session removed")
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	tokens, err := m.Issue(ctx, "user-1", "Ada")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Resolve(bearer(tokens.AccessToken))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if err := m.Logout(ctx, tokens.RefreshToken, &claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := m.Authenticate(bearer(tokens.AccessToken)); !errors.Is(err, ownership.ErrUnauthenticated) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if _, err := m.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestAuthenticateSurfacesStoreFailure(t *testing.T) {
	m := NewManager(failingStore{NewMemoryStore()}, testSecret, time.Minute, time.Hour)
	tokens, err := m.Issue(context.Background(), "user-1", "Ada")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = m.Authenticate(bearer(tokens.AccessToken))
	if err == nil || errors.Is(err, ownership.ErrUnauthenticated) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "h", TokenData{UserID: "u"}, current.Add(time.Minute)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.RevokeAccessToken(ctx, "j", current.Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := s.LookupRefreshSession(ctx, "h"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if revoked, _ := s.IsAccessTokenRevoked(ctx, "j"); revoked {
		t.Fatal("expected revocation marker to lapse")
	}
}
