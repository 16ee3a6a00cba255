package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/FarisLab/StudySync/internal/auth"
	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/util"
)

const CookieName = "studysync_session"

// Tokens is the credential pair handed to a client after sign-in or refresh.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Manager issues, rotates and revokes sessions, and resolves the caller of a
// request. It implements ownership.Authenticator.
type Manager struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(store Store, secret []byte, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		store:      store,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (m *Manager) Store() Store { return m.store }

func (m *Manager) Issue(ctx context.Context, userID, displayName string) (Tokens, error) {
	now := m.now().UTC()
	claims := auth.NewClaims(userID, displayName, m.accessTTL, now)
	accessToken, err := auth.IssueToken(m.secret, claims)
	if err != nil {
		return Tokens{}, err
	}

	refreshToken := util.NewToken("rt")
	data := TokenData{UserID: userID, DisplayName: displayName, CreatedAt: now}
	if err := m.store.SaveRefreshSession(ctx, auth.HashToken(refreshToken), data, now.Add(m.refreshTTL)); err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		UserName:     displayName,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh token: the old one is taken from the store and a
// new pair is issued. Unknown, expired or already redeemed tokens yield
// ErrSessionNotFound.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Tokens{}, ErrSessionNotFound
	}
	data, err := m.store.TakeRefreshSession(ctx, auth.HashToken(refreshToken))
	if err != nil {
		return Tokens{}, err
	}
	return m.Issue(ctx, data.UserID, data.DisplayName)
}

// Logout revokes the refresh token, if any, and the access token the request
// was made with.
func (m *Manager) Logout(ctx context.Context, refreshToken string, claims *auth.Claims) error {
	if refreshToken != "" {
		if err := m.store.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	if claims != nil && claims.ExpiresAt != nil {
		if err := m.store.RevokeAccessToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}
	return nil
}

// Resolve verifies the request's access token. Missing, invalid, expired or
// revoked tokens yield ownership.ErrUnauthenticated.
func (m *Manager) Resolve(r *http.Request) (auth.Claims, error) {
	token := AccessToken(r)
	if token == "" {
		return auth.Claims{}, ownership.ErrUnauthenticated
	}
	claims, err := auth.ParseToken(m.secret, token)
	if err != nil {
		return auth.Claims{}, ownership.ErrUnauthenticated
	}
	revoked, err := m.store.IsAccessTokenRevoked(r.Context(), claims.ID)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return auth.Claims{}, ownership.ErrUnauthenticated
	}
	return claims, nil
}

func (m *Manager) Authenticate(r *http.Request) (ownership.UserID, error) {
	claims, err := m.Resolve(r)
	if err != nil {
		return "", err
	}
	return ownership.UserID(claims.Subject), nil
}

// AccessToken reads a bearer token from the Authorization header, falling
// back to the session cookie.
func AccessToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// IsUnauthenticated reports whether err means the caller has no valid session.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ownership.ErrUnauthenticated) || errors.Is(err, ErrSessionNotFound)
}
