package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/FarisLab/StudySync/internal/authpw"
	"github.com/FarisLab/StudySync/internal/session"
)

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignUpRequest
	if !s.decode(w, r, &body) {
		return
	}
	resp, err := s.service.SignUp(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignInRequest
	if !s.decode(w, r, &body) {
		return
	}
	tokens, err := s.service.SignIn(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setSessionCookie(w, r, tokens.AccessToken, tokens.ExpiresAt)
	writeJSON(w, http.StatusOK, tokens)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	claims, err := s.service.Session(r)
	if err != nil {
		if session.IsUnauthenticated(err) {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        claims.Subject,
		"userName":      claims.Name,
	})
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	tokens, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setSessionCookie(w, r, tokens.AccessToken, tokens.ExpiresAt)
	writeJSON(w, http.StatusOK, tokens)
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	// The body is optional; only an oversized one is rejected.
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, errInvalidBody) {
		s.fail(w, r, err)
		return
	}
	if err := s.service.Logout(r, body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	setSessionCookie(w, r, "", time.Unix(0, 0))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// setSessionCookie stores the access token for browser clients. An empty
// value clears the cookie.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}
