package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakbyte/labpanel/internal/config"
)

const (
	sessionCookieName = "labpanel-session"
	sessionMaxAge     = 24 * time.Hour
)

type session struct {
	expires time.Time
}

type sessionSet struct {
	mu sync.Mutex
	m  map[string]*session
}

func newSessionSet() *sessionSet {
	return &sessionSet{m: make(map[string]*session)}
}

func (ss *sessionSet) valid(token string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sess, ok := ss.m[token]
	if ok && time.Now().After(sess.expires) {
		delete(ss.m, token)
		return false
	}
	return ok
}

func (ss *sessionSet) add(token string) {
	ss.mu.Lock()
	ss.m[token] = &session{expires: time.Now().Add(sessionMaxAge)}
	ss.mu.Unlock()
}

func (ss *sessionSet) remove(token string) {
	ss.mu.Lock()
	delete(ss.m, token)
	ss.mu.Unlock()
}

func (s *Server) authMode() string {
	if cfg := s.store.Current(); cfg != nil {
		return cfg.Auth.Mode
	}
	return config.AuthModeNone
}

// withAuth wraps a handler to require a session (if password auth is
// enabled).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authMode() == config.AuthModeNone {
			next(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || !s.sessions.valid(cookie.Value) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Current()
	if cfg == nil || cfg.Auth.Mode != config.AuthModePassword {
		writeError(w, http.StatusBadRequest, "password auth is not enabled")
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cfg.Auth.PasswordHash), []byte(body.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate session")
		return
	}
	token := hex.EncodeToString(tokenBytes)
	s.sessions.add(token)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.remove(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	required := s.authMode() == config.AuthModePassword

	cookie, err := r.Cookie(sessionCookieName)
	authenticated := err == nil && s.sessions.valid(cookie.Value)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": authenticated,
		"auth_required": required,
	})
}
