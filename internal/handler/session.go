package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pavelanni/qla/internal/model"
	"github.com/pavelanni/qla/internal/store"
	"github.com/pavelanni/qla/internal/wizard"
)

const (
	sessionCookieName = "qla_session"
	csrfCookieName    = "csrf_token"
)

type sessionCtxKey struct{}

type sessionCtx struct {
	id    string
	state wizard.State
}

func stateFromContext(ctx context.Context) wizard.State {
	if s, ok := ctx.Value(sessionCtxKey{}).(*sessionCtx); ok {
		return s.state
	}
	return wizard.New()
}

func sessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(*sessionCtx); ok {
		return s.id
	}
	return ""
}

// sessionMiddleware loads the wizard state for the request's session cookie,
// starting a fresh session when the cookie is missing or expired.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *sessionCtx
		if cookie, err := r.Cookie(sessionCookieName); err == nil && store.ValidSessionID(cookie.Value) {
			st, err := h.store.GetSession(cookie.Value)
			if err != nil {
				slog.Error("failed to load session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if st != nil {
				sess = &sessionCtx{id: cookie.Value, state: *st}
			} else {
				h.removeSessionOutput(cookie.Value)
			}
		}

		if sess == nil {
			st := wizard.New()
			id, err := h.store.CreateSession(st, h.config.SessionTTL)
			if err != nil {
				slog.Error("failed to create session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			sess = &sessionCtx{id: id, state: st}
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
			slog.Debug("started wizard session", "session", id)
			h.refreshSessionGauge()
		}

		ctx := context.WithValue(r.Context(), sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) saveState(r *http.Request, st wizard.State) error {
	return h.store.SaveSession(sessionIDFromContext(r.Context()), st, h.config.SessionTTL)
}

func (h *Handler) refreshSessionGauge() {
	n, err := h.store.SessionCount()
	if err != nil {
		slog.Warn("failed to count sessions", "error", err)
		return
	}
	h.metrics.SetSessionsActive(n)
}

// sessionDir is where a session's reports are written.
func (h *Handler) sessionDir(id string) string {
	return filepath.Join(h.config.OutputDir, id)
}

// removeSessionOutput deletes the reports written for a session.
func (h *Handler) removeSessionOutput(id string) {
	if !store.ValidSessionID(id) {
		return
	}
	if err := os.RemoveAll(h.sessionDir(id)); err != nil {
		slog.Warn("failed to remove session output", "session", id, "error", err)
	}
}

// CleanupSessions drops expired sessions with their reports and refreshes the
// session gauge.
func (h *Handler) CleanupSessions() {
	ids, err := h.store.CleanupExpiredSessions()
	if err != nil {
		slog.Warn("failed to clean up sessions", "error", err)
		return
	}
	for _, id := range ids {
		h.removeSessionOutput(id)
	}
	if len(ids) > 0 {
		slog.Info("removed expired sessions", "count", len(ids))
	}
	h.refreshSessionGauge()
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ensureCSRFToken reuses the request's CSRF cookie and only issues a new
// token when there is none, so downloads opened from a page do not invalidate
// the forms still shown on it.
func (h *Handler) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return r.WithContext(model.ContextWithCSRFToken(r.Context(), cookie.Value)), true
	}
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware issues a double-submit token when the client has none and
// checks it on every unsafe request.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		r, ok := h.ensureCSRFToken(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}
