// Package auth resolves the caller's session before handlers run. Every
// downstream read of identity goes through the session in the request
// context; nothing below this middleware touches cookies or headers.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"paidback/internal/session"
)

// SessionVerifier validates a raw token and returns the session it belongs
// to. Implemented by session.Verifier.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*session.Session, error)
}

// Middleware authenticates API requests
type Middleware struct {
	verifier SessionVerifier
	skip     map[string]bool
	onError  func(w http.ResponseWriter, r *http.Request, err error)
}

// NewMiddleware creates the auth middleware. skipPaths are served without a
// session (health probes); onError writes the failure response.
func NewMiddleware(verifier SessionVerifier, skipPaths []string, onError func(http.ResponseWriter, *http.Request, error)) *Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &Middleware{
		verifier: verifier,
		skip:     skip,
		onError:  onError,
	}
}

// Middleware returns the HTTP middleware function
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := session.TokenFromRequest(r)
		if err != nil {
			m.fail(w, r, err)
			return
		}

		s, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrSessionExpired) && !errors.Is(err, session.ErrNoToken) {
				slog.WarnContext(r.Context(), "Session verification failed",
					"component", "auth",
					"path", r.URL.Path,
					"error", err)
			}
			m.fail(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
	})
}

func (m *Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	if m.onError != nil {
		m.onError(w, r, err)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
