// Package session carries authentication state explicitly. The token arrives
// in the auth_token cookie (or an Authorization header), is verified against
// the backend, and travels through request context from there — business
// logic never reads cookies or globals itself.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie the sign-in flow sets after OAuth completes.
const CookieName = "auth_token"

var (
	ErrNoToken        = errors.New("no authentication token")
	ErrSessionExpired = errors.New("session expired")
	ErrNotApproved    = errors.New("account not approved")
	ErrForbidden      = errors.New("forbidden")
	ErrUnknownUser    = errors.New("user not found")
)

// Session is a verified identity. It is passed explicitly (via context) to
// every operation that writes to the backend.
type Session struct {
	Token  string
	UserID string
	Name   string
}

type ctxKey struct{}

// NewContext attaches the session to ctx.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by the auth middleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// TokenFromRequest extracts the bearer token from the Authorization header or
// the auth cookie. The header wins when both are present.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return tok, nil
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", ErrNoToken
}

// TokenExpired decodes the token's claims without verifying the signature
// (the backend holds the key; it is the real verifier) and reports whether
// the exp claim has passed. Tokens that do not parse, or carry no exp, are
// left to the backend round trip to judge.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
