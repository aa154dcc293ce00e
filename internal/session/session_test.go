package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("local-test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := TokenFromRequest(r); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-tok"})
	if tok, err := TokenFromRequest(r); err != nil || tok != "cookie-tok" {
		t.Fatalf("cookie: got %q err=%v", tok, err)
	}

	// Header wins over cookie
	r.Header.Set("Authorization", "Bearer header-tok")
	if tok, _ := TokenFromRequest(r); tok != "header-tok" {
		t.Fatalf("header precedence: got %q", tok)
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	if TokenExpired(signedToken(t, now.Add(time.Hour)), now) {
		t.Fatal("future exp should not be expired")
	}
	if !TokenExpired(signedToken(t, now.Add(-time.Hour)), now) {
		t.Fatal("past exp should be expired")
	}
	// An undecodable token is judged by the backend, not locally
	if TokenExpired("not-a-jwt", now) {
		t.Fatal("garbage token should not be rejected locally")
	}
}

func TestSessionContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should have no session")
	}

	ctx := NewContext(context.Background(), &Session{Token: "tok", UserID: "u1"})
	s, ok := FromContext(ctx)
	if !ok || s.UserID != "u1" {
		t.Fatalf("got %+v ok=%v", s, ok)
	}
}
