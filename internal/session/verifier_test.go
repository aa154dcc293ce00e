package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func verifyServer(t *testing.T, hits *int64, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		if r.URL.Path != "/api/users/verify-token" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]string{"_id": "u1", "name": "Test User"},
		})
	}))
}

func TestVerifyCachesPositiveAnswers(t *testing.T) {
	var hits int64
	srv := verifyServer(t, &hits, http.StatusOK)
	defer srv.Close()

	v := NewVerifier(srv.URL, time.Second, time.Minute)
	tok := signedToken(t, time.Now().Add(time.Hour))

	for i := 0; i < 3; i++ {
		s, err := v.Verify(context.Background(), tok)
		if err != nil {
			t.Fatal(err)
		}
		if s.UserID != "u1" || s.Name != "Test User" || s.Token != tok {
			t.Fatalf("unexpected session %+v", s)
		}
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected 1 backend round trip, got %d", got)
	}

	v.Invalidate(tok)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Fatalf("expected re-verify after invalidate, got %d round trips", got)
	}
}

func TestVerifyRejectsExpiredTokenLocally(t *testing.T) {
	var hits int64
	srv := verifyServer(t, &hits, http.StatusOK)
	defer srv.Close()

	v := NewVerifier(srv.URL, time.Second, time.Minute)
	tok := signedToken(t, time.Now().Add(-time.Hour))

	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if atomic.LoadInt64(&hits) != 0 {
		t.Fatal("expired token must not reach the backend")
	}
}

func TestVerifyStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrSessionExpired},
		{http.StatusForbidden, ErrNotApproved},
		{http.StatusNotFound, ErrUnknownUser},
	}
	for _, tc := range cases {
		var hits int64
		srv := verifyServer(t, &hits, tc.status)

		v := NewVerifier(srv.URL, time.Second, time.Minute)
		_, err := v.Verify(context.Background(), signedToken(t, time.Now().Add(time.Hour)))
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}

		srv.Close()
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	v := NewVerifier("http://localhost:0", time.Second, time.Minute)
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
