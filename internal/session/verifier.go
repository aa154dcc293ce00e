package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Verifier confirms tokens against the backend's verify-token endpoint and
// caches positive answers so every request does not pay the round trip.
type Verifier struct {
	httpClient *http.Client
	baseURL    string
	cache      *gocache.Cache
	now        func() time.Time
}

// NewVerifier builds a verifier for the given backend base URL. ttl bounds
// how long a verified session is trusted without re-asking the backend.
func NewVerifier(baseURL string, timeout, ttl time.Duration) *Verifier {
	return &Verifier{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		cache:      gocache.New(ttl, 2*ttl),
		now:        time.Now,
	}
}

type verifyResponse struct {
	User struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	} `json:"user"`
	Error string `json:"error"`
}

// Verify resolves a token to a Session. Locally-expired tokens are rejected
// without a network call; everything else goes to the backend on cache miss.
func (v *Verifier) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if TokenExpired(token, v.now()) {
		v.cache.Delete(token)
		return nil, ErrSessionExpired
	}
	if cached, ok := v.cache.Get(token); ok {
		return cached.(*Session), nil
	}

	sess, err := v.verifyRemote(ctx, token)
	if err != nil {
		return nil, err
	}
	v.cache.SetDefault(token, sess)
	return sess, nil
}

// Invalidate drops a cached session, e.g. after the backend rejected the
// token mid-flight.
func (v *Verifier) Invalidate(token string) {
	v.cache.Delete(token)
}

func (v *Verifier) verifyRemote(ctx context.Context, token string) (*Session, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/users/verify-token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrSessionExpired
	case http.StatusForbidden:
		return nil, ErrNotApproved
	case http.StatusNotFound:
		return nil, ErrUnknownUser
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.WarnContext(ctx, "Unexpected verify-token status",
			"component", "session",
			"status", resp.StatusCode)
		return nil, fmt.Errorf("verify token: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}
	var vr verifyResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	return &Session{Token: token, UserID: vr.User.ID, Name: vr.User.Name}, nil
}
