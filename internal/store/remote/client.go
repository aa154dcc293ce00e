// Package remote implements the store ports against the external backend
// API. Every call is plain HTTP/JSON with a bearer token taken from the
// request's session; return-document updates are full-document PUTs because
// the backend has replace semantics, not merge-patch.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paidback/internal/core"
	"paidback/internal/session"
	"paidback/internal/store"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
}

var (
	_ store.TransactionStore = (*Client)(nil)
	_ store.ReturnStore      = (*Client)(nil)
	_ store.TellerStore      = (*Client)(nil)
)

// APIError is a non-2xx backend response that is not an auth failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	if err := c.do(ctx, http.MethodGet, "/api/transactions", nil, &out); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (c *Client) TransactionsByIDs(ctx context.Context, ids []string) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []core.Transaction
	body := map[string][]string{"ids": ids}
	if err := c.do(ctx, http.MethodPost, "/api/transactions/by-ids", body, &out); err != nil {
		return nil, fmt.Errorf("transactions by ids: %w", err)
	}
	return out, nil
}

// CreateTransaction posts a single-element array; that is the shape the
// backend's single-create endpoint takes.
func (c *Client) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var created core.Transaction
	if err := c.do(ctx, http.MethodPost, "/api/transactions/single", []core.Transaction{t}, &created); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

func (c *Client) UpdateTransactions(ctx context.Context, ts []core.Transaction) (store.UpdateOutcome, error) {
	var out store.UpdateOutcome
	if len(ts) == 0 {
		return out, nil
	}
	if err := c.do(ctx, http.MethodPut, "/api/transactions/update-many", ts, &out); err != nil {
		return store.UpdateOutcome{}, fmt.Errorf("update transactions: %w", err)
	}
	return out, nil
}

func (c *Client) ListReturns(ctx context.Context) ([]core.ReturnDocument, error) {
	var out []core.ReturnDocument
	if err := c.do(ctx, http.MethodGet, "/api/returns", nil, &out); err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	return out, nil
}

func (c *Client) GetReturn(ctx context.Context, id string) (core.ReturnDocument, error) {
	var out core.ReturnDocument
	if err := c.do(ctx, http.MethodGet, "/api/returns/"+id, nil, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return core.ReturnDocument{}, fmt.Errorf("get return %s: %w", id, store.ErrNotFound)
		}
		return core.ReturnDocument{}, fmt.Errorf("get return %s: %w", id, err)
	}
	return out, nil
}

func (c *Client) CreateReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	var created core.ReturnDocument
	if err := c.do(ctx, http.MethodPost, "/api/returns", doc, &created); err != nil {
		return core.ReturnDocument{}, fmt.Errorf("create return: %w", err)
	}
	return created, nil
}

func (c *Client) ReplaceReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	var updated core.ReturnDocument
	if err := c.do(ctx, http.MethodPut, "/api/returns/"+doc.ID, doc, &updated); err != nil {
		return core.ReturnDocument{}, fmt.Errorf("replace return %s: %w", doc.ID, err)
	}
	return updated, nil
}

func (c *Client) DeleteReturn(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/returns/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete return %s: %w", id, err)
	}
	return nil
}

func (c *Client) ListTellerTransactions(ctx context.Context) ([]core.Transaction, error) {
	var out []core.Transaction
	if err := c.do(ctx, http.MethodGet, "/api/teller/transactions", nil, &out); err != nil {
		return nil, fmt.Errorf("list teller transactions: %w", err)
	}
	return out, nil
}

// do runs one backend call. Writes without an authenticated session fail
// before any network I/O; reads go out with whatever token is present.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	sess, ok := session.FromContext(ctx)
	if !ok && method != http.MethodGet {
		return session.ErrNoToken
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ok {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return session.ErrSessionExpired
	case http.StatusForbidden:
		return session.ErrForbidden
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: decodeErrorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeErrorMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
