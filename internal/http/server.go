// Package http is the gateway's JSON API surface. Handlers validate and
// shape; everything stateful goes through the store ports and the
// reconciliation service.
package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"paidback/internal/middleware/auth"
	"paidback/internal/middleware/ratelimit"
	"paidback/internal/middleware/security"
	"paidback/internal/middleware/trace"
	"paidback/internal/recon"
	"paidback/internal/store"
)

type Server struct {
	http.Server

	transactions store.TransactionStore
	returns      store.ReturnStore
	teller       store.TellerStore // nil when the backend has no bank feed
	recon        *recon.Service

	monthReturnIDs map[int]string

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// Options carries everything the server needs beyond the stores
type Options struct {
	Addr string

	Transactions store.TransactionStore
	Returns      store.ReturnStore
	Teller       store.TellerStore
	Recon        *recon.Service

	// Verifier enables the auth middleware; nil serves unauthenticated
	// (local single-user deployments).
	Verifier auth.SessionVerifier

	MonthReturnIDs map[int]string

	RateLimit ratelimit.Config
}

// NewServer configures routes and middleware, returning a ready-to-run server
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           nil, // set below, after the middleware chain
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		transactions:   opts.Transactions,
		returns:        opts.Returns,
		teller:         opts.Teller,
		recon:          opts.Recon,
		monthReturnIDs: opts.MonthReturnIDs,
		rateLimiter:    ratelimit.NewLimiter(opts.RateLimit),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /api/transactions/by-ids", s.handleTransactionsByIDs)
	mux.HandleFunc("PUT /api/transactions/update-many", s.handleUpdateMany)
	mux.HandleFunc("POST /api/transactions/{id}/return", s.handleAssignReturn)

	mux.HandleFunc("GET /api/returns", s.handleListReturns)
	mux.HandleFunc("POST /api/returns", s.handleCreateReturn)
	mux.HandleFunc("POST /api/returns/from-transactions", s.handleReturnFromTransactions)
	mux.HandleFunc("GET /api/returns/{id}", s.handleGetReturn)
	mux.HandleFunc("PUT /api/returns/{id}", s.handleReplaceReturn)
	mux.HandleFunc("DELETE /api/returns/{id}", s.handleDeleteReturn)
	mux.HandleFunc("POST /api/returns/{id}/remove-transaction", s.handleRemoveFromReturn)

	mux.HandleFunc("GET /api/teller/transactions", s.handleListTellerTransactions)

	mux.HandleFunc("GET /api/summary/month", s.handleMonthSummary)
	mux.HandleFunc("GET /api/summary/payee", s.handlePayeeSummary)

	var handler http.Handler = mux
	if opts.Verifier != nil {
		authMW := auth.NewMiddleware(opts.Verifier,
			[]string{"/healthz", "/readyz"},
			func(w http.ResponseWriter, r *http.Request, err error) {
				respondError(w, r, err)
			})
		handler = authMW.Middleware(handler)
	}
	handler = s.rateLimiter.Middleware(extractClientIP, nil)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(extractClientIP).Middleware(handler)
	s.Server.Handler = handler

	return s
}

func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// extractClientIP prefers the proxy-set header, falling back to the socket
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
