package http

import (
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"paidback/internal/core"
	"paidback/internal/store"
)

func (s *Server) handleListTellerTransactions(w http.ResponseWriter, r *http.Request) {
	if s.teller == nil {
		respondJSON(w, http.StatusNotImplemented, errorBody{Error: "bank feed is not available on this backend"})
		return
	}

	txns, err := s.teller.ListTellerTransactions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	respondJSON(w, http.StatusOK, txns)
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	var (
		txns []core.Transaction
		doc  *core.ReturnDocument
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		txns, err = s.transactions.ListTransactions(ctx)
		return err
	})
	g.Go(func() error {
		id, ok := s.monthReturnIDs[month]
		if !ok {
			return nil
		}
		d, err := s.returns.GetReturn(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		doc = &d
		return nil
	})
	if err := g.Wait(); err != nil {
		respondError(w, r, err)
		return
	}

	summary := core.SummarizeMonth(txns, year, month)

	respondJSON(w, http.StatusOK, struct {
		core.MonthSummary
		MonthReturn *core.ReturnDocument `json:"monthReturn"`
	}{
		MonthSummary: summary,
		MonthReturn:  doc,
	})
}

func (s *Server) handlePayeeSummary(w http.ResponseWriter, r *http.Request) {
	docs, err := s.returns.ListReturns(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, core.BuildPayeeSummary(docs, s.monthReturnIDs))
}
