package http

import (
	"errors"
	"net/http"

	"paidback/internal/core"
)

// returnBody wraps a document with the non-fatal validation warnings the UI
// surfaces (same-person lender/payee is flagged, never rejected).
type returnBody struct {
	Return   core.ReturnDocument `json:"return"`
	Warnings []string            `json:"warnings,omitempty"`
}

func (s *Server) handleListReturns(w http.ResponseWriter, r *http.Request) {
	docs, err := s.returns.ListReturns(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if docs == nil {
		docs = []core.ReturnDocument{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	doc, err := s.returns.GetReturn(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var doc core.ReturnDocument
	if err := decodeJSON(r, &doc); err != nil {
		respondError(w, r, err)
		return
	}

	warnings, err := validateReturn(doc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	created, err := s.returns.CreateReturn(r.Context(), doc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, returnBody{Return: created, Warnings: warnings})
}

func (s *Server) handleReplaceReturn(w http.ResponseWriter, r *http.Request) {
	var doc core.ReturnDocument
	if err := decodeJSON(r, &doc); err != nil {
		respondError(w, r, err)
		return
	}
	doc.ID = r.PathValue("id")

	warnings, err := validateReturn(doc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	replaced, err := s.returns.ReplaceReturn(r.Context(), doc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, returnBody{Return: replaced, Warnings: warnings})
}

func (s *Server) handleDeleteReturn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, err := s.returns.GetReturn(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.returns.DeleteReturn(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	// No cascade: linked transactions keep their returnId. The count lets
	// the UI warn about the dangling references.
	respondJSON(w, http.StatusOK, struct {
		Deleted            bool `json:"deleted"`
		LinkedTransactions int  `json:"linkedTransactions"`
	}{
		Deleted:            true,
		LinkedTransactions: len(doc.ReturnedTransactionIDs),
	})
}

func (s *Server) handleReturnFromTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date           core.Date `json:"date"`
		Description    string    `json:"description"`
		LenderUserID   string    `json:"lenderUserId"`
		PayeeUserID    string    `json:"payeeUserId"`
		TransactionIDs []string  `json:"transactionIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if len(req.TransactionIDs) == 0 {
		respondError(w, r, errBadRequestBody)
		return
	}

	txns, err := s.transactions.TransactionsByIDs(r.Context(), req.TransactionIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if len(txns) == 0 {
		respondError(w, r, errTransactionNotFound)
		return
	}

	doc := core.ReturnDocument{
		Date:         req.Date,
		Description:  req.Description,
		LenderUserID: req.LenderUserID,
		PayeeUserID:  req.PayeeUserID,
	}
	warnings, err := validateReturn(doc)
	if err != nil {
		respondError(w, r, err)
		return
	}

	created, outcome, err := s.recon.NewReturnFromTransactions(r.Context(), doc, txns)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, struct {
		Return     core.ReturnDocument `json:"return"`
		Successful []string            `json:"successful"`
		Failed     []string            `json:"failed"`
		Warnings   []string            `json:"warnings,omitempty"`
	}{
		Return:     created,
		Successful: emptyIfNilIDs(outcome.Successful),
		Failed:     emptyIfNilIDs(outcome.Failed),
		Warnings:   warnings,
	})
}

func (s *Server) handleRemoveFromReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transactionId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.TransactionID == "" {
		respondError(w, r, errBadRequestBody)
		return
	}

	doc, err := s.returns.GetReturn(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.findTransaction(r, req.TransactionID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.recon.RemoveFromReturn(r.Context(), doc, t)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReconBody(res))
}

// validateReturn separates the warning-grade outcome from real rejections
func validateReturn(doc core.ReturnDocument) ([]string, error) {
	err := doc.Validate()
	if errors.Is(err, core.ErrSamePersonReturn) {
		return []string{err.Error()}, nil
	}
	return nil, err
}
