package http

import (
	"errors"
	"net/http"

	"paidback/internal/core"
	"paidback/internal/recon"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.transactions.ListTransactions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	respondJSON(w, http.StatusOK, txns)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t core.Transaction
	if err := decodeJSON(r, &t); err != nil {
		respondError(w, r, err)
		return
	}

	// Amount is stored as a magnitude; direction lives in TransactionType
	t.Amount = t.Amount.Abs()
	t.SyncCalendarFields()
	t.SetReturn(t.ReturnID)
	if err := t.Validate(); err != nil {
		respondError(w, r, err)
		return
	}

	created, err := s.transactions.CreateTransaction(r.Context(), t)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleTransactionsByIDs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	txns, err := s.transactions.TransactionsByIDs(r.Context(), req.IDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}
	respondJSON(w, http.StatusOK, txns)
}

// stepBody is the wire shape of a document-patch step
type stepBody struct {
	ReturnID  string `json:"returnId,omitempty"`
	Attempted bool   `json:"attempted"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

type reconBody struct {
	TransactionID      string   `json:"transactionId"`
	NoChange           bool     `json:"noChange,omitempty"`
	TransactionPatched bool     `json:"transactionPatched"`
	Detach             stepBody `json:"detach"`
	Attach             stepBody `json:"attach"`
}

func (s *Server) handleUpdateMany(w http.ResponseWriter, r *http.Request) {
	var updated []core.Transaction
	if err := decodeJSON(r, &updated); err != nil {
		respondError(w, r, err)
		return
	}
	if len(updated) == 0 {
		respondError(w, r, errBadRequestBody)
		return
	}

	// Rows that fail validation never reach the backend; they are reported
	// under failed alongside the backend's own rejections.
	ids := make([]string, 0, len(updated))
	rows := make([]core.Transaction, 0, len(updated))
	var invalid []string
	for i := range updated {
		updated[i].SyncCalendarFields()
		updated[i].SetReturn(updated[i].ReturnID)
		if err := updated[i].Validate(); err != nil {
			invalid = append(invalid, updated[i].ID)
			continue
		}
		rows = append(rows, updated[i])
		ids = append(ids, updated[i].ID)
	}

	var batch recon.BatchResult
	if len(rows) > 0 {
		originals, err := s.transactions.TransactionsByIDs(r.Context(), ids)
		if err != nil {
			respondError(w, r, err)
			return
		}
		batch, err = s.recon.SaveWithReconciliation(r.Context(), originals, rows)
		if err != nil {
			respondError(w, r, err)
			return
		}
	}

	resp := struct {
		Successful     []string    `json:"successful"`
		Failed         []string    `json:"failed"`
		Reconciliation []reconBody `json:"reconciliation"`
	}{
		Successful:     emptyIfNilIDs(batch.Outcome.Successful),
		Failed:         append(emptyIfNilIDs(batch.Outcome.Failed), invalid...),
		Reconciliation: make([]reconBody, 0, len(batch.Reconciled)),
	}
	for _, res := range batch.Reconciled {
		resp.Reconciliation = append(resp.Reconciliation, toReconBody(res))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssignReturn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		ReturnID core.NullableID `json:"returnId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	t, err := s.findTransaction(r, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.recon.AssignReturn(r.Context(), t, req.ReturnID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReconBody(res))
}

func (s *Server) findTransaction(r *http.Request, id string) (core.Transaction, error) {
	txns, err := s.transactions.TransactionsByIDs(r.Context(), []string{id})
	if err != nil {
		return core.Transaction{}, err
	}
	if len(txns) == 0 {
		return core.Transaction{}, errTransactionNotFound
	}
	return txns[0], nil
}

var errTransactionNotFound = errors.New("transaction not found")

func toReconBody(res recon.Result) reconBody {
	return reconBody{
		TransactionID:      res.TransactionID,
		NoChange:           res.NoChange,
		TransactionPatched: res.TransactionPatched,
		Detach:             toStepBody(res.Detach),
		Attach:             toStepBody(res.Attach),
	}
}

func toStepBody(s recon.Step) stepBody {
	b := stepBody{
		ReturnID:  s.ReturnID,
		Attempted: s.Attempted,
		Applied:   s.Applied,
	}
	if s.Err != nil {
		b.Error = s.Err.Error()
	}
	return b
}

func emptyIfNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
