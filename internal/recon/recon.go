// Package recon keeps transaction↔return linkage consistent. It is the only
// code that edits a return document's total and id sets, and the only code
// that flips a transaction's returnId/returned pair.
//
// The backend offers no multi-document transaction, so every operation here
// is a sequence of independent writes. The ordering contract: the transaction
// patch commits first; the affected documents are the recoverable side. A
// failed document patch is recorded in the Result and, when a repair
// publisher is wired, queued for replay — never rolled back.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paidback/internal/amqp"
	"paidback/internal/core"
	"paidback/internal/store"
)

// RepairPublisher enqueues a failed document patch for later replay. A nil
// publisher degrades to log-and-surface.
type RepairPublisher interface {
	PublishRepair(ctx context.Context, msg *amqp.RepairMessage) error
}

type Service struct {
	transactions store.TransactionStore
	returns      store.ReturnStore
	repairs      RepairPublisher
}

func NewService(transactions store.TransactionStore, returns store.ReturnStore, repairs RepairPublisher) *Service {
	return &Service{
		transactions: transactions,
		returns:      returns,
		repairs:      repairs,
	}
}

// Step is the outcome of one document patch (a detach or an attach).
type Step struct {
	ReturnID  string
	Attempted bool
	Applied   bool
	Err       error
}

// Result records which of the independent writes of a reconciliation
// operation succeeded, so callers can reconcile or retry deterministically
// instead of guessing from a single error.
type Result struct {
	TransactionID      string
	NoChange           bool
	TransactionPatched bool
	Detach             Step
	Attach             Step
}

// Err aggregates the per-step failures. Nil means every attempted write
// landed.
func (r Result) Err() error {
	var errs []error
	if r.Detach.Err != nil {
		errs = append(errs, fmt.Errorf("detach from %s: %w", r.Detach.ReturnID, r.Detach.Err))
	}
	if r.Attach.Err != nil {
		errs = append(errs, fmt.Errorf("attach to %s: %w", r.Attach.ReturnID, r.Attach.Err))
	}
	return errors.Join(errs...)
}

// BatchResult is the outcome of an update-many save: the backend's per-item
// outcome plus one reconciliation Result per row whose linkage changed.
type BatchResult struct {
	Outcome    store.UpdateOutcome `json:"outcome"`
	Reconciled []Result            `json:"-"`
}

var ErrTransactionPatchFailed = errors.New("transaction patch failed")

// AssignReturn links, unlinks, or moves a transaction. t carries the current
// linkage (its ReturnID is the old document); newReturnID is the target, or
// empty to unlink.
//
// Reassigning to the current document performs no writes at all. Otherwise
// the transaction patch commits first; a returned error means that patch
// failed and nothing else was attempted. Document-step failures are in the
// Result only.
func (s *Service) AssignReturn(ctx context.Context, t core.Transaction, newReturnID core.NullableID) (Result, error) {
	res := Result{TransactionID: t.ID}

	oldReturnID := t.ReturnID
	if oldReturnID == newReturnID {
		res.NoChange = true
		return res, nil
	}

	updated := t
	updated.SetReturn(newReturnID)
	if err := s.patchTransactions(ctx, updated); err != nil {
		return res, err
	}
	res.TransactionPatched = true

	if oldReturnID != "" {
		res.Detach = s.patchDocument(ctx, amqp.RepairDetach, string(oldReturnID), t, true)
	}
	if newReturnID != "" {
		res.Attach = s.patchDocument(ctx, amqp.RepairAttach, string(newReturnID), t, true)
	}
	return res, nil
}

// RemoveFromReturn detaches one transaction from the return edit view. The
// view holds the document as its primary entity, so the order is the mirror
// of AssignReturn: document first, then the transaction. A document-patch
// failure aborts before the transaction is touched.
func (s *Service) RemoveFromReturn(ctx context.Context, doc core.ReturnDocument, t core.Transaction) (Result, error) {
	res := Result{TransactionID: t.ID}

	res.Detach = Step{ReturnID: doc.ID, Attempted: true}
	patched := doc
	patched.DetachTransaction(t)
	if _, err := s.returns.ReplaceReturn(ctx, patched); err != nil {
		res.Detach.Err = err
		return res, fmt.Errorf("replace return %s: %w", doc.ID, err)
	}
	res.Detach.Applied = true

	updated := t
	updated.SetReturn("")
	if err := s.patchTransactions(ctx, updated); err != nil {
		// Document committed, transaction still points at it. Surfaced, not
		// rolled back; the next assignment of this transaction self-heals
		// the set membership.
		return res, err
	}
	res.TransactionPatched = true
	return res, nil
}

// NewReturnFromTransactions creates a document from pre-selected transactions
// in one shot: total and id sets are computed up front and written with the
// create, avoiding N incremental attach windows. The transactions are then
// patched as a single batch; per-item failures are reported, not retried.
func (s *Service) NewReturnFromTransactions(ctx context.Context, doc core.ReturnDocument, txns []core.Transaction) (core.ReturnDocument, store.UpdateOutcome, error) {
	doc.Total = core.Money{}
	doc.ReturnedTransactionIDs = nil
	doc.ReturnedTellerTransactionIDs = nil
	for _, t := range txns {
		doc.AttachTransaction(t)
	}

	created, err := s.returns.CreateReturn(ctx, doc)
	if err != nil {
		return core.ReturnDocument{}, store.UpdateOutcome{}, fmt.Errorf("create return: %w", err)
	}

	if len(txns) == 0 {
		return created, store.UpdateOutcome{}, nil
	}

	batch := make([]core.Transaction, len(txns))
	for i, t := range txns {
		t.SetReturn(core.NullableID(created.ID))
		batch[i] = t
	}
	outcome, err := s.transactions.UpdateTransactions(ctx, batch)
	if err != nil {
		return created, outcome, fmt.Errorf("patch transactions for return %s: %w", created.ID, err)
	}
	if len(outcome.Failed) > 0 {
		slog.WarnContext(ctx, "Some transactions were not linked to new return",
			"component", "recon",
			"return_id", created.ID,
			"failed", len(outcome.Failed),
			"successful", len(outcome.Successful))
	}
	return created, outcome, nil
}

// SaveWithReconciliation is the inline-edit batch save: it writes the edited
// rows, then runs the document patches for every row whose linkage changed
// and was accepted by the backend. originals must hold the pre-edit rows.
func (s *Service) SaveWithReconciliation(ctx context.Context, originals, updated []core.Transaction) (BatchResult, error) {
	before := make(map[string]core.Transaction, len(originals))
	for _, t := range originals {
		before[t.ID] = t
	}

	outcome, err := s.transactions.UpdateTransactions(ctx, updated)
	if err != nil {
		return BatchResult{}, fmt.Errorf("update transactions: %w", err)
	}
	accepted := make(map[string]bool, len(outcome.Successful))
	for _, id := range outcome.Successful {
		accepted[id] = true
	}

	res := BatchResult{Outcome: outcome}
	for _, t := range updated {
		orig, ok := before[t.ID]
		if !ok || orig.ReturnID == t.ReturnID || !accepted[t.ID] {
			continue
		}
		r := Result{TransactionID: t.ID, TransactionPatched: true}
		if orig.ReturnID != "" {
			r.Detach = s.patchDocument(ctx, amqp.RepairDetach, string(orig.ReturnID), orig, true)
		}
		if t.ReturnID != "" {
			r.Attach = s.patchDocument(ctx, amqp.RepairAttach, string(t.ReturnID), t, true)
		}
		res.Reconciled = append(res.Reconciled, r)
	}
	return res, nil
}

// Attach replays an attach patch against a document. Used by the repair
// worker; failures are returned for the queue's retry, not re-published.
func (s *Service) Attach(ctx context.Context, returnID string, t core.Transaction) Step {
	return s.patchDocument(ctx, amqp.RepairAttach, returnID, t, false)
}

// Detach is the replay counterpart of Attach.
func (s *Service) Detach(ctx context.Context, returnID string, t core.Transaction) Step {
	return s.patchDocument(ctx, amqp.RepairDetach, returnID, t, false)
}

// patchDocument performs one fetch-modify-put cycle on a return document.
// Full replace: the backend has no merge-patch, so the whole document goes
// back every time.
func (s *Service) patchDocument(ctx context.Context, op, returnID string, t core.Transaction, publishOnFailure bool) Step {
	step := Step{ReturnID: returnID, Attempted: true}

	fail := func(err error) Step {
		step.Err = err
		slog.ErrorContext(ctx, "Return document patch failed",
			"component", "recon",
			"op", op,
			"return_id", returnID,
			"transaction_id", t.ID,
			"error", err)
		if publishOnFailure {
			s.publishRepair(ctx, op, returnID, t)
		}
		return step
	}

	doc, err := s.returns.GetReturn(ctx, returnID)
	if err != nil {
		return fail(fmt.Errorf("get return: %w", err))
	}

	switch op {
	case amqp.RepairAttach:
		doc.AttachTransaction(t)
	case amqp.RepairDetach:
		doc.DetachTransaction(t)
	default:
		return fail(fmt.Errorf("unknown op %q", op))
	}

	if _, err := s.returns.ReplaceReturn(ctx, doc); err != nil {
		return fail(fmt.Errorf("replace return: %w", err))
	}
	step.Applied = true
	return step
}

func (s *Service) patchTransactions(ctx context.Context, ts ...core.Transaction) error {
	outcome, err := s.transactions.UpdateTransactions(ctx, ts)
	if err != nil {
		return fmt.Errorf("update transactions: %w", err)
	}
	if len(outcome.Failed) > 0 {
		return fmt.Errorf("%w: %v", ErrTransactionPatchFailed, outcome.Failed)
	}
	return nil
}

func (s *Service) publishRepair(ctx context.Context, op, returnID string, t core.Transaction) {
	if s.repairs == nil {
		return
	}
	msg := amqp.NewRepairMessage(op, returnID, t.ID, t.TellerTransactionID, t.Magnitude().Cents)
	if err := s.repairs.PublishRepair(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish repair message",
			"component", "recon",
			"op", op,
			"return_id", returnID,
			"transaction_id", t.ID,
			"error", err)
	}
}
