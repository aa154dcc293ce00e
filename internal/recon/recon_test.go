package recon

import (
	"context"
	"errors"
	"testing"

	"paidback/internal/amqp"
	"paidback/internal/core"
	"paidback/internal/store"
	"paidback/internal/store/memory"
)

// countingStore wraps the memory store and records every write so ordering
// and no-op guarantees can be asserted.
type countingStore struct {
	*memory.Store

	calls       []string
	failUpdates bool
	failReplace map[string]bool
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New(), failReplace: map[string]bool{}}
}

func (c *countingStore) UpdateTransactions(ctx context.Context, ts []core.Transaction) (store.UpdateOutcome, error) {
	c.calls = append(c.calls, "update")
	if c.failUpdates {
		return store.UpdateOutcome{}, errors.New("backend unavailable")
	}
	return c.Store.UpdateTransactions(ctx, ts)
}

func (c *countingStore) ReplaceReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	c.calls = append(c.calls, "replace:"+doc.ID)
	if c.failReplace[doc.ID] {
		return core.ReturnDocument{}, errors.New("backend unavailable")
	}
	return c.Store.ReplaceReturn(ctx, doc)
}

type capturedRepairs struct {
	msgs []*amqp.RepairMessage
}

func (c *capturedRepairs) PublishRepair(_ context.Context, msg *amqp.RepairMessage) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func seedLinked(t *testing.T, cs *countingStore) (core.Transaction, core.ReturnDocument) {
	t.Helper()
	tr := core.Transaction{
		ID:              "t1",
		Amount:          core.Money{Cents: 4250},
		TransactionType: core.Expense,
	}
	tr.SetReturn("old")
	old := core.ReturnDocument{
		ID:                     "old",
		Total:                  core.Money{Cents: 4250},
		ReturnedTransactionIDs: []string{"t1"},
	}
	cs.Seed([]core.Transaction{tr}, []core.ReturnDocument{old})
	return tr, old
}

func TestAssignReturnNoChangeMakesNoCalls(t *testing.T) {
	cs := newCountingStore()
	tr, _ := seedLinked(t, cs)
	svc := NewService(cs, cs, nil)

	res, err := svc.AssignReturn(context.Background(), tr, "old")
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoChange {
		t.Fatal("expected NoChange")
	}
	if len(cs.calls) != 0 {
		t.Fatalf("no-op must not touch the backend, got calls %v", cs.calls)
	}
}

func TestAssignReturnMovesBetweenDocuments(t *testing.T) {
	cs := newCountingStore()
	tr, _ := seedLinked(t, cs)
	cs.Seed(nil, []core.ReturnDocument{{ID: "new", Total: core.Money{Cents: 1000}}})
	svc := NewService(cs, cs, nil)

	res, err := svc.AssignReturn(context.Background(), tr, "new")
	if err != nil {
		t.Fatal(err)
	}
	if !res.TransactionPatched || !res.Detach.Applied || !res.Attach.Applied {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Err() != nil {
		t.Fatalf("unexpected step errors: %v", res.Err())
	}

	// Transaction patch must come before any document write
	if len(cs.calls) != 3 || cs.calls[0] != "update" {
		t.Fatalf("unexpected call order %v", cs.calls)
	}

	oldDoc, _ := cs.GetReturn(context.Background(), "old")
	if oldDoc.Total.Cents != 0 || oldDoc.LinksTransaction("t1") {
		t.Fatalf("old document not detached: %+v", oldDoc)
	}
	newDoc, _ := cs.GetReturn(context.Background(), "new")
	if newDoc.Total.Cents != 5250 || !newDoc.LinksTransaction("t1") {
		t.Fatalf("new document not attached: %+v", newDoc)
	}

	got, _ := cs.TransactionsByIDs(context.Background(), []string{"t1"})
	if got[0].ReturnID != "new" || !got[0].Returned {
		t.Fatalf("transaction not repointed: %+v", got[0])
	}
}

func TestAssignReturnUnlink(t *testing.T) {
	cs := newCountingStore()
	tr, _ := seedLinked(t, cs)
	svc := NewService(cs, cs, nil)

	res, err := svc.AssignReturn(context.Background(), tr, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Detach.Applied || res.Attach.Attempted {
		t.Fatalf("unlink should only detach: %+v", res)
	}

	got, _ := cs.TransactionsByIDs(context.Background(), []string{"t1"})
	if got[0].ReturnID != "" || got[0].Returned {
		t.Fatalf("transaction still linked: %+v", got[0])
	}
}

func TestAssignReturnAbortsWhenTransactionPatchFails(t *testing.T) {
	cs := newCountingStore()
	tr, _ := seedLinked(t, cs)
	cs.failUpdates = true
	svc := NewService(cs, cs, nil)

	res, err := svc.AssignReturn(context.Background(), tr, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if res.TransactionPatched || res.Detach.Attempted {
		t.Fatalf("document writes must not run after a failed patch: %+v", res)
	}
	if len(cs.calls) != 1 {
		t.Fatalf("expected only the update call, got %v", cs.calls)
	}

	oldDoc, _ := cs.GetReturn(context.Background(), "old")
	if oldDoc.Total.Cents != 4250 {
		t.Fatalf("old document touched: %+v", oldDoc)
	}
}

func TestAssignReturnDocFailurePublishesRepairWithoutRollback(t *testing.T) {
	cs := newCountingStore()
	tr, _ := seedLinked(t, cs)
	cs.failReplace["old"] = true
	repairs := &capturedRepairs{}
	svc := NewService(cs, cs, repairs)

	res, err := svc.AssignReturn(context.Background(), tr, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.TransactionPatched {
		t.Fatal("transaction patch should have committed")
	}
	if res.Detach.Applied || res.Detach.Err == nil {
		t.Fatalf("detach should have failed: %+v", res.Detach)
	}

	// The committed transaction patch is never rolled back
	got, _ := cs.TransactionsByIDs(context.Background(), []string{"t1"})
	if got[0].ReturnID != "" {
		t.Fatalf("transaction patch was rolled back: %+v", got[0])
	}

	if len(repairs.msgs) != 1 {
		t.Fatalf("expected 1 repair message, got %d", len(repairs.msgs))
	}
	msg := repairs.msgs[0]
	if msg.Op != amqp.RepairDetach || msg.ReturnID != "old" ||
		msg.TransactionID != "t1" || msg.AmountCents != 4250 {
		t.Fatalf("unexpected repair message %+v", msg)
	}
}

func TestRemoveFromReturnIsDocumentFirst(t *testing.T) {
	cs := newCountingStore()
	tr, doc := seedLinked(t, cs)
	cs.failReplace["old"] = true
	svc := NewService(cs, cs, nil)

	res, err := svc.RemoveFromReturn(context.Background(), doc, tr)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.TransactionPatched {
		t.Fatal("transaction must not be patched when the document write fails")
	}
	for _, call := range cs.calls {
		if call == "update" {
			t.Fatalf("transaction write ran despite document failure: %v", cs.calls)
		}
	}
}

func TestRemoveFromReturnHappyPath(t *testing.T) {
	cs := newCountingStore()
	tr, doc := seedLinked(t, cs)
	svc := NewService(cs, cs, nil)

	res, err := svc.RemoveFromReturn(context.Background(), doc, tr)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Detach.Applied || !res.TransactionPatched {
		t.Fatalf("unexpected result %+v", res)
	}
	if cs.calls[0] != "replace:old" {
		t.Fatalf("document write must come first, got %v", cs.calls)
	}

	got, _ := cs.TransactionsByIDs(context.Background(), []string{"t1"})
	if got[0].Returned {
		t.Fatalf("transaction still flagged: %+v", got[0])
	}
}

func TestNewReturnFromTransactionsAggregatesUpFront(t *testing.T) {
	cs := newCountingStore()
	t1 := core.Transaction{ID: "t1", Amount: core.Money{Cents: 1000}, TransactionType: core.Expense}
	t2 := core.Transaction{ID: "t2", Amount: core.Money{Cents: 2500}, TransactionType: core.Expense, TellerTransactionID: "teller-2"}
	cs.Seed([]core.Transaction{t1, t2}, nil)
	svc := NewService(cs, cs, nil)

	created, outcome, err := svc.NewReturnFromTransactions(context.Background(),
		core.ReturnDocument{LenderUserID: "l", PayeeUserID: "p", Date: core.NewDate(2024, 3, 1)},
		[]core.Transaction{t1, t2})
	if err != nil {
		t.Fatal(err)
	}

	if created.Total.Cents != 3500 {
		t.Fatalf("total: expected 3500, got %d", created.Total.Cents)
	}
	if len(created.ReturnedTransactionIDs) != 2 || len(created.ReturnedTellerTransactionIDs) != 1 {
		t.Fatalf("id sets: %+v", created)
	}
	if len(outcome.Successful) != 2 || len(outcome.Failed) != 0 {
		t.Fatalf("outcome: %+v", outcome)
	}

	// One create, one batch patch: no per-transaction replace cycle
	if len(cs.calls) != 1 || cs.calls[0] != "update" {
		t.Fatalf("unexpected write calls %v", cs.calls)
	}

	got, _ := cs.TransactionsByIDs(context.Background(), []string{"t1", "t2"})
	for _, tr := range got {
		if string(tr.ReturnID) != created.ID || !tr.Returned {
			t.Fatalf("transaction not linked to new return: %+v", tr)
		}
	}
}

func TestSaveWithReconciliation(t *testing.T) {
	cs := newCountingStore()
	tr, _ := seedLinked(t, cs)
	cs.Seed(nil, []core.ReturnDocument{{ID: "new"}})
	svc := NewService(cs, cs, nil)

	unchanged := core.Transaction{ID: "t2", Amount: core.Money{Cents: 100}, TransactionType: core.Expense}
	cs.Seed([]core.Transaction{unchanged}, nil)

	moved := tr
	moved.SetReturn("new")
	editedOnly := unchanged
	editedOnly.Notes = "updated"

	batch, err := svc.SaveWithReconciliation(context.Background(),
		[]core.Transaction{tr, unchanged},
		[]core.Transaction{moved, editedOnly})
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Outcome.Successful) != 2 {
		t.Fatalf("outcome: %+v", batch.Outcome)
	}
	// Only the row whose linkage changed gets reconciled
	if len(batch.Reconciled) != 1 || batch.Reconciled[0].TransactionID != "t1" {
		t.Fatalf("reconciled: %+v", batch.Reconciled)
	}
	r := batch.Reconciled[0]
	if !r.Detach.Applied || r.Detach.ReturnID != "old" || !r.Attach.Applied || r.Attach.ReturnID != "new" {
		t.Fatalf("steps: %+v", r)
	}

	newDoc, _ := cs.GetReturn(context.Background(), "new")
	if !newDoc.LinksTransaction("t1") || newDoc.Total.Cents != 4250 {
		t.Fatalf("new document: %+v", newDoc)
	}
}

func TestWorkerReplayPathSkipsRepublish(t *testing.T) {
	cs := newCountingStore()
	_, _ = seedLinked(t, cs)
	cs.failReplace["old"] = true
	repairs := &capturedRepairs{}
	svc := NewService(cs, cs, repairs)

	step := svc.Detach(context.Background(),
		"old", core.Transaction{ID: "t1", Amount: core.Money{Cents: 4250}})
	if step.Err == nil {
		t.Fatal("expected failure")
	}
	if len(repairs.msgs) != 0 {
		t.Fatalf("replay path must not republish, got %d messages", len(repairs.msgs))
	}
}
