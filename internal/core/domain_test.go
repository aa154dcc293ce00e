package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func txn(id string, cents int64) Transaction {
	return Transaction{
		ID:              id,
		Amount:          Money{Cents: cents},
		TransactionType: Expense,
	}
}

func TestAttachDetachArithmetic(t *testing.T) {
	doc := ReturnDocument{ID: "ret1", Total: Money{Cents: 10000}}

	doc.AttachTransaction(txn("t1", 4250))
	if doc.Total.Cents != 14250 {
		t.Fatalf("after attach: expected 14250, got %d", doc.Total.Cents)
	}

	doc.AttachTransaction(txn("t2", 1000))
	if doc.Total.Cents != 15250 {
		t.Fatalf("after second attach: expected 15250, got %d", doc.Total.Cents)
	}

	doc.DetachTransaction(txn("t1", 4250))
	if doc.Total.Cents != 11000 {
		t.Fatalf("after detach: expected 11000, got %d", doc.Total.Cents)
	}
	if doc.LinksTransaction("t1") {
		t.Fatal("t1 should be unlinked")
	}
	if !doc.LinksTransaction("t2") {
		t.Fatal("t2 should still be linked")
	}
}

func TestDetachClampsAtZero(t *testing.T) {
	doc := ReturnDocument{ID: "ret1", Total: Money{Cents: 500}}
	doc.DetachTransaction(txn("t1", 1200))
	if doc.Total.Cents != 0 {
		t.Fatalf("expected total clamped to 0, got %d", doc.Total.Cents)
	}
}

func TestAttachIsSetLike(t *testing.T) {
	doc := ReturnDocument{ID: "ret1"}
	tr := txn("t1", 1000)
	tr.TellerTransactionID = "teller-1"

	doc.AttachTransaction(tr)
	doc.AttachTransaction(tr)

	if len(doc.ReturnedTransactionIDs) != 1 {
		t.Fatalf("expected 1 transaction id, got %d", len(doc.ReturnedTransactionIDs))
	}
	if len(doc.ReturnedTellerTransactionIDs) != 1 {
		t.Fatalf("expected 1 teller id, got %d", len(doc.ReturnedTellerTransactionIDs))
	}

	// Detaching an absent id leaves the sets alone
	doc.DetachTransaction(txn("missing", 100))
	if len(doc.ReturnedTransactionIDs) != 1 {
		t.Fatalf("detach of absent id changed the set: %v", doc.ReturnedTransactionIDs)
	}
}

func TestSetReturnKeepsFlagConsistent(t *testing.T) {
	tr := txn("t1", 1000)

	tr.SetReturn("ret1")
	if !tr.Returned || tr.ReturnID != "ret1" {
		t.Fatalf("expected linked state, got returned=%v returnId=%q", tr.Returned, tr.ReturnID)
	}

	tr.SetReturn("")
	if tr.Returned || tr.ReturnID != "" {
		t.Fatalf("expected unlinked state, got returned=%v returnId=%q", tr.Returned, tr.ReturnID)
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		Amount:          Money{Cents: 1500},
		TransactionType: Expense,
		Date:            NewDate(2024, 3, 15),
		Year:            2024,
		Month:           3,
		Day:             15,
		Category:        "fuel",
		PaymentMethod:   "Cash",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	bad := valid
	bad.Category = "nonsense"
	if err := bad.Validate(); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}

	bad = valid
	bad.Month = 4
	if err := bad.Validate(); !errors.Is(err, ErrCalendarMismatch) {
		t.Fatalf("expected ErrCalendarMismatch, got %v", err)
	}

	bad = valid
	bad.Returned = true
	if err := bad.Validate(); !errors.Is(err, ErrLinkageMismatch) {
		t.Fatalf("expected ErrLinkageMismatch, got %v", err)
	}
}

func TestReturnDocumentValidate(t *testing.T) {
	valid := ReturnDocument{
		Date:         NewDate(2024, 3, 1),
		LenderUserID: "lender",
		PayeeUserID:  "payee",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	same := valid
	same.PayeeUserID = "lender"
	if err := same.Validate(); !errors.Is(err, ErrSamePersonReturn) {
		t.Fatalf("expected ErrSamePersonReturn, got %v", err)
	}

	missing := valid
	missing.LenderUserID = " "
	if err := missing.Validate(); !errors.Is(err, ErrMissingParty) {
		t.Fatalf("expected ErrMissingParty, got %v", err)
	}
}

func TestNullableIDJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		ReturnID NullableID `json:"returnId"`
	}{})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"returnId":null}` {
		t.Fatalf("empty id should marshal as null, got %s", out)
	}

	var v struct {
		ReturnID NullableID `json:"returnId"`
	}
	if err := json.Unmarshal([]byte(`{"returnId":null}`), &v); err != nil || v.ReturnID != "" {
		t.Fatalf("null should decode to empty id, got %q (err=%v)", v.ReturnID, err)
	}
	if err := json.Unmarshal([]byte(`{"returnId":"ret1"}`), &v); err != nil || v.ReturnID != "ret1" {
		t.Fatalf("expected ret1, got %q (err=%v)", v.ReturnID, err)
	}
}

func TestDateJSON(t *testing.T) {
	out, err := json.Marshal(NewDate(2024, 3, 15))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"2024-03-15"` {
		t.Fatalf("expected 2024-03-15, got %s", out)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2024-03-15"`), &d); err != nil {
		t.Fatal(err)
	}
	if d.Year() != 2024 || int(d.Time.Month()) != 3 || d.Time.Day() != 15 {
		t.Fatalf("unexpected date %v", d.Time)
	}
	if err := json.Unmarshal([]byte(`"2024-03-15T10:30:00Z"`), &d); err != nil {
		t.Fatalf("RFC3339 fallback failed: %v", err)
	}
}
