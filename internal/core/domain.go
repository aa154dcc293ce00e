package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// Categories accepted for Transaction.Category.
var Categories = []string{
	"fuel", "personal", "parents-monthly", "parents-not monthly", "bill",
	"emergency", "travel", "offering", "doctors", "automobile", "korea",
	"business", "misc", "payroll",
}

// PurchaseCategories accepted as Transaction.PurchaseCategory tags.
var PurchaseCategories = []string{
	"groceries", "amazon", "dining", "gift", "gift card", "birthday gift",
	"wedding gift", "health", "flight", "hotel", "drugstore", "lyft",
	"travel", "international", "fuel",
}

// PaymentMethods accepted for Transaction.PaymentMethod.
var PaymentMethods = []string{
	"Chase College", "Sapphire Reserve", "Freedom", "Freedom Unlimited",
	"Freedom Flex", "Amazon Visa", "Discover", "Cash", "Schwab",
	"DiscoverChecking", "Amazon Gift Card",
}

// PointsOptions are the reward multipliers selectable per payment method.
var PointsOptions = []float64{0, 1, 1.5, 3, 5, 7, 10}

type (
	TransactionType string

	// Date is a calendar day. The wire format is "YYYY-MM-DD".
	Date struct {
		time.Time
	}

	// NullableID is an optional document reference. The empty value marshals
	// as JSON null, which is how the backend represents "unlinked"; omitting
	// the field on a full-replace write would be a different statement.
	NullableID string

	// Transaction is a single recorded expense or income event. Amount is
	// persisted as an unsigned magnitude; TransactionType carries direction.
	// Year/Month/Day are redundant copies of Date the backend indexes on.
	Transaction struct {
		ID                  string          `json:"_id,omitempty"`
		Amount              Money           `json:"amount"`
		TransactionType     TransactionType `json:"transactionType"`
		Date                Date            `json:"date"`
		Year                int             `json:"year"`
		Month               int             `json:"month"`
		Day                 int             `json:"day"`
		Category            string          `json:"category"`
		PurchaseCategory    []string        `json:"purchaseCategory"`
		PaymentMethod       string          `json:"paymentMethod"`
		Points              float64         `json:"points"`
		NeedToBePaidback    bool            `json:"needToBePaidback"`
		ReturnID            NullableID      `json:"returnId"`
		Returned            bool            `json:"returned"`
		Notes               string          `json:"notes,omitempty"`
		TellerTransactionID string          `json:"tellerTransactionId,omitempty"`
	}

	// ReturnDocument is a reimbursement batch owed between two parties.
	// Total must equal the sum of magnitudes of the linked transactions; the
	// reconciliation procedure is the only thing maintaining that.
	ReturnDocument struct {
		ID                           string   `json:"_id,omitempty"`
		Date                         Date     `json:"date"`
		Total                        Money    `json:"total"`
		Description                  string   `json:"description"`
		LenderUserID                 string   `json:"lenderUserId"`
		PayeeUserID                  string   `json:"payeeUserId"`
		ReturnedTransactionIDs       []string `json:"returnedTransactionIds"`
		ReturnedTellerTransactionIDs []string `json:"returnedTellerTransactionIds"`
		PaidBackConfirmationPayee    bool     `json:"paidBackConfirmationPayee"`
		PaidBackConfirmationLender   bool     `json:"paidBackConfirmationLender"`
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownTag           = errors.New("unknown purchase category")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrNegativePoints       = errors.New("points must be non-negative")
	ErrCalendarMismatch     = errors.New("year/month/day fields disagree with date")
	ErrLinkageMismatch      = errors.New("returned flag disagrees with returnId")
	ErrMissingParty         = errors.New("lender and payee are required")
	ErrNegativeTotal        = errors.New("total must not be negative")

	// ErrSamePersonReturn flags a lender == payee assignment. It is a
	// warning state: callers surface it but the document stays usable.
	ErrSamePersonReturn = errors.New("lender and payee are the same person")
)

// NewDate builds a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	// Accept a bare day or a full timestamp; the backend has emitted both.
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("date %q: %w", s, ErrInvalidDate)
		}
	}
	d.Time = t.UTC().Truncate(24 * time.Hour)
	return nil
}

// SetReturn points the transaction at a return document (or clears it when id
// is empty) and keeps the Returned flag consistent. All linkage mutations go
// through here so returned == (returnId != null) holds after every change.
func (t *Transaction) SetReturn(id NullableID) {
	t.ReturnID = id
	t.Returned = id != ""
}

// SyncCalendarFields rewrites Year/Month/Day from Date.
func (t *Transaction) SyncCalendarFields() {
	t.Year = t.Date.Year()
	t.Month = int(t.Date.Time.Month())
	t.Day = t.Date.Time.Day()
}

// Magnitude is the unsigned amount used by all reconciliation arithmetic.
func (t Transaction) Magnitude() Money {
	return t.Amount.Abs()
}

// SignedAmount applies the transaction type's direction for display and
// aggregation. The stored amount stays a magnitude.
func (t Transaction) SignedAmount() Money {
	m := t.Amount.Abs()
	if t.TransactionType == Expense {
		return Money{Cents: -m.Cents}
	}
	return m
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.TransactionType != Expense && t.TransactionType != Income {
		return ErrInvalidType
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !contains(Categories, t.Category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, t.Category)
	}
	for _, tag := range t.PurchaseCategory {
		if !contains(PurchaseCategories, tag) {
			return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
		}
	}
	if !contains(PaymentMethods, t.PaymentMethod) {
		return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, t.PaymentMethod)
	}
	if t.Points < 0 {
		return ErrNegativePoints
	}
	if t.Year != t.Date.Year() || t.Month != int(t.Date.Time.Month()) || t.Day != t.Date.Time.Day() {
		return ErrCalendarMismatch
	}
	if t.Returned != (t.ReturnID != "") {
		return ErrLinkageMismatch
	}
	return nil
}

// Validate checks structural fields. A same-person lender/payee pairing
// returns ErrSamePersonReturn, which callers treat as a warning, not a
// rejection.
func (r ReturnDocument) Validate() error {
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	if r.Total.IsNegative() {
		return ErrNegativeTotal
	}
	if strings.TrimSpace(r.LenderUserID) == "" || strings.TrimSpace(r.PayeeUserID) == "" {
		return ErrMissingParty
	}
	if r.LenderUserID == r.PayeeUserID {
		return ErrSamePersonReturn
	}
	return nil
}

// AttachTransaction adds the transaction's magnitude to the total and its ids
// to the linkage sets. Duplicate ids are ignored (set semantics), so a replay
// of the same attach is harmless.
func (r *ReturnDocument) AttachTransaction(t Transaction) {
	r.Total = r.Total.Add(t.Magnitude())
	if r.Total.IsNegative() {
		r.Total = Money{}
	}
	r.ReturnedTransactionIDs = addToSet(r.ReturnedTransactionIDs, t.ID)
	if t.TellerTransactionID != "" {
		r.ReturnedTellerTransactionIDs = addToSet(r.ReturnedTellerTransactionIDs, t.TellerTransactionID)
	}
}

// DetachTransaction subtracts the magnitude (clamped at zero) and removes the
// ids. Removing an id that is absent is a no-op.
func (r *ReturnDocument) DetachTransaction(t Transaction) {
	r.Total = r.Total.SubClampZero(t.Magnitude())
	r.ReturnedTransactionIDs = removeFromSet(r.ReturnedTransactionIDs, t.ID)
	if t.TellerTransactionID != "" {
		r.ReturnedTellerTransactionIDs = removeFromSet(r.ReturnedTellerTransactionIDs, t.TellerTransactionID)
	}
}

// LinksTransaction reports whether the document currently lists the id.
func (r ReturnDocument) LinksTransaction(id string) bool {
	return contains(r.ReturnedTransactionIDs, id)
}

func addToSet(ids []string, id string) []string {
	if id == "" || contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeFromSet(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

func (n *NullableID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*n = NullableID(s)
	return nil
}
