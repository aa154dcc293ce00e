// Package store defines the ports the gateway uses to reach its system of
// record. The remote adapter speaks to the external backend API; the sqlite
// and memory adapters back self-hosted and test deployments.
package store

import (
	"context"
	"errors"

	"paidback/internal/core"
)

// UpdateOutcome is the per-item result of a batch transaction write, in the
// backend's update-many response shape. Failed items are not retried here.
type UpdateOutcome struct {
	Successful []string `json:"successful"`
	Failed     []string `json:"failed"`
}

type (
	TransactionStore interface {
		// ListTransactions returns every transaction record.
		ListTransactions(ctx context.Context) ([]core.Transaction, error)

		// TransactionsByIDs resolves the given ids. Unknown ids are skipped,
		// not errors; the caller compares lengths when it cares.
		TransactionsByIDs(ctx context.Context, ids []string) ([]core.Transaction, error)

		// CreateTransaction persists a new record and returns it with its
		// assigned id.
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)

		// UpdateTransactions replaces each given record wholesale and
		// reports per-item success and failure.
		UpdateTransactions(ctx context.Context, ts []core.Transaction) (UpdateOutcome, error)
	}

	ReturnStore interface {
		ListReturns(ctx context.Context) ([]core.ReturnDocument, error)
		GetReturn(ctx context.Context, id string) (core.ReturnDocument, error)

		// CreateReturn persists a new document and returns it with its id.
		CreateReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error)

		// ReplaceReturn overwrites the full document (PUT semantics, never a
		// merge-patch); the backend expects every field on every write.
		ReplaceReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error)

		// DeleteReturn removes the document. Linked transactions are left
		// untouched; there is no cascade.
		DeleteReturn(ctx context.Context, id string) error
	}

	// TellerStore lists bank-feed transactions pending review. Only the
	// remote backend has a bank feed; local adapters do not implement this.
	TellerStore interface {
		ListTellerTransactions(ctx context.Context) ([]core.Transaction, error)
	}
)

var ErrNotFound = errors.New("record not found")
