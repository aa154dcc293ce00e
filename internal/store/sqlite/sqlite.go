// Package sqlite is the self-hosted store adapter. It keeps the same record
// shapes as the remote backend so the reconciliation code cannot tell the
// difference; id sets and purchase categories are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"paidback/internal/core"
	"paidback/internal/store"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sql.DB
}

var (
	_ store.TransactionStore = (*Repository)(nil)
	_ store.ReturnStore      = (*Repository)(nil)
)

func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = `id, amount_cents, transaction_type, date, year, month, day,
	category, purchase_category, payment_method, points, need_to_be_paidback,
	return_id, returned, notes, teller_transaction_id`

func (r *Repository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *Repository) TransactionsByIDs(ctx context.Context, ids []string) ([]core.Transaction, error) {
	txns := make([]core.Transaction, 0, len(ids))
	for _, id := range ids {
		t, err := r.getTransaction(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	tags, err := json.Marshal(emptyIfNil(t.PurchaseCategory))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("encode purchase categories: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Amount.Cents, string(t.TransactionType), t.Date.Format(dateLayout),
		t.Year, t.Month, t.Day, t.Category, string(tags), t.PaymentMethod,
		t.Points, t.NeedToBePaidback, string(t.ReturnID), t.Returned,
		t.Notes, t.TellerTransactionID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) UpdateTransactions(ctx context.Context, ts []core.Transaction) (store.UpdateOutcome, error) {
	outcome := store.UpdateOutcome{Successful: []string{}, Failed: []string{}}
	for _, t := range ts {
		if err := r.updateTransaction(ctx, t); err != nil {
			outcome.Failed = append(outcome.Failed, t.ID)
			continue
		}
		outcome.Successful = append(outcome.Successful, t.ID)
	}
	return outcome, nil
}

func (r *Repository) updateTransaction(ctx context.Context, t core.Transaction) error {
	tags, err := json.Marshal(emptyIfNil(t.PurchaseCategory))
	if err != nil {
		return fmt.Errorf("encode purchase categories: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET amount_cents = ?, transaction_type = ?, date = ?,
		 year = ?, month = ?, day = ?, category = ?, purchase_category = ?,
		 payment_method = ?, points = ?, need_to_be_paidback = ?, return_id = ?,
		 returned = ?, notes = ?, teller_transaction_id = ?
		 WHERE id = ?`,
		t.Amount.Cents, string(t.TransactionType), t.Date.Format(dateLayout),
		t.Year, t.Month, t.Day, t.Category, string(tags), t.PaymentMethod,
		t.Points, t.NeedToBePaidback, string(t.ReturnID), t.Returned,
		t.Notes, t.TellerTransactionID, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) getTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

const returnColumns = `id, date, total_cents, description, lender_user_id, payee_user_id,
	returned_transaction_ids, returned_teller_transaction_ids,
	paid_back_confirmation_payee, paid_back_confirmation_lender`

func (r *Repository) ListReturns(ctx context.Context) ([]core.ReturnDocument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+returnColumns+` FROM returns ORDER BY date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	var docs []core.ReturnDocument
	for rows.Next() {
		doc, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *Repository) GetReturn(ctx context.Context, id string) (core.ReturnDocument, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM returns WHERE id = ?`, id)
	doc, err := scanReturn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ReturnDocument{}, store.ErrNotFound
	}
	if err != nil {
		return core.ReturnDocument{}, fmt.Errorf("get return %s: %w", id, err)
	}
	return doc, nil
}

func (r *Repository) CreateReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	txnIDs, tellerIDs, err := encodeIDSets(doc)
	if err != nil {
		return core.ReturnDocument{}, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO returns (`+returnColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Date.Format(dateLayout), doc.Total.Cents, doc.Description,
		doc.LenderUserID, doc.PayeeUserID, txnIDs, tellerIDs,
		doc.PaidBackConfirmationPayee, doc.PaidBackConfirmationLender)
	if err != nil {
		return core.ReturnDocument{}, fmt.Errorf("insert return: %w", err)
	}
	return doc, nil
}

func (r *Repository) ReplaceReturn(ctx context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	txnIDs, tellerIDs, err := encodeIDSets(doc)
	if err != nil {
		return core.ReturnDocument{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE returns SET date = ?, total_cents = ?, description = ?,
		 lender_user_id = ?, payee_user_id = ?, returned_transaction_ids = ?,
		 returned_teller_transaction_ids = ?, paid_back_confirmation_payee = ?,
		 paid_back_confirmation_lender = ?
		 WHERE id = ?`,
		doc.Date.Format(dateLayout), doc.Total.Cents, doc.Description,
		doc.LenderUserID, doc.PayeeUserID, txnIDs, tellerIDs,
		doc.PaidBackConfirmationPayee, doc.PaidBackConfirmationLender, doc.ID)
	if err != nil {
		return core.ReturnDocument{}, fmt.Errorf("update return %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.ReturnDocument{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ReturnDocument{}, store.ErrNotFound
	}
	return doc, nil
}

func (r *Repository) DeleteReturn(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM returns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete return %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t        core.Transaction
		typ      string
		date     string
		tags     string
		returnID string
	)
	err := row.Scan(&t.ID, &t.Amount.Cents, &typ, &date, &t.Year, &t.Month, &t.Day,
		&t.Category, &tags, &t.PaymentMethod, &t.Points, &t.NeedToBePaidback,
		&returnID, &t.Returned, &t.Notes, &t.TellerTransactionID)
	if err != nil {
		return core.Transaction{}, err
	}

	t.TransactionType = core.TransactionType(typ)
	t.ReturnID = core.NullableID(returnID)
	if t.Date.Time, err = time.Parse(dateLayout, date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(tags), &t.PurchaseCategory); err != nil {
		return core.Transaction{}, fmt.Errorf("decode purchase categories: %w", err)
	}
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func scanReturn(row rowScanner) (core.ReturnDocument, error) {
	var (
		doc       core.ReturnDocument
		date      string
		txnIDs    string
		tellerIDs string
	)
	err := row.Scan(&doc.ID, &date, &doc.Total.Cents, &doc.Description,
		&doc.LenderUserID, &doc.PayeeUserID, &txnIDs, &tellerIDs,
		&doc.PaidBackConfirmationPayee, &doc.PaidBackConfirmationLender)
	if err != nil {
		return core.ReturnDocument{}, err
	}

	if doc.Date.Time, err = time.Parse(dateLayout, date); err != nil {
		return core.ReturnDocument{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if err := json.Unmarshal([]byte(txnIDs), &doc.ReturnedTransactionIDs); err != nil {
		return core.ReturnDocument{}, fmt.Errorf("decode transaction ids: %w", err)
	}
	if err := json.Unmarshal([]byte(tellerIDs), &doc.ReturnedTellerTransactionIDs); err != nil {
		return core.ReturnDocument{}, fmt.Errorf("decode teller transaction ids: %w", err)
	}
	return doc, nil
}

func encodeIDSets(doc core.ReturnDocument) (string, string, error) {
	txnIDs, err := json.Marshal(emptyIfNil(doc.ReturnedTransactionIDs))
	if err != nil {
		return "", "", fmt.Errorf("encode transaction ids: %w", err)
	}
	tellerIDs, err := json.Marshal(emptyIfNil(doc.ReturnedTellerTransactionIDs))
	if err != nil {
		return "", "", fmt.Errorf("encode teller transaction ids: %w", err)
	}
	return string(txnIDs), string(tellerIDs), nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
