// Package memory is the in-process store used by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"paidback/internal/core"
	"paidback/internal/store"
)

type Store struct {
	mu           sync.Mutex
	transactions map[string]core.Transaction
	returns      map[string]core.ReturnDocument
}

func New() *Store {
	return &Store{
		transactions: make(map[string]core.Transaction),
		returns:      make(map[string]core.ReturnDocument),
	}
}

// Seed loads fixtures, assigning ids to records that lack one.
func (s *Store) Seed(txns []core.Transaction, docs []core.ReturnDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		s.transactions[t.ID] = copyTxn(t)
	}
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		s.returns[d.ID] = copyDoc(d)
	}
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, copyTxn(t))
	}
	sortByDate(out)
	return out, nil
}

func (s *Store) TransactionsByIDs(_ context.Context, ids []string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok {
			out = append(out, copyTxn(t))
		}
	}
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.transactions[t.ID] = copyTxn(t)
	return copyTxn(t), nil
}

func (s *Store) UpdateTransactions(_ context.Context, ts []core.Transaction) (store.UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out store.UpdateOutcome
	for _, t := range ts {
		if _, ok := s.transactions[t.ID]; !ok {
			out.Failed = append(out.Failed, t.ID)
			continue
		}
		s.transactions[t.ID] = copyTxn(t)
		out.Successful = append(out.Successful, t.ID)
	}
	return out, nil
}

func (s *Store) ListReturns(_ context.Context) ([]core.ReturnDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ReturnDocument, 0, len(s.returns))
	for _, d := range s.returns {
		out = append(out, copyDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (s *Store) GetReturn(_ context.Context, id string) (core.ReturnDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.returns[id]
	if !ok {
		return core.ReturnDocument{}, store.ErrNotFound
	}
	return copyDoc(d), nil
}

func (s *Store) CreateReturn(_ context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.returns[doc.ID] = copyDoc(doc)
	return copyDoc(doc), nil
}

func (s *Store) ReplaceReturn(_ context.Context, doc core.ReturnDocument) (core.ReturnDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.returns[doc.ID]; !ok {
		return core.ReturnDocument{}, store.ErrNotFound
	}
	s.returns[doc.ID] = copyDoc(doc)
	return copyDoc(doc), nil
}

func (s *Store) DeleteReturn(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.returns[id]; !ok {
		return store.ErrNotFound
	}
	// No cascade: linked transactions keep their returnId.
	delete(s.returns, id)
	return nil
}

func copyTxn(t core.Transaction) core.Transaction {
	t.PurchaseCategory = append([]string(nil), t.PurchaseCategory...)
	return t
}

func copyDoc(d core.ReturnDocument) core.ReturnDocument {
	d.ReturnedTransactionIDs = append([]string(nil), d.ReturnedTransactionIDs...)
	d.ReturnedTellerTransactionIDs = append([]string(nil), d.ReturnedTellerTransactionIDs...)
	return d
}

func sortByDate(ts []core.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date.Time) {
			return ts[i].Date.Before(ts[j].Date.Time)
		}
		return ts[i].ID < ts[j].ID
	})
}
