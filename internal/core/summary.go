package core

import "sort"

type (
	// CategoryAmount is one category's total for a month.
	CategoryAmount struct {
		Name   string `json:"name"`
		Amount Money  `json:"amount"`
	}

	// PaymentMethodSummary aggregates spend and reward points per card.
	PaymentMethodSummary struct {
		Method string  `json:"method"`
		Amount Money   `json:"amount"`
		Points float64 `json:"points"`
		Count  int     `json:"count"`
	}

	// MonthSummary is the review-page aggregation for one calendar month.
	MonthSummary struct {
		Year            int                    `json:"year"`
		Month           int                    `json:"month"`
		Total           Money                  `json:"total"`
		ByCategory      []CategoryAmount       `json:"byCategory"`
		ByPaymentMethod []PaymentMethodSummary `json:"byPaymentMethod"`
	}

	// PayeeMonth is one month's slice of the payee summary: the configured
	// return document for that month plus its linked transactions.
	PayeeMonth struct {
		Month          int            `json:"month"`
		ReturnID       string         `json:"returnId,omitempty"`
		Total          Money          `json:"total"`
		Document       *ReturnDocument `json:"document,omitempty"`
		TransactionIDs []string       `json:"transactionIds,omitempty"`
	}
)

// SummarizeMonth aggregates expense magnitudes for the given month. Income
// rows are excluded from category totals but counted into payment-method
// totals, matching the review page.
func SummarizeMonth(txns []Transaction, year, month int) MonthSummary {
	s := MonthSummary{Year: year, Month: month}
	byCat := map[string]int64{}
	type pm struct {
		cents  int64
		points float64
		count  int
	}
	byMethod := map[string]*pm{}

	for _, t := range txns {
		if t.Year != year || t.Month != month {
			continue
		}
		mag := t.Magnitude().Cents
		if t.TransactionType == Expense {
			byCat[t.Category] += mag
			s.Total = s.Total.Add(Money{Cents: mag})
		}
		entry := byMethod[t.PaymentMethod]
		if entry == nil {
			entry = &pm{}
			byMethod[t.PaymentMethod] = entry
		}
		entry.cents += mag
		entry.points += t.Points
		entry.count++
	}

	for name, cents := range byCat {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if s.ByCategory[i].Amount.Cents != s.ByCategory[j].Amount.Cents {
			return s.ByCategory[i].Amount.Cents > s.ByCategory[j].Amount.Cents
		}
		return s.ByCategory[i].Name < s.ByCategory[j].Name
	})

	for method, entry := range byMethod {
		s.ByPaymentMethod = append(s.ByPaymentMethod, PaymentMethodSummary{
			Method: method,
			Amount: Money{Cents: entry.cents},
			Points: entry.points,
			Count:  entry.count,
		})
	}
	sort.Slice(s.ByPaymentMethod, func(i, j int) bool {
		if s.ByPaymentMethod[i].Amount.Cents != s.ByPaymentMethod[j].Amount.Cents {
			return s.ByPaymentMethod[i].Amount.Cents > s.ByPaymentMethod[j].Amount.Cents
		}
		return s.ByPaymentMethod[i].Method < s.ByPaymentMethod[j].Method
	})

	return s
}

// BuildPayeeSummary maps each configured month to its return document. Months
// without a configured id, or whose document is missing from the list, get an
// empty slot so the table always renders twelve rows.
func BuildPayeeSummary(docs []ReturnDocument, monthReturnIDs map[int]string) []PayeeMonth {
	byID := make(map[string]ReturnDocument, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	out := make([]PayeeMonth, 0, 12)
	for month := 1; month <= 12; month++ {
		pm := PayeeMonth{Month: month}
		if id := monthReturnIDs[month]; id != "" {
			pm.ReturnID = id
			if doc, ok := byID[id]; ok {
				d := doc
				pm.Document = &d
				pm.Total = d.Total
				pm.TransactionIDs = append([]string(nil), d.ReturnedTransactionIDs...)
			}
		}
		out = append(out, pm)
	}
	return out
}
