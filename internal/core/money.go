// Package core holds the domain model shared by every adapter: transactions,
// return documents, and the cent-based money representation used to keep the
// reconciliation arithmetic exact.
package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in integer cents. The backend wire format is a plain
// 2-decimal JSON number, so Money marshals to that shape and parses arbitrary
// decimal input with half-up rounding on the third decimal place.
type Money struct {
	Cents int64
}

// ParseCents converts a decimal string to signed cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Bank-feed rows
// carry signed amounts, so a leading minus is allowed; callers that need a
// magnitude apply Abs afterwards.
//
//	ParseCents("12.34")  -> 1234
//	ParseCents("-12.50") -> -1250
//	ParseCents("12.346") -> 1235 (rounds up)
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}

	// First two fractional digits; half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// ParseMagnitudeCents parses a positive decimal amount as entered in a form.
// Signs and zero are rejected; direction belongs to the transaction type.
func ParseMagnitudeCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	cents, err := ParseCents(s)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// Abs returns the magnitude of the amount.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// SubClampZero returns max(0, m - other). Document totals must never go
// negative, even when detaching an amount larger than the current total.
func (m Money) SubClampZero(other Money) Money {
	c := m.Cents - other.Cents
	if c < 0 {
		c = 0
	}
	return Money{Cents: c}
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// Dollars returns the amount as a float64 for display only. Calculations stay
// in cents.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

// String renders the amount with two decimals, e.g. "142.50" or "-7.25".
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// MarshalJSON writes the backend's 2-decimal number format.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. The backend
// emits numbers; quoted values show up in hand-edited fixtures.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		m.Cents = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	cents, err := ParseCents(s)
	if err != nil {
		return fmt.Errorf("money %q: %w", s, err)
	}
	m.Cents = cents
	return nil
}

var ErrInvalidAmount = errors.New("invalid amount")
