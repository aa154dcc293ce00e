package core

import (
	"encoding/json"
	"testing"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1.50", -150, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseMagnitudeCents(t *testing.T) {
	if got, err := ParseMagnitudeCents("12.50"); err != nil || got != 1250 {
		t.Fatalf("expected 1250, got %d (err=%v)", got, err)
	}
	if _, err := ParseMagnitudeCents("-1"); err == nil {
		t.Fatal("negative magnitude expected error")
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money{Cents: 14250}
	b := Money{Cents: 1000}

	if got := a.Add(b); got.Cents != 15250 {
		t.Fatalf("Add: expected 15250, got %d", got.Cents)
	}
	if got := a.SubClampZero(b); got.Cents != 13250 {
		t.Fatalf("SubClampZero: expected 13250, got %d", got.Cents)
	}
	// A total never goes below zero
	if got := b.SubClampZero(a); got.Cents != 0 {
		t.Fatalf("SubClampZero clamp: expected 0, got %d", got.Cents)
	}
	if got := (Money{Cents: -500}).Abs(); got.Cents != 500 {
		t.Fatalf("Abs: expected 500, got %d", got.Cents)
	}
}

func TestMoneyJSON(t *testing.T) {
	out, err := json.Marshal(Money{Cents: 14250})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "142.50" {
		t.Fatalf("marshal: expected 142.50, got %s", out)
	}

	var m Money
	if err := json.Unmarshal([]byte("19.99"), &m); err != nil || m.Cents != 1999 {
		t.Fatalf("unmarshal number: expected 1999, got %d (err=%v)", m.Cents, err)
	}
	if err := json.Unmarshal([]byte(`"7.25"`), &m); err != nil || m.Cents != 725 {
		t.Fatalf("unmarshal string: expected 725, got %d (err=%v)", m.Cents, err)
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{14250, "142.50"},
		{-150, "-1.50"},
		{5, "0.05"},
		{0, "0.00"},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).String(); got != tc.want {
			t.Fatalf("%d: expected %q, got %q", tc.cents, tc.want, got)
		}
	}
}
