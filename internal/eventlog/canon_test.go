package eventlog

import (
	"math/big"
	"testing"
	"time"
)

func TestCanonicalizeIsByteStable(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 500_000_000, time.UTC)
	m := M{
		"zebra":      "z",
		"amountGwei": big.NewInt(123456789),
		"blockTimestamp": ts,
		"nested": M{
			"b": 2,
			"a": 1,
		},
	}
	a, err := Canonicalize(m)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	b, err := Canonicalize(m)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic output, got %q vs %q", a, b)
	}
	want := `{"amountGwei":"123456789","blockTimestamp":"2026-07-30T12:00:00.500Z","nested":{"a":1,"b":2},"zebra":"z"}`
	if a != want {
		t.Fatalf("got %q want %q", a, want)
	}
}

func TestCanonicalizeRejectsFloat(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on float value")
		}
	}()
	_, _ = Canonicalize(M{"x": 1.5})
}
