package httpapi

import (
	"math/big"
	"testing"
	"time"
)

func TestBigStringNilIsZero(t *testing.T) {
	if got := bigString(nil); got != "0" {
		t.Fatalf("got %q want \"0\"", got)
	}
	if got := bigString(big.NewInt(123456789012345)); got != "123456789012345" {
		t.Fatalf("got %q want the decimal string", got)
	}
}

func TestIsoMillisFormat(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 1, 2, 500_000_000, time.UTC)
	got := isoMillis(ts)
	want := "2026-07-30T12:01:02.500Z"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestIsoMillisPtrNil(t *testing.T) {
	if isoMillisPtr(nil) != nil {
		t.Fatalf("expected nil pointer to render as nil")
	}
	ts := time.Now()
	got := isoMillisPtr(&ts)
	if got == nil || *got != isoMillis(ts) {
		t.Fatalf("expected non-nil pointer to render same as isoMillis")
	}
}

func TestHexBytes(t *testing.T) {
	got := hexBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	want := "0xdeadbeef"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := hexBytes(nil); got != "0x" {
		t.Fatalf("got %q want \"0x\" for empty input", got)
	}
}

func TestParseBigStringRejectsGarbage(t *testing.T) {
	if _, err := parseBigString("not-a-number"); err == nil {
		t.Fatalf("expected an error for a non-numeric string")
	}
	v, err := parseBigString("42")
	if err != nil {
		t.Fatalf("parseBigString: %v", err)
	}
	if v.Int64() != 42 {
		t.Fatalf("got %v want 42", v)
	}
}
