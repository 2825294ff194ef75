package holdem

import (
	"testing"

	"github.com/cloutcards/pokerhouse/internal/cards"
)

func must(t *testing.T, s string) cards.Card {
	t.Helper()
	c, err := cards.ParseCard(s)
	if err != nil {
		t.Fatalf("ParseCard(%q): %v", s, err)
	}
	return c
}

func handOf(t *testing.T, ss ...string) []cards.Card {
	out := make([]cards.Card, len(ss))
	for i, s := range ss {
		out[i] = must(t, s)
	}
	return out
}

func TestEvaluate7RoyalFlush(t *testing.T) {
	r, err := Evaluate7(handOf(t, "Ah", "Kh", "Qh", "Jh", "Th", "2c", "3d"))
	if err != nil {
		t.Fatalf("Evaluate7: %v", err)
	}
	if r.Category != RoyalFlush {
		t.Fatalf("expected RoyalFlush, got %v", r.Category)
	}
}

func TestEvaluate7WheelStraight(t *testing.T) {
	r, err := Evaluate7(handOf(t, "Ah", "2d", "3c", "4s", "5h", "9c", "9d"))
	if err != nil {
		t.Fatalf("Evaluate7: %v", err)
	}
	if r.Category != Straight {
		t.Fatalf("expected Straight (wheel), got %v", r.Category)
	}
	if r.Tiebreakers[0] != 5 {
		t.Fatalf("expected wheel high card 5, got %d", r.Tiebreakers[0])
	}
}

func TestCompareTwoPairVsTrips(t *testing.T) {
	twoPair, err := Evaluate7(handOf(t, "Ah", "Ad", "Kc", "Ks", "2h", "3d", "4c"))
	if err != nil {
		t.Fatal(err)
	}
	trips, err := Evaluate7(handOf(t, "2h", "2d", "2c", "Ks", "Qh", "3d", "4c"))
	if err != nil {
		t.Fatal(err)
	}
	if Compare(trips, twoPair) != 1 {
		t.Fatalf("expected trips to beat two pair")
	}
}

func TestCompareKickerBreaksTie(t *testing.T) {
	a, err := Evaluate7(handOf(t, "Ah", "Ad", "Kc", "Qs", "2h", "3d", "9c"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Evaluate7(handOf(t, "Ac", "As", "Kd", "Js", "2c", "3s", "9d"))
	if err != nil {
		t.Fatal(err)
	}
	if Compare(a, b) != 1 {
		t.Fatalf("expected Q kicker to beat J kicker")
	}
}

func TestEvaluate7RejectsDuplicateCards(t *testing.T) {
	_, err := Evaluate7(handOf(t, "Ah", "Ah", "Kc", "Qs", "2h", "3d", "9c"))
	if err == nil {
		t.Fatalf("expected duplicate-card error")
	}
}
