package holdem

import (
	"fmt"
	"sort"

	"github.com/cloutcards/pokerhouse/internal/cards"
)

// Winners returns the seat numbers sharing the best hand among holeBySeat
// given a completed 5-card board, grounded on the teacher's
// apps/cosmos/internal/holdem/eval.go Winners — adapted to this package's
// error-returning Evaluate7.
func Winners(board5 []cards.Card, holeBySeat map[int][2]cards.Card) ([]int, error) {
	if len(board5) != 5 {
		return nil, fmt.Errorf("holdem: Winners expected 5 board cards, got %d", len(board5))
	}
	if err := assertDistinct(board5, "board5"); err != nil {
		return nil, err
	}

	type entry struct {
		seat int
		hole [2]cards.Card
	}
	entries := make([]entry, 0, len(holeBySeat))
	for seat, hole := range holeBySeat {
		entries = append(entries, entry{seat: seat, hole: hole})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seat < entries[j].seat })

	var best *Rank
	bestSeats := []int{}
	for _, e := range entries {
		cards7 := []cards.Card{board5[0], board5[1], board5[2], board5[3], board5[4], e.hole[0], e.hole[1]}
		if err := assertDistinct(cards7, fmt.Sprintf("seat %d cards", e.seat)); err != nil {
			return nil, err
		}
		r, err := Evaluate7(cards7)
		if err != nil {
			return nil, err
		}
		if best == nil {
			tmp := r
			best = &tmp
			bestSeats = []int{e.seat}
			continue
		}
		switch Compare(r, *best) {
		case 1:
			tmp := r
			best = &tmp
			bestSeats = []int{e.seat}
		case 0:
			bestSeats = append(bestSeats, e.seat)
		}
	}
	return bestSeats, nil
}
