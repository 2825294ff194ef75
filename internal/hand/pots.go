package hand

import "sort"

type potTier struct {
	amount   uint64
	eligible []int
}

// computeSidePots ports the teacher's tiered side-pot algorithm
// (apps/chain/internal/app/poker.go computeSidePots) from fixed 9-seat
// arrays to seat-keyed maps: repeatedly skim the smallest remaining
// commitment off every seat still holding chips in the pot, merging
// consecutive tiers that end up with the same eligible set.
func computeSidePots(totalCommit map[int]uint64, eligibleForWin map[int]bool) []potTier {
	type rem struct {
		seat     int
		amount   uint64
		eligible bool
	}
	seats := make([]int, 0, len(totalCommit))
	for seat := range totalCommit {
		seats = append(seats, seat)
	}
	sort.Ints(seats)

	remaining := make([]rem, 0, len(seats))
	for _, seat := range seats {
		amt := totalCommit[seat]
		if amt == 0 {
			continue
		}
		remaining = append(remaining, rem{seat: seat, amount: amt, eligible: eligibleForWin[seat]})
	}

	var tiers []potTier
	for len(remaining) > 0 {
		min := remaining[0].amount
		for _, r := range remaining[1:] {
			if r.amount < min {
				min = r.amount
			}
		}

		potAmount := min * uint64(len(remaining))
		eligibleSeats := make([]int, 0, len(remaining))
		for _, r := range remaining {
			if r.eligible {
				eligibleSeats = append(eligibleSeats, r.seat)
			}
		}
		sort.Ints(eligibleSeats)
		tiers = append(tiers, potTier{amount: potAmount, eligible: eligibleSeats})

		next := remaining[:0]
		for _, r := range remaining {
			r.amount -= min
			if r.amount > 0 {
				next = append(next, r)
			}
		}
		remaining = next
	}

	merged := make([]potTier, 0, len(tiers))
	for _, p := range tiers {
		if len(merged) > 0 && sameSeats(merged[len(merged)-1].eligible, p.eligible) {
			merged[len(merged)-1].amount += p.amount
			continue
		}
		merged = append(merged, potTier{amount: p.amount, eligible: append([]int(nil), p.eligible...)})
	}
	return merged
}

func sameSeats(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
