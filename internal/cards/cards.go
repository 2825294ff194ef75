// Package cards implements the 52-card deck and its deterministic,
// hash-committed shuffle (§4.6.1, §9 "Determinism"). Grounded on
// apps/cosmos/internal/cards/cards.go from the teacher; adapted to carry a
// commitment hash and a nonce so the seed can be withheld until the hand
// completes.
package cards

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Card is a 0..51 id: rank = (id % 13) + 2 (2..14), suit = id / 13 (0..3).
type Card uint8

func (c Card) Rank() uint8 { return uint8(c%13) + 2 }
func (c Card) Suit() uint8 { return uint8(c / 13) }

func (c Card) String() string {
	r := c.Rank()
	var rch byte
	switch r {
	case 14:
		rch = 'A'
	case 13:
		rch = 'K'
	case 12:
		rch = 'Q'
	case 11:
		rch = 'J'
	case 10:
		rch = 'T'
	default:
		rch = byte('0' + r)
	}
	var sch byte
	switch c.Suit() {
	case 0:
		sch = 'c'
	case 1:
		sch = 'd'
	case 2:
		sch = 'h'
	case 3:
		sch = 's'
	default:
		sch = '?'
	}
	return string([]byte{rch, sch})
}

// ShuffledDeck deterministically Fisher-Yates shuffles a standard 52-card
// deck driven by a sha256 stream seeded from seed||nonce. Reshuffling with
// the same (seed, nonce) always yields the same order, which is what lets
// a verifier reproduce the revealed deck from the revealed seed (§4.6.5).
func ShuffledDeck(seed []byte, nonce []byte) []Card {
	deck := make([]Card, 52)
	for i := 0; i < 52; i++ {
		deck[i] = Card(i)
	}
	buf := make([]byte, len(seed)+len(nonce)+8)
	copy(buf, seed)
	copy(buf[len(seed):], nonce)
	var counter uint64
	for i := 51; i > 0; i-- {
		binary.LittleEndian.PutUint64(buf[len(seed)+len(nonce):], counter)
		h := sha256.Sum256(buf)
		counter++
		j := int(binary.LittleEndian.Uint64(h[:8]) % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// CommitmentHash is the pre-hand-start commitment persisted as
// Hand.shuffleSeedHash: a hash of the stringified shuffled deck, not of the
// seed itself, so the commitment is checkable directly against the
// revealed deck without needing the seed (§4.6.1).
func CommitmentHash(deck []Card) [32]byte {
	s := DeckString(deck)
	return sha256.Sum256([]byte(s))
}

// DeckString renders a deck as its canonical two-character-per-card
// concatenation, e.g. "AcKdTh...".
func DeckString(deck []Card) string {
	b := make([]byte, 0, len(deck)*2)
	for _, c := range deck {
		b = append(b, []byte(c.String())...)
	}
	return string(b)
}

// HexCommitment renders a commitment hash as a 0x-prefixed lower-case hex
// string for event payloads (§6 serialization rules).
func HexCommitment(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func FromIDs(ids []uint8) []Card {
	out := make([]Card, len(ids))
	for i, id := range ids {
		out[i] = Card(id)
	}
	return out
}

func ToIDs(cards []Card) []uint8 {
	out := make([]uint8, len(cards))
	for i, c := range cards {
		out[i] = uint8(c)
	}
	return out
}

func ParseCard(s string) (Card, error) {
	for i := 0; i < 52; i++ {
		if Card(i).String() == s {
			return Card(i), nil
		}
	}
	return 0, fmt.Errorf("cards: invalid card string %q", s)
}
