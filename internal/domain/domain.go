// Package domain holds the entity shapes shared across the poker backend's
// components (§3 of the specification). It has no behavior of its own —
// each owning package (eventlog, escrow, table, hand) mutates these through
// its own transactional operations.
package domain

import (
	"math/big"
	"time"
)

type EventKind string

const (
	KindDeposit             EventKind = "deposit"
	KindWithdrawalRequest   EventKind = "withdrawal_request"
	KindWithdrawalExecuted  EventKind = "withdrawal_executed"
	KindCreateTable         EventKind = "create_table"
	KindTableActivated      EventKind = "table_activated"
	KindTableDeactivated    EventKind = "table_deactivated"
	KindJoinTable           EventKind = "join_table"
	KindLeaveTable          EventKind = "leave_table"
	KindHandStart           EventKind = "hand_start"
	KindCommunityCards      EventKind = "community_cards"
	KindBet                EventKind = "bet"
	KindHandEnd             EventKind = "hand_end"
	KindLeaderboardReset    EventKind = "leaderboard_reset"
)

// Event is one append-only row of the signed event log (component A).
type Event struct {
	EventID     int64
	BlockTs     time.Time
	Kind        EventKind
	PayloadJSON string
	Digest      [32]byte
	SigR        [32]byte
	SigS        [32]byte
	SigV        uint8
	Nonce       *big.Int
	Player      *string
	TableID     *int64
	TeeVersion  int
	TeePubkey   string
	IngestedAt  time.Time
}

// EscrowBalance is keyed by normalized (lower-case) wallet (component B).
type EscrowBalance struct {
	Wallet                    string
	BalanceGwei               *big.Int
	NextWithdrawalNonce       *big.Int
	WithdrawalSignatureExpiry *time.Time
}

func (b *EscrowBalance) PendingWithdrawal(now time.Time) bool {
	return b.WithdrawalSignatureExpiry != nil && b.WithdrawalSignatureExpiry.After(now)
}

// PokerTable is a table's static configuration (component E).
type PokerTable struct {
	ID                   int64
	Name                 string
	MinimumBuyIn         *big.Int
	MaximumBuyIn         *big.Int
	SmallBlind           *big.Int
	BigBlind             *big.Int
	PerHandRakeBps       int
	MaxSeatCount         int
	IsActive             bool
	ActionTimeoutSeconds int
	HandStartDelaySeconds int
}

// TableSeatSession is a wallet's active (or historical) occupancy of a seat.
type TableSeatSession struct {
	ID              int64
	TableID         int64
	WalletAddress   string
	SeatNumber      int
	TableBalanceGwei *big.Int
	TwitterHandle   *string
	TwitterAvatarURL *string
	JoinedAt        time.Time
	LeftAt          *time.Time
	IsActive        bool
}

type HandStatus string

const (
	HandShuffling HandStatus = "SHUFFLING"
	HandPreFlop   HandStatus = "PRE_FLOP"
	HandFlop      HandStatus = "FLOP"
	HandTurn      HandStatus = "TURN"
	HandRiver     HandStatus = "RIVER"
	HandCompleted HandStatus = "COMPLETED"
)

type Round string

const (
	RoundPreFlop Round = "PRE_FLOP"
	RoundFlop    Round = "FLOP"
	RoundTurn    Round = "TURN"
	RoundRiver   Round = "RIVER"
)

// Hand is the live (or just-completed) state machine row (component F).
type Hand struct {
	ID                int64
	TableID           int64
	Status            HandStatus
	Round             *Round
	DealerPosition    int
	SmallBlindSeat    int
	BigBlindSeat      int
	CurrentActionSeat *int
	CurrentBet        uint64
	MinRaiseSize      uint64
	IntervalID        int
	Deck              []uint8 // card ids 0..51, ordered
	DeckPosition      int
	CommunityCards    []uint8
	ShuffleSeedHash   [32]byte
	ShuffleSeed       *string // revealed only at COMPLETED
	DeckNonce         *string // revealed only at COMPLETED
	ActionTimeoutAt   *time.Time
	StartedAt         time.Time
	CompletedAt       *time.Time
}

type PlayerStatus string

const (
	PlayerActive PlayerStatus = "ACTIVE"
	PlayerFolded PlayerStatus = "FOLDED"
	PlayerAllIn  PlayerStatus = "ALL_IN"
)

type HandPlayer struct {
	HandID          int64
	SeatNumber      int
	WalletAddress   string
	Status          PlayerStatus
	StreetCommitted uint64 // committed on the current round only
	TotalCommitted  uint64 // committed across the whole hand, drives side pots
	ActedInInterval int    // IntervalID this seat last acted in, -1 if not yet this round
	HoleCards       [2]uint8
}

type ActionType string

const (
	ActionPostBlind ActionType = "POST_BLIND"
	ActionFold      ActionType = "FOLD"
	ActionCheck     ActionType = "CHECK"
	ActionCall      ActionType = "CALL"
	ActionBet       ActionType = "BET"
	ActionRaise     ActionType = "RAISE"
	ActionAllIn     ActionType = "ALL_IN"
)

type HandAction struct {
	ID         int64
	HandID     int64
	SeatNumber int
	Round      Round
	Action     ActionType
	Amount     *uint64 // incremental gwei put in by this action; nil for FOLD/CHECK
	Timestamp  time.Time
}

type Pot struct {
	HandID              int64
	PotNumber           int
	Amount              uint64
	RakeAmount          uint64
	EligibleSeatNumbers []int
	WinnerSeatNumbers   []int
}
