// Package ledger is the durable money store behind the arena: account balances, the house
// account, transaction records, game rows and escrow. Every mutation happens inside one
// atomic unit opened with Ledger.Atomic.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-arena/internal/money"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrUnknownAccount    = errors.New("ledger: unknown account")
	ErrUnknownGame       = errors.New("ledger: unknown game")
	ErrGameClosed        = errors.New("ledger: game already closed")
	ErrDuplicateGame     = errors.New("ledger: duplicate game")
)

// Kind classifies a transaction record.
type Kind string

const (
	KindDeposit      Kind = "deposit"
	KindWithdrawal   Kind = "withdrawal"
	KindGameEntry    Kind = "game_entry"
	KindGameWin      Kind = "game_win"
	KindGameLoss     Kind = "game_loss"
	KindGameDraw     Kind = "game_draw"
	KindCheatForfeit Kind = "cheat_forfeit"
)

// Outcome is a participant's result for the win/loss/draw counters.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Escrow states.
const (
	EscrowHeld     = "held"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

// Game row states.
const (
	GamePlaying  = "playing"
	GameFinished = "finished"
)

// Eligibility flags that bar an account from entering a contest.
type Eligibility struct {
	Banned bool
	Frozen bool
}

func (e Eligibility) Allowed() bool { return !e.Banned && !e.Frozen }

// Entry is one transaction record. Amount is signed from the account's point of view.
type Entry struct {
	ID          string       `json:"id"`
	Account     string       `json:"account"`
	Kind        Kind         `json:"kind"`
	Amount      money.Amount `json:"amount"`
	GameID      string       `json:"game_id,omitempty"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// GameOpening is the game row written at pairing time. Escrow holds Pot.
type GameOpening struct {
	GameID    string
	Mode      string
	White     string
	Black     string
	EntryFee  money.Amount
	Pot       money.Amount
	StartedAt time.Time
}

// GameClosing finishes a game row and settles its escrow.
type GameClosing struct {
	GameID      string
	Result      string // "white", "black" or "draw"
	Reason      string
	WhitePayout money.Amount
	BlackPayout money.Amount
	PlatformFee money.Amount
	FinalFEN    string
	MovesUCI    []string
	PGN         string
	EndedAt     time.Time
	Refunded    bool
}

// Tx is the set of operations available inside one atomic unit.
type Tx interface {
	Balance(ctx context.Context, account string) (money.Amount, error)
	Eligibility(ctx context.Context, account string) (Eligibility, error)
	Debit(ctx context.Context, account string, amount money.Amount) error
	Credit(ctx context.Context, account string, amount money.Amount) error
	RecordTransaction(ctx context.Context, e Entry) error
	Freeze(ctx context.Context, account string) error
	CreditHouse(ctx context.Context, amount money.Amount) error
	OpenGame(ctx context.Context, g GameOpening) error
	CloseGame(ctx context.Context, g GameClosing) error
	FlagGame(ctx context.Context, gameID, reason string) error
	RecordResult(ctx context.Context, account string, outcome Outcome, earnings money.Amount) error
}

// Ledger runs fn as one atomic unit: either every mutation fn made is committed or none is.
type Ledger interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}
