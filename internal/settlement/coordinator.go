package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/ledger"
	"github.com/park285/cheese-arena/internal/money"
	"github.com/park285/cheese-arena/internal/obslog"
)

// Ineligibility reasons.
const (
	ReasonBanned              = "banned"
	ReasonFrozen              = "frozen"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonUnknownAccount      = "unknown_account"
)

var ErrIneligible = errors.New("settlement: participant not eligible")

// IneligibleError names the participant that failed verification and why.
type IneligibleError struct {
	Account string
	Reason  string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("settlement: %s not eligible: %s", e.Account, e.Reason)
}

func (e *IneligibleError) Is(target error) bool { return target == ErrIneligible }

// Coordinator performs pairing, settlement and forfeiture against a ledger.
type Coordinator struct {
	ledger  ledger.Ledger
	feeRate decimal.Decimal
	now     func() time.Time
}

type Option func(*Coordinator)

// WithNow overrides the timestamp source for game rows and records.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(l ledger.Ledger, feeRate decimal.Decimal, opts ...Option) *Coordinator {
	c := &Coordinator{ledger: l, feeRate: feeRate, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) FeeRate() decimal.Decimal { return c.feeRate }

// CheckEligible verifies, without mutating anything, that account may enter a contest
// with the given fee.
func (c *Coordinator) CheckEligible(ctx context.Context, account string, fee money.Amount) error {
	return c.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		return verify(ctx, tx, account, fee)
	})
}

func verify(ctx context.Context, tx ledger.Tx, account string, fee money.Amount) error {
	elig, err := tx.Eligibility(ctx, account)
	if errors.Is(err, ledger.ErrUnknownAccount) {
		return &IneligibleError{Account: account, Reason: ReasonUnknownAccount}
	}
	if err != nil {
		return err
	}
	switch {
	case elig.Banned:
		return &IneligibleError{Account: account, Reason: ReasonBanned}
	case elig.Frozen:
		return &IneligibleError{Account: account, Reason: ReasonFrozen}
	}
	bal, err := tx.Balance(ctx, account)
	if err != nil {
		return err
	}
	if bal < fee {
		return &IneligibleError{Account: account, Reason: ReasonInsufficientBalance}
	}
	return nil
}

// Opening describes a pairing about to become a contest.
type Opening struct {
	GameID   string
	Mode     string
	White    string
	Black    string
	EntryFee money.Amount
}

// Open re-verifies both participants, debits both entry fees, records the entries, writes
// the game row and holds the pot in escrow. Nothing is written if any step fails.
func (c *Coordinator) Open(ctx context.Context, o Opening) error {
	now := c.now()
	err := c.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		for _, acc := range [2]string{o.White, o.Black} {
			if err := verify(ctx, tx, acc, o.EntryFee); err != nil {
				return err
			}
		}
		for _, acc := range [2]string{o.White, o.Black} {
			if err := tx.Debit(ctx, acc, o.EntryFee); err != nil {
				if errors.Is(err, ledger.ErrInsufficientFunds) {
					return &IneligibleError{Account: acc, Reason: ReasonInsufficientBalance}
				}
				return err
			}
			if err := tx.RecordTransaction(ctx, ledger.Entry{
				Account:     acc,
				Kind:        ledger.KindGameEntry,
				Amount:      o.EntryFee.Neg(),
				GameID:      o.GameID,
				Description: "entry fee " + o.Mode,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}
		return tx.OpenGame(ctx, ledger.GameOpening{
			GameID:    o.GameID,
			Mode:      o.Mode,
			White:     o.White,
			Black:     o.Black,
			EntryFee:  o.EntryFee,
			Pot:       o.EntryFee * 2,
			StartedAt: now,
		})
	})
	if err != nil {
		return err
	}
	obslog.L().Info("settlement_open",
		zap.String("game_id", o.GameID),
		zap.String("mode", o.Mode),
		zap.String("white", o.White),
		zap.String("black", o.Black),
		zap.String("entry_fee", o.EntryFee.String()))
	return nil
}

// Forfeit marks a participant caught submitting an illegal move.
type Forfeit struct {
	Account string
	Reason  string
}

// Closing describes a finished contest.
type Closing struct {
	GameID   string
	White    string
	Black    string
	EntryFee money.Amount
	Result   Result
	Reason   string
	FinalFEN string
	MovesUCI []string
	PGN      string
	Forfeit  *Forfeit
}

// Settlement is what one Settle call moved.
type Settlement struct {
	Payouts
	Confiscated money.Amount
}

// Settle pays out the pot, credits the platform fee, updates counters and closes the game
// row and escrow. With a Forfeit it also seizes the offender's balance to the house, freezes
// the account and flags the game, all in the same atomic unit.
func (c *Coordinator) Settle(ctx context.Context, cl Closing) (Settlement, error) {
	out := Settlement{Payouts: Compute(cl.Result, cl.EntryFee, c.feeRate)}
	now := c.now()

	err := c.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		out.Confiscated = 0
		if f := cl.Forfeit; f != nil {
			seized, err := confiscate(ctx, tx, f, cl.GameID, now)
			if err != nil {
				return err
			}
			out.Confiscated = seized
		}

		sides := [2]struct {
			account string
			white   bool
		}{{cl.White, true}, {cl.Black, false}}
		for _, s := range sides {
			payout := out.For(s.white)
			if payout > 0 {
				if err := tx.Credit(ctx, s.account, payout); err != nil {
					return err
				}
			}
			kind, outcome := classify(cl.Result, s.white)
			if err := tx.RecordTransaction(ctx, ledger.Entry{
				Account:     s.account,
				Kind:        kind,
				Amount:      payout,
				GameID:      cl.GameID,
				Description: cl.Reason,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
			earnings := payout - cl.EntryFee
			if earnings < 0 {
				earnings = 0
			}
			if err := tx.RecordResult(ctx, s.account, outcome, earnings); err != nil {
				return err
			}
		}

		if out.PlatformFee > 0 {
			if err := tx.CreditHouse(ctx, out.PlatformFee); err != nil {
				return err
			}
		}

		return tx.CloseGame(ctx, ledger.GameClosing{
			GameID:      cl.GameID,
			Result:      string(cl.Result),
			Reason:      cl.Reason,
			WhitePayout: out.White,
			BlackPayout: out.Black,
			PlatformFee: out.PlatformFee,
			FinalFEN:    cl.FinalFEN,
			MovesUCI:    cl.MovesUCI,
			PGN:         cl.PGN,
			EndedAt:     now,
			Refunded:    cl.Result == ResultDraw,
		})
	})
	if err != nil {
		return Settlement{}, err
	}

	obslog.L().Info("settlement_close",
		zap.String("game_id", cl.GameID),
		zap.String("result", string(cl.Result)),
		zap.String("reason", cl.Reason),
		zap.String("white_payout", out.White.String()),
		zap.String("black_payout", out.Black.String()),
		zap.String("platform_fee", out.PlatformFee.String()),
		zap.String("confiscated", out.Confiscated.String()))
	return out, nil
}

func confiscate(ctx context.Context, tx ledger.Tx, f *Forfeit, gameID string, now time.Time) (money.Amount, error) {
	bal, err := tx.Balance(ctx, f.Account)
	if err != nil {
		return 0, err
	}
	if bal > 0 {
		if err := tx.Debit(ctx, f.Account, bal); err != nil {
			return 0, err
		}
		if err := tx.CreditHouse(ctx, bal); err != nil {
			return 0, err
		}
		if err := tx.RecordTransaction(ctx, ledger.Entry{
			Account:     f.Account,
			Kind:        ledger.KindCheatForfeit,
			Amount:      bal.Neg(),
			GameID:      gameID,
			Description: f.Reason,
			CreatedAt:   now,
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.Freeze(ctx, f.Account); err != nil {
		return 0, err
	}
	if err := tx.FlagGame(ctx, gameID, f.Reason); err != nil {
		return 0, err
	}
	return bal, nil
}

func classify(r Result, white bool) (ledger.Kind, ledger.Outcome) {
	switch {
	case r == ResultDraw:
		return ledger.KindGameDraw, ledger.OutcomeDraw
	case (r == ResultWhite) == white:
		return ledger.KindGameWin, ledger.OutcomeWin
	default:
		return ledger.KindGameLoss, ledger.OutcomeLoss
	}
}
