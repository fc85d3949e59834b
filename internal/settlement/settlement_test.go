package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/ledger"
	"github.com/park285/cheese-arena/internal/money"
)

var tenPercent = decimal.RequireFromString("0.1")

func TestComputeDecisive(t *testing.T) {
	p := Compute(ResultWhite, money.MustParse("5"), tenPercent)
	require.Equal(t, money.MustParse("10.00"), p.Pot)
	require.Equal(t, money.MustParse("1.00"), p.PlatformFee)
	require.Equal(t, money.MustParse("9.00"), p.White)
	require.Equal(t, money.Amount(0), p.Black)
	require.Equal(t, p.Pot, p.White+p.Black+p.PlatformFee)

	p = Compute(ResultBlack, money.MustParse("3"), tenPercent)
	require.Equal(t, money.MustParse("5.40"), p.Black)
	require.Equal(t, money.MustParse("0.60"), p.PlatformFee)
}

func TestComputeDrawRefunds(t *testing.T) {
	p := Compute(ResultDraw, money.MustParse("10"), tenPercent)
	require.Equal(t, money.MustParse("10"), p.White)
	require.Equal(t, money.MustParse("10"), p.Black)
	require.Zero(t, p.PlatformFee)
}

func TestComputeConservesPotForOddAmounts(t *testing.T) {
	for _, fee := range []money.Amount{1, 3, 7, 15, 333, 1005} {
		for _, r := range []Result{ResultWhite, ResultBlack, ResultDraw} {
			p := Compute(r, fee, decimal.RequireFromString("0.075"))
			require.Equal(t, p.Pot, p.White+p.Black+p.PlatformFee, "fee=%d result=%s", fee, r)
		}
	}
}

func newLedger(balances map[string]string) *ledger.Memory {
	m := ledger.NewMemory()
	for id, bal := range balances {
		m.Deposit(id, money.MustParse(bal))
	}
	return m
}

func TestOpenDebitsBothAndHoldsEscrow(t *testing.T) {
	l := newLedger(map[string]string{"w": "20", "b": "5"})
	c := NewCoordinator(l, tenPercent)
	err := c.Open(context.Background(), Opening{GameID: "g1", Mode: "blitz-3", White: "w", Black: "b", EntryFee: money.MustParse("5")})
	require.NoError(t, err)

	w, _ := l.Account("w")
	b, _ := l.Account("b")
	require.Equal(t, money.MustParse("15"), w.Balance)
	require.Equal(t, money.Amount(0), b.Balance)
	esc, ok := l.Escrow("g1")
	require.True(t, ok)
	require.Equal(t, money.MustParse("10"), esc.Amount)
	require.Equal(t, ledger.EscrowHeld, esc.Status)
	entries := l.Entries("b")
	require.Equal(t, ledger.KindGameEntry, entries[len(entries)-1].Kind)
	require.Equal(t, money.MustParse("-5"), entries[len(entries)-1].Amount)
}

func TestOpenIsAllOrNothing(t *testing.T) {
	l := newLedger(map[string]string{"w": "20", "b": "4.99"})
	c := NewCoordinator(l, tenPercent)
	err := c.Open(context.Background(), Opening{GameID: "g1", Mode: "blitz-3", White: "w", Black: "b", EntryFee: money.MustParse("5")})

	var inel *IneligibleError
	require.True(t, errors.As(err, &inel))
	require.Equal(t, "b", inel.Account)
	require.Equal(t, ReasonInsufficientBalance, inel.Reason)
	require.ErrorIs(t, err, ErrIneligible)

	w, _ := l.Account("w")
	require.Equal(t, money.MustParse("20"), w.Balance)
	_, ok := l.Game("g1")
	require.False(t, ok)
}

func TestCheckEligible(t *testing.T) {
	l := newLedger(map[string]string{"ok": "5", "poor": "1"})
	l.SetBanned("bad", true)
	c := NewCoordinator(l, tenPercent)
	ctx := context.Background()
	fee := money.MustParse("5")

	require.NoError(t, c.CheckEligible(ctx, "ok", fee))

	var inel *IneligibleError
	require.True(t, errors.As(c.CheckEligible(ctx, "poor", fee), &inel))
	require.Equal(t, ReasonInsufficientBalance, inel.Reason)
	require.True(t, errors.As(c.CheckEligible(ctx, "bad", fee), &inel))
	require.Equal(t, ReasonBanned, inel.Reason)
	require.True(t, errors.As(c.CheckEligible(ctx, "nobody", fee), &inel))
	require.Equal(t, ReasonUnknownAccount, inel.Reason)
}

func openGame(t *testing.T, l *ledger.Memory, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.Open(context.Background(), Opening{GameID: "g1", Mode: "blitz-3", White: "w", Black: "b", EntryFee: money.MustParse("5")}))
}

func TestSettleDecisive(t *testing.T) {
	l := newLedger(map[string]string{"w": "5", "b": "5"})
	c := NewCoordinator(l, tenPercent)
	openGame(t, l, c)

	s, err := c.Settle(context.Background(), Closing{GameID: "g1", White: "w", Black: "b",
		EntryFee: money.MustParse("5"), Result: ResultWhite, Reason: "checkmate", MovesUCI: []string{"e2e4"}})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("9"), s.White)

	w, _ := l.Account("w")
	b, _ := l.Account("b")
	require.Equal(t, money.MustParse("9"), w.Balance)
	require.Equal(t, money.Amount(0), b.Balance)
	require.Equal(t, money.MustParse("1"), l.House())
	require.Equal(t, 1, w.GamesWon)
	require.Equal(t, 1, b.GamesLost)
	require.Equal(t, money.MustParse("4"), w.TotalEarnings)
	require.Zero(t, b.TotalEarnings)

	esc, _ := l.Escrow("g1")
	require.Equal(t, ledger.EscrowReleased, esc.Status)
	row, _ := l.Game("g1")
	require.Equal(t, ledger.GameFinished, row.Status)
	require.Equal(t, "checkmate", row.Reason)

	// Conservation: deposits == balances + house.
	require.Equal(t, money.MustParse("10"), w.Balance+b.Balance+l.House())
}

func TestSettleDrawRefundsAndMarksEscrow(t *testing.T) {
	l := newLedger(map[string]string{"w": "5", "b": "5"})
	c := NewCoordinator(l, tenPercent)
	openGame(t, l, c)

	_, err := c.Settle(context.Background(), Closing{GameID: "g1", White: "w", Black: "b",
		EntryFee: money.MustParse("5"), Result: ResultDraw, Reason: "stalemate"})
	require.NoError(t, err)
	w, _ := l.Account("w")
	b, _ := l.Account("b")
	require.Equal(t, money.MustParse("5"), w.Balance)
	require.Equal(t, money.MustParse("5"), b.Balance)
	require.Zero(t, l.House())
	require.Equal(t, 1, w.GamesDrawn)
	esc, _ := l.Escrow("g1")
	require.Equal(t, ledger.EscrowRefunded, esc.Status)
	last := l.Entries("w")
	require.Equal(t, ledger.KindGameDraw, last[len(last)-1].Kind)
}

func TestSettleWithForfeitConfiscatesOnce(t *testing.T) {
	l := newLedger(map[string]string{"w": "5", "b": "25"})
	c := NewCoordinator(l, tenPercent)
	openGame(t, l, c)

	s, err := c.Settle(context.Background(), Closing{GameID: "g1", White: "w", Black: "b",
		EntryFee: money.MustParse("5"), Result: ResultWhite, Reason: "cheat_detected",
		Forfeit: &Forfeit{Account: "b", Reason: "invalid move"}})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("20"), s.Confiscated)

	b, _ := l.Account("b")
	require.True(t, b.Frozen)
	require.Equal(t, money.Amount(0), b.Balance)
	require.Equal(t, money.MustParse("21"), l.House())
	row, _ := l.Game("g1")
	require.True(t, row.Flagged)
	require.Equal(t, "invalid move", row.FlagReason)

	var forfeits int
	for _, e := range l.Entries("b") {
		if e.Kind == ledger.KindCheatForfeit {
			forfeits++
			require.Equal(t, money.MustParse("-20"), e.Amount)
		}
	}
	require.Equal(t, 1, forfeits)

	_, err = c.Settle(context.Background(), Closing{GameID: "g1", White: "w", Black: "b",
		EntryFee: money.MustParse("5"), Result: ResultWhite, Forfeit: &Forfeit{Account: "b"}})
	require.ErrorIs(t, err, ledger.ErrGameClosed)
	require.Equal(t, money.MustParse("21"), l.House())
}

type failingLedger struct {
	ledger.Ledger
	err error
}

func (f failingLedger) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return f.Ledger.Atomic(ctx, func(tx ledger.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return f.err
	})
}

func TestSettleFailureLeavesEscrowHeld(t *testing.T) {
	l := newLedger(map[string]string{"w": "5", "b": "5"})
	openGame(t, l, NewCoordinator(l, tenPercent))

	boom := errors.New("disk on fire")
	c := NewCoordinator(failingLedger{Ledger: l, err: boom}, tenPercent)
	_, err := c.Settle(context.Background(), Closing{GameID: "g1", White: "w", Black: "b",
		EntryFee: money.MustParse("5"), Result: ResultBlack})
	require.ErrorIs(t, err, boom)

	esc, _ := l.Escrow("g1")
	require.Equal(t, ledger.EscrowHeld, esc.Status)
	b, _ := l.Account("b")
	require.Equal(t, money.Amount(0), b.Balance)
}
