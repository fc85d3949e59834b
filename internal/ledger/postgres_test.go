package ledger

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/money"
)

func newMockLedger(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresFromDB(db), mock
}

func TestPostgresPairingUnitCommits(t *testing.T) {
	p, mock := newMockLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT is_banned, is_frozen FROM arena_accounts`)).
		WithArgs("w").
		WillReturnRows(sqlmock.NewRows([]string{"is_banned", "is_frozen"}).AddRow(false, false))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT balance FROM arena_accounts WHERE id = $1 FOR UPDATE`)).
		WithArgs("w").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("12.50"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE arena_accounts SET balance = balance - $2`)).
		WithArgs("w", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO arena_transactions`)).
		WithArgs(sqlmock.AnyArg(), "w", "game_entry", sqlmock.AnyArg(), sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO arena_games`)).
		WithArgs("g1", "blitz-3", "w", "b", sqlmock.AnyArg(), sqlmock.AnyArg(), GamePlaying, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO arena_escrow`)).
		WithArgs("g1", sqlmock.AnyArg(), EscrowHeld).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen money.Amount
	err := p.Atomic(ctx, func(tx Tx) error {
		e, err := tx.Eligibility(ctx, "w")
		if err != nil || !e.Allowed() {
			return err
		}
		if seen, err = tx.Balance(ctx, "w"); err != nil {
			return err
		}
		fee := money.MustParse("5")
		if err := tx.Debit(ctx, "w", fee); err != nil {
			return err
		}
		if err := tx.RecordTransaction(ctx, Entry{Account: "w", Kind: KindGameEntry, Amount: fee.Neg(), GameID: "g1"}); err != nil {
			return err
		}
		return tx.OpenGame(ctx, GameOpening{GameID: "g1", Mode: "blitz-3", White: "w", Black: "b",
			EntryFee: fee, Pot: fee * 2, StartedAt: time.Now()})
	})
	require.NoError(t, err)
	require.Equal(t, money.MustParse("12.50"), seen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDebitShortfallRollsBack(t *testing.T) {
	p, mock := newMockLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE arena_accounts SET balance = balance - $2`)).
		WithArgs("w", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := p.Atomic(ctx, func(tx Tx) error {
		return tx.Debit(ctx, "w", money.MustParse("5"))
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCloseGameTwiceIsRejected(t *testing.T) {
	p, mock := newMockLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE arena_games SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := p.Atomic(ctx, func(tx Tx) error {
		return tx.CloseGame(ctx, GameClosing{GameID: "g1", Result: "draw", Refunded: true})
	})
	require.ErrorIs(t, err, ErrGameClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCloseGameSettlesEscrow(t *testing.T) {
	p, mock := newMockLedger(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE arena_games SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE arena_escrow SET status = $2`)).
		WithArgs("g1", EscrowRefunded).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE arena_house SET balance = balance + $1`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.Atomic(ctx, func(tx Tx) error {
		if err := tx.CloseGame(ctx, GameClosing{GameID: "g1", Result: "draw", Refunded: true, MovesUCI: []string{"e2e4"}}); err != nil {
			return err
		}
		return tx.CreditHouse(ctx, 0)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
