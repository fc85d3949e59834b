package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/park285/cheese-arena/internal/money"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the production ledger. Each atomic unit is one database transaction and
// account rows are locked with FOR UPDATE before balances are read.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle.
func NewPostgresFromDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Migrate creates the ledger tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (p *Postgres) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Balance(ctx context.Context, account string) (money.Amount, error) {
	var bal decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM arena_accounts WHERE id = $1 FOR UPDATE`, account).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownAccount
	}
	if err != nil {
		return 0, err
	}
	return money.FromDecimal(bal), nil
}

func (t *pgTx) Eligibility(ctx context.Context, account string) (Eligibility, error) {
	var e Eligibility
	err := t.tx.QueryRowContext(ctx, `SELECT is_banned, is_frozen FROM arena_accounts WHERE id = $1`, account).Scan(&e.Banned, &e.Frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return Eligibility{}, ErrUnknownAccount
	}
	return e, err
}

func (t *pgTx) Debit(ctx context.Context, account string, amount money.Amount) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE arena_accounts SET balance = balance - $2, updated_at = now() WHERE id = $1 AND balance >= $2`,
		account, amount.Decimal())
	if err != nil {
		return err
	}
	return expectOne(res, ErrInsufficientFunds)
}

func (t *pgTx) Credit(ctx context.Context, account string, amount money.Amount) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE arena_accounts SET balance = balance + $2, updated_at = now() WHERE id = $1`,
		account, amount.Decimal())
	if err != nil {
		return err
	}
	return expectOne(res, ErrUnknownAccount)
}

func (t *pgTx) RecordTransaction(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO arena_transactions (id, account_id, kind, amount, game_id, description, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Account, string(e.Kind), e.Amount.Decimal(), nullString(e.GameID), e.Description, e.CreatedAt)
	return err
}

func (t *pgTx) Freeze(ctx context.Context, account string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE arena_accounts SET is_frozen = TRUE, updated_at = now() WHERE id = $1`, account)
	if err != nil {
		return err
	}
	return expectOne(res, ErrUnknownAccount)
}

func (t *pgTx) CreditHouse(ctx context.Context, amount money.Amount) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE arena_house SET balance = balance + $1 WHERE id = 1`, amount.Decimal())
	return err
}

func (t *pgTx) OpenGame(ctx context.Context, g GameOpening) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO arena_games (id, mode, white_id, black_id, entry_fee, pot, status, started_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		g.GameID, g.Mode, g.White, g.Black, g.EntryFee.Decimal(), g.Pot.Decimal(), GamePlaying, g.StartedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO arena_escrow (game_id, amount, status) VALUES ($1,$2,$3)`,
		g.GameID, g.Pot.Decimal(), EscrowHeld)
	if err != nil {
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

func (t *pgTx) CloseGame(ctx context.Context, c GameClosing) error {
	movesRaw, _ := json.Marshal(c.MovesUCI)
	res, err := t.tx.ExecContext(ctx,
		`UPDATE arena_games SET
		    status = $2, result = $3, reason = $4,
		    white_payout = $5, black_payout = $6, platform_fee = $7,
		    final_fen = $8, moves_uci = $9, pgn = $10, ended_at = $11
		 WHERE id = $1 AND status = $12`,
		c.GameID, GameFinished, c.Result, c.Reason,
		c.WhitePayout.Decimal(), c.BlackPayout.Decimal(), c.PlatformFee.Decimal(),
		c.FinalFEN, string(movesRaw), c.PGN, c.EndedAt, GamePlaying)
	if err != nil {
		return fmt.Errorf("close game: %w", err)
	}
	if err := expectOne(res, ErrGameClosed); err != nil {
		return err
	}
	status := EscrowReleased
	if c.Refunded {
		status = EscrowRefunded
	}
	res, err = t.tx.ExecContext(ctx,
		`UPDATE arena_escrow SET status = $2, updated_at = now() WHERE game_id = $1`, c.GameID, status)
	if err != nil {
		return fmt.Errorf("settle escrow: %w", err)
	}
	return expectOne(res, ErrUnknownGame)
}

func (t *pgTx) FlagGame(ctx context.Context, gameID, reason string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE arena_games SET flagged = TRUE, flag_reason = $2 WHERE id = $1`, gameID, reason)
	if err != nil {
		return err
	}
	return expectOne(res, ErrUnknownGame)
}

func (t *pgTx) RecordResult(ctx context.Context, account string, outcome Outcome, earnings money.Amount) error {
	var won, lost, drawn int
	switch outcome {
	case OutcomeWin:
		won = 1
	case OutcomeLoss:
		lost = 1
	case OutcomeDraw:
		drawn = 1
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE arena_accounts SET
		    games_played = games_played + 1,
		    games_won = games_won + $2,
		    games_lost = games_lost + $3,
		    games_drawn = games_drawn + $4,
		    total_earnings = total_earnings + $5,
		    updated_at = now()
		 WHERE id = $1`,
		account, won, lost, drawn, earnings.Decimal())
	if err != nil {
		return err
	}
	return expectOne(res, ErrUnknownAccount)
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}
