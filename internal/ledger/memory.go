package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/money"
)

// Account is the in-memory account row.
type Account struct {
	ID            string
	Balance       money.Amount
	Banned        bool
	Frozen        bool
	GamesPlayed   int
	GamesWon      int
	GamesLost     int
	GamesDrawn    int
	TotalEarnings money.Amount
}

// GameRow mirrors the persisted game record.
type GameRow struct {
	GameOpening
	Status      string
	Result      string
	Reason      string
	WhitePayout money.Amount
	BlackPayout money.Amount
	PlatformFee money.Amount
	FinalFEN    string
	MovesUCI    []string
	PGN         string
	Flagged     bool
	FlagReason  string
	EndedAt     time.Time
}

// Escrow is the pot held for one game.
type Escrow struct {
	GameID string
	Amount money.Amount
	Status string
}

type memState struct {
	accounts map[string]Account
	games    map[string]GameRow
	escrow   map[string]Escrow
	entries  []Entry
	house    money.Amount
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts: make(map[string]Account, len(s.accounts)),
		games:    make(map[string]GameRow, len(s.games)),
		escrow:   make(map[string]Escrow, len(s.escrow)),
		entries:  append([]Entry(nil), s.entries...),
		house:    s.house,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.games {
		v.MovesUCI = append([]string(nil), v.MovesUCI...)
		c.games[k] = v
	}
	for k, v := range s.escrow {
		c.escrow[k] = v
	}
	return c
}

// Memory is a development ledger used when no database is configured. Atomic units are
// serialized and run against a copy that replaces the live state only on success.
type Memory struct {
	mu  sync.Mutex
	st  *memState
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		st: &memState{
			accounts: make(map[string]Account),
			games:    make(map[string]GameRow),
			escrow:   make(map[string]Escrow),
		},
		now: time.Now,
	}
}

func (m *Memory) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.st.clone()
	if err := fn(&memTx{st: work, now: m.now}); err != nil {
		return err
	}
	m.st = work
	return nil
}

// Deposit credits an account, creating it if needed, and records a deposit entry.
func (m *Memory) Deposit(account string, amount money.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strings.TrimSpace(account)
	acc := m.st.accounts[id]
	acc.ID = id
	acc.Balance += amount
	m.st.accounts[id] = acc
	m.st.entries = append(m.st.entries, Entry{
		ID: uuid.NewString(), Account: id, Kind: KindDeposit, Amount: amount, CreatedAt: m.now(),
	})
}

func (m *Memory) SetBanned(account string, banned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.st.accounts[account]
	if !ok {
		acc.ID = account
	}
	acc.Banned = banned
	m.st.accounts[account] = acc
}

func (m *Memory) Account(id string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.st.accounts[id]
	return a, ok
}

func (m *Memory) Game(id string) (GameRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.st.games[id]
	return g, ok
}

func (m *Memory) Escrow(gameID string) (Escrow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.st.escrow[gameID]
	return e, ok
}

// Entries returns the account's transaction records, oldest first. An empty account
// returns every record.
func (m *Memory) Entries(account string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.st.entries {
		if account == "" || e.Account == account {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) House() money.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.house
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) account(id string) (Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return a, nil
}

func (t *memTx) Balance(_ context.Context, account string) (money.Amount, error) {
	a, err := t.account(account)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (t *memTx) Eligibility(_ context.Context, account string) (Eligibility, error) {
	a, err := t.account(account)
	if err != nil {
		return Eligibility{}, err
	}
	return Eligibility{Banned: a.Banned, Frozen: a.Frozen}, nil
}

func (t *memTx) Debit(_ context.Context, account string, amount money.Amount) error {
	a, err := t.account(account)
	if err != nil {
		return err
	}
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	a.Balance -= amount
	t.st.accounts[account] = a
	return nil
}

func (t *memTx) Credit(_ context.Context, account string, amount money.Amount) error {
	a, err := t.account(account)
	if err != nil {
		return err
	}
	a.Balance += amount
	t.st.accounts[account] = a
	return nil
}

func (t *memTx) RecordTransaction(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	t.st.entries = append(t.st.entries, e)
	return nil
}

func (t *memTx) Freeze(_ context.Context, account string) error {
	a, err := t.account(account)
	if err != nil {
		return err
	}
	a.Frozen = true
	t.st.accounts[account] = a
	return nil
}

func (t *memTx) CreditHouse(_ context.Context, amount money.Amount) error {
	t.st.house += amount
	return nil
}

func (t *memTx) OpenGame(_ context.Context, g GameOpening) error {
	if _, dup := t.st.games[g.GameID]; dup {
		return ErrDuplicateGame
	}
	t.st.games[g.GameID] = GameRow{GameOpening: g, Status: GamePlaying}
	t.st.escrow[g.GameID] = Escrow{GameID: g.GameID, Amount: g.Pot, Status: EscrowHeld}
	return nil
}

func (t *memTx) CloseGame(_ context.Context, c GameClosing) error {
	row, ok := t.st.games[c.GameID]
	if !ok {
		return ErrUnknownGame
	}
	if row.Status == GameFinished {
		return ErrGameClosed
	}
	row.Status = GameFinished
	row.Result = c.Result
	row.Reason = c.Reason
	row.WhitePayout = c.WhitePayout
	row.BlackPayout = c.BlackPayout
	row.PlatformFee = c.PlatformFee
	row.FinalFEN = c.FinalFEN
	row.MovesUCI = append([]string(nil), c.MovesUCI...)
	row.PGN = c.PGN
	row.EndedAt = c.EndedAt
	t.st.games[c.GameID] = row

	esc := t.st.escrow[c.GameID]
	esc.Status = EscrowReleased
	if c.Refunded {
		esc.Status = EscrowRefunded
	}
	t.st.escrow[c.GameID] = esc
	return nil
}

func (t *memTx) FlagGame(_ context.Context, gameID, reason string) error {
	row, ok := t.st.games[gameID]
	if !ok {
		return ErrUnknownGame
	}
	row.Flagged = true
	row.FlagReason = reason
	t.st.games[gameID] = row
	return nil
}

func (t *memTx) RecordResult(_ context.Context, account string, outcome Outcome, earnings money.Amount) error {
	a, err := t.account(account)
	if err != nil {
		return err
	}
	a.GamesPlayed++
	switch outcome {
	case OutcomeWin:
		a.GamesWon++
	case OutcomeLoss:
		a.GamesLost++
	case OutcomeDraw:
		a.GamesDrawn++
	}
	a.TotalEarnings += earnings
	t.st.accounts[account] = a
	return nil
}
