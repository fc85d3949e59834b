// Package arena pairs participants into timed contests and runs them: match queues,
// sessions with clocks and disconnect grace, and the registry that routes transport
// events to the right session.
//
// Lock order: session.mu → registry.mu, and matchmaker mu → registry.mu. Ledger I/O for
// pairing runs with no arena lock held; settlement runs under the session lock.
package arena

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Conn is one client transport. Send must not block for long; the gateway buffers.
type Conn interface {
	ID() string
	Send(ev arenadto.Event) error
}

// SnapshotSink mirrors session state for external readers. Failures are logged only.
type SnapshotSink interface {
	Save(ctx context.Context, snap store.Snapshot) error
}

// Settings are the timing knobs and the mode table.
type Settings struct {
	Modes              []config.Mode
	MatchmakingTimeout time.Duration
	ReconnectGrace     time.Duration
	TickInterval       time.Duration
}

const (
	opTimeout     = 10 * time.Second
	lookupTimeout = 2 * time.Second
)

type Orchestrator struct {
	modes     map[string]config.Mode
	coord     *settlement.Coordinator
	clock     quartz.Clock
	dir       identity.Directory
	snaps     []SnapshotSink
	cat       *msgcat.Catalog
	timeout   time.Duration
	grace     time.Duration
	tickEvery time.Duration

	// matchmaker
	mu      sync.Mutex
	queues  map[string]*matchQueue
	waiting map[string]*queueEntry
	pairing map[string]bool

	reg    *registry
	closed atomic.Bool
}

type Option func(*Orchestrator)

func WithClock(c quartz.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithDirectory(d identity.Directory) Option { return func(o *Orchestrator) { o.dir = d } }

// WithSnapshots adds sinks that receive every snapshot in order.
func WithSnapshots(s ...SnapshotSink) Option {
	return func(o *Orchestrator) { o.snaps = append(o.snaps, s...) }
}

func WithCatalog(c *msgcat.Catalog) Option { return func(o *Orchestrator) { o.cat = c } }

func New(cfg Settings, coord *settlement.Coordinator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		modes:     make(map[string]config.Mode, len(cfg.Modes)),
		coord:     coord,
		clock:     quartz.NewReal(),
		timeout:   cfg.MatchmakingTimeout,
		grace:     cfg.ReconnectGrace,
		tickEvery: cfg.TickInterval,
		queues:    make(map[string]*matchQueue),
		waiting:   make(map[string]*queueEntry),
		pairing:   make(map[string]bool),
		reg:       newRegistry(),
	}
	if o.timeout <= 0 {
		o.timeout = 15 * time.Second
	}
	if o.grace <= 0 {
		o.grace = 30 * time.Second
	}
	if o.tickEvery <= 0 {
		o.tickEvery = time.Second
	}
	for _, m := range cfg.Modes {
		o.modes[m.Name] = m
		o.queues[m.Name] = &matchQueue{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle dispatches one inbound frame from an authenticated connection.
func (o *Orchestrator) Handle(ctx context.Context, conn Conn, id string, in arenadto.Inbound) error {
	switch in.Type {
	case arenadto.TypeJoinGame:
		return o.Join(ctx, conn, id, in.Mode)
	case arenadto.TypeCancelMatchmaking:
		return o.Cancel(conn)
	case arenadto.TypeMove:
		return o.Move(conn, in.Move)
	default:
		return o.reject(conn, ErrInvalidRequest, nil)
	}
}

// Join resumes a live session, pairs with the earliest waiting participant of the mode,
// or enqueues the requester.
func (o *Orchestrator) Join(ctx context.Context, conn Conn, id, modeName string) error {
	id = strings.TrimSpace(id)
	if o.closed.Load() {
		return o.reject(conn, ErrClosed, nil)
	}
	if id == "" {
		return o.reject(conn, ErrInvalidRequest, nil)
	}
	o.reg.bind(conn.ID(), id)

	if s := o.reg.sessionFor(id); s != nil {
		if err := s.reattach(id, conn); err != nil {
			return o.reject(conn, err, nil)
		}
		return nil
	}

	modeName = strings.TrimSpace(modeName)
	mode, ok := o.modes[modeName]
	if !ok {
		return o.reject(conn, ErrUnknownMode, map[string]any{"Mode": modeName})
	}

	o.mu.Lock()
	if o.pairing[id] {
		o.mu.Unlock()
		return o.reject(conn, ErrBusy, nil)
	}
	if e := o.waiting[id]; e != nil {
		// 같은 사용자의 두 번째 연결: 새 연결로 교체하고 대기 상태만 다시 알린다.
		e.conn = conn
		waitingMode := e.mode
		o.mu.Unlock()
		o.sendMatchmaking(conn, arenadto.StatusWaiting, waitingMode)
		return nil
	}
	o.mu.Unlock()

	if err := o.coord.CheckEligible(ctx, id, mode.EntryFee); err != nil {
		obslog.L().Info("arena_join_rejected", zap.String("user", id), zap.String("mode", mode.Name), zap.Error(err))
		return o.reject(conn, err, map[string]any{"Fee": mode.EntryFee.String()})
	}

	o.mu.Lock()
	if o.pairing[id] || o.waiting[id] != nil || o.reg.sessionFor(id) != nil {
		o.mu.Unlock()
		return o.reject(conn, ErrBusy, nil)
	}
	q := o.queues[mode.Name]
	if opp := q.pop(); opp != nil {
		opp.timer.Stop()
		delete(o.waiting, opp.identity)
		o.pairing[id] = true
		o.pairing[opp.identity] = true
		o.mu.Unlock()
		o.pair(ctx, mode, opp, id, conn)
		return nil
	}
	e := &queueEntry{identity: id, mode: mode.Name, conn: conn, enqueuedAt: o.clock.Now()}
	e.timer = o.clock.AfterFunc(o.timeout, func() { o.expire(e) })
	q.push(e)
	o.waiting[id] = e
	depth := q.len()
	o.mu.Unlock()

	obslog.L().Info("arena_enqueue", zap.String("user", id), zap.String("mode", mode.Name), zap.Int("depth", depth))
	o.sendMatchmaking(conn, arenadto.StatusWaiting, mode.Name)
	return nil
}

// pair opens the contest in one ledger unit. The requester plays White.
func (o *Orchestrator) pair(ctx context.Context, mode config.Mode, opp *queueEntry, id string, conn Conn) {
	defer func() {
		o.mu.Lock()
		delete(o.pairing, id)
		delete(o.pairing, opp.identity)
		o.mu.Unlock()
	}()

	gameID := uuid.NewString()
	err := o.coord.Open(ctx, settlement.Opening{
		GameID:   gameID,
		Mode:     mode.Name,
		White:    id,
		Black:    opp.identity,
		EntryFee: mode.EntryFee,
	})
	if err != nil {
		obslog.L().Warn("arena_pairing_failed",
			zap.String("mode", mode.Name),
			zap.String("white", id),
			zap.String("black", opp.identity),
			zap.Error(err))
		_ = o.reject(conn, ErrPairingFailed, nil)
		_ = o.reject(opp.conn, ErrPairingFailed, nil)
		return
	}

	white := &player{id: id, profile: o.profile(ctx, id), conn: conn, remaining: mode.InitialTime}
	black := &player{id: opp.identity, profile: o.profile(ctx, opp.identity), conn: opp.conn, remaining: mode.InitialTime}
	s := newSession(o, gameID, mode, white, black)
	o.reg.add(s)
	obslog.L().Info("arena_pairing",
		zap.String("game_id", gameID),
		zap.String("mode", mode.Name),
		zap.String("white", id),
		zap.String("black", opp.identity),
		zap.Duration("waited", o.clock.Now().Sub(opp.enqueuedAt)))
	s.start()
	if o.closed.Load() {
		s.halt()
		return
	}

	// A transport that closed while the ledger unit ran is already unbound.
	for who, c := range map[string]Conn{id: conn, opp.identity: opp.conn} {
		if c != nil && o.reg.identityOf(c.ID()) != who {
			s.detach(who, c.ID())
		}
	}
}

func (o *Orchestrator) expire(e *queueEntry) {
	o.mu.Lock()
	if o.waiting[e.identity] != e {
		o.mu.Unlock()
		return
	}
	delete(o.waiting, e.identity)
	o.queues[e.mode].remove(e)
	conn := e.conn
	o.mu.Unlock()

	obslog.L().Info("arena_matchmaking_timeout", zap.String("user", e.identity), zap.String("mode", e.mode))
	o.sendMatchmaking(conn, arenadto.StatusNoOpponent, e.mode)
}

// Cancel leaves the queue and answers cancelled, also when nothing was queued. An entry
// already taken for pairing cannot be cancelled; the requester gets busy and then the start.
func (o *Orchestrator) Cancel(conn Conn) error {
	id := o.reg.identityOf(conn.ID())
	modeName := ""
	o.mu.Lock()
	if id != "" && o.pairing[id] {
		o.mu.Unlock()
		return o.reject(conn, ErrBusy, nil)
	}
	if e := o.waiting[id]; id != "" && e != nil {
		e.timer.Stop()
		delete(o.waiting, id)
		o.queues[e.mode].remove(e)
		modeName = e.mode
	}
	o.mu.Unlock()
	o.sendMatchmaking(conn, arenadto.StatusCancelled, modeName)
	return nil
}

// Move forwards a proposal to the sender's session.
func (o *Orchestrator) Move(conn Conn, spec *arenadto.MoveSpec) error {
	id := o.reg.identityOf(conn.ID())
	if id == "" {
		return o.reject(conn, ErrNotInGame, nil)
	}
	s := o.reg.sessionFor(id)
	if s == nil {
		return o.reject(conn, ErrNotInGame, nil)
	}
	if err := s.move(id, spec); err != nil {
		return o.reject(conn, err, map[string]any{"Detail": detailOf(err)})
	}
	return nil
}

// Disconnect is called by the transport when conn closes. A waiting entry is dropped;
// a live session starts the grace timer for that side.
func (o *Orchestrator) Disconnect(conn Conn) {
	id := o.reg.unbind(conn.ID())
	if id == "" {
		return
	}
	o.mu.Lock()
	if e := o.waiting[id]; e != nil && e.conn.ID() == conn.ID() {
		e.timer.Stop()
		delete(o.waiting, id)
		o.queues[e.mode].remove(e)
	}
	o.mu.Unlock()
	if s := o.reg.sessionFor(id); s != nil {
		s.detach(id, conn.ID())
	}
}

// Close stops every queue timer, clock and grace timer. Live sessions are left unsettled
// with their escrow held.
func (o *Orchestrator) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	o.mu.Lock()
	for id, e := range o.waiting {
		e.timer.Stop()
		delete(o.waiting, id)
	}
	for _, q := range o.queues {
		q.entries = nil
	}
	o.mu.Unlock()
	sessions := o.reg.sessions()
	for _, s := range sessions {
		s.halt()
	}
	obslog.L().Info("arena_closed", zap.Int("live_sessions", len(sessions)))
}

// Waiting returns the queue depth of a mode.
func (o *Orchestrator) Waiting(mode string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if q := o.queues[mode]; q != nil {
		return q.len()
	}
	return 0
}

// Live returns the number of sessions in the registry.
func (o *Orchestrator) Live() int { return len(o.reg.sessions()) }

func (o *Orchestrator) profile(ctx context.Context, id string) identity.Profile {
	if o.dir == nil {
		return identity.Fallback(id)
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	p, err := o.dir.Lookup(ctx, id)
	if err != nil {
		obslog.L().Debug("arena_profile_fallback", zap.String("user", id), zap.Error(err))
		return identity.Fallback(id)
	}
	return p
}

func (o *Orchestrator) snapshot(snap store.Snapshot) {
	if len(o.snaps) == 0 {
		return
	}
	ctx, cancel := o.opContext()
	defer cancel()
	for _, sink := range o.snaps {
		if err := sink.Save(ctx, snap); err != nil {
			obslog.L().Warn("arena_snapshot_failed", zap.String("game_id", snap.GameID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (o *Orchestrator) sendMatchmaking(conn Conn, status, mode string) {
	var msg string
	switch status {
	case arenadto.StatusCancelled:
		msg = o.cat.Text("matchmaking.cancelled", nil)
	default:
		msg = o.cat.Text("matchmaking."+status, map[string]any{"Mode": mode})
	}
	o.send(conn, arenadto.Event{Type: arenadto.TypeMatchmaking, Data: arenadto.Matchmaking{
		Status:  status,
		Mode:    mode,
		Message: msg,
	}})
}

func (o *Orchestrator) errorEvent(code string, data map[string]any) arenadto.Event {
	return arenadto.Event{Type: arenadto.TypeError, Data: arenadto.Error{
		Code:    code,
		Message: o.cat.Text("error."+code, data),
	}}
}

// reject sends err to conn as an error event and returns it.
func (o *Orchestrator) reject(conn Conn, err error, data map[string]any) error {
	o.send(conn, o.errorEvent(codeOf(err), data))
	return err
}

func (o *Orchestrator) send(conn Conn, ev arenadto.Event) {
	if conn == nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		obslog.L().Debug("arena_send_failed", zap.String("conn", conn.ID()), zap.String("type", ev.Type), zap.Error(err))
	}
}
