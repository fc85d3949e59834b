package arena

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/record"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

const (
	statusPlaying  = "playing"
	statusFinished = "finished"
)

// Termination reasons, also used as end.* catalog keys.
const (
	ReasonCheckmate            = "checkmate"
	ReasonTimeout              = "timeout"
	ReasonOpponentDisconnected = "opponent_disconnected"
	ReasonCheatDetected        = "cheat_detected"
)

type player struct {
	id        string
	profile   identity.Profile
	conn      Conn // nil while disconnected
	remaining time.Duration
	grace     *quartz.Timer
	graceGen  uint64
}

// session is one contest. mu guards everything below it; every trigger (move, tick,
// grace expiry, shutdown) takes it.
type session struct {
	o         *Orchestrator
	id        string
	mode      config.Mode
	startedAt time.Time

	mu      sync.Mutex
	state   rules.State
	players [2]*player // indexed by rules.Color
	status  string
	result  settlement.Result
	reason  string
	settled bool
	tick    *quartz.Timer
	tickGen uint64
	halted  bool
}

func newSession(o *Orchestrator, id string, mode config.Mode, white, black *player) *session {
	return &session{
		o:         o,
		id:        id,
		mode:      mode,
		startedAt: o.clock.Now(),
		state:     rules.NewGame(),
		players:   [2]*player{rules.White: white, rules.Black: black},
		status:    statusPlaying,
	}
}

func (s *session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armTickLocked()
	for _, c := range []rules.Color{rules.White, rules.Black} {
		s.sendLocked(c, arenadto.Event{Type: arenadto.TypeGameStart, Data: s.gameStartLocked(c)})
	}
	s.o.snapshot(s.snapshotLocked())
}

func (s *session) colorOf(id string) (rules.Color, bool) {
	switch id {
	case s.players[rules.White].id:
		return rules.White, true
	case s.players[rules.Black].id:
		return rules.Black, true
	}
	return rules.White, false
}

// Clock

func (s *session) armTickLocked() {
	s.tickGen++
	gen := s.tickGen
	s.tick = s.o.clock.AfterFunc(s.o.tickEvery, func() { s.onTick(gen) })
}

func (s *session) onTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusPlaying || s.halted || gen != s.tickGen {
		return
	}
	p := s.players[s.state.Turn]
	p.remaining -= s.o.tickEvery
	if p.remaining <= 0 {
		p.remaining = 0
		s.finishLocked(resultFor(s.state.Turn.Opponent()), ReasonTimeout, nil)
		return
	}
	s.broadcastLocked(arenadto.Event{Type: arenadto.TypeTimer, Data: arenadto.Timer{
		GameID:              s.id,
		WhiteTime:           seconds(s.players[rules.White].remaining),
		BlackTime:           seconds(s.players[rules.Black].remaining),
		CurrentTurn:         s.state.Turn.String(),
		CurrentTurnPlayerID: p.id,
	}})
	s.armTickLocked()
}

// Moves

// move applies a proposal from id. A well-formed proposal that is not in the legal set
// forfeits the game instead of returning an error.
func (s *session) move(id string, spec *arenadto.MoveSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusPlaying || s.halted {
		return ErrNotInGame
	}
	color, ok := s.colorOf(id)
	if !ok {
		return ErrNotInGame
	}
	if s.state.Turn != color {
		return ErrNotYourTurn
	}
	cand, err := parseMove(spec)
	if err != nil {
		return err
	}
	m, ok := rules.Find(s.state, cand)
	if !ok {
		obslog.L().Warn("arena_illegal_move",
			zap.String("game_id", s.id),
			zap.String("user", id),
			zap.String("move", cand.UCI()),
			zap.String("fen", s.state.FEN()))
		s.finishLocked(resultFor(color.Opponent()), ReasonCheatDetected, &settlement.Forfeit{
			Account: id,
			Reason:  "illegal move " + cand.UCI() + " at " + s.state.FEN(),
		})
		return nil
	}

	s.state = rules.Apply(s.state, m)
	applied := s.state.History[len(s.state.History)-1]
	obslog.L().Info("arena_move",
		zap.String("game_id", s.id),
		zap.String("user", id),
		zap.String("move", applied.UCI()),
		zap.Int("ply", len(s.state.History)))

	next := s.players[s.state.Turn]
	s.broadcastLocked(arenadto.Event{Type: arenadto.TypeMoveApplied, Data: arenadto.MoveEvent{
		GameID:              s.id,
		Move:                renderMove(applied),
		State:               renderState(s.state),
		WhiteTime:           seconds(s.players[rules.White].remaining),
		BlackTime:           seconds(s.players[rules.Black].remaining),
		CurrentTurn:         s.state.Turn.String(),
		CurrentTurnPlayerID: next.id,
	}})

	switch {
	case s.state.Checkmate:
		s.finishLocked(resultFor(color), ReasonCheckmate, nil)
	case s.state.Draw:
		s.finishLocked(settlement.ResultDraw, string(s.state.DrawReason), nil)
	default:
		s.o.snapshot(s.snapshotLocked())
	}
	return nil
}

// Transport

func (s *session) reattach(id string, conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusPlaying || s.halted {
		return ErrBusy
	}
	color, ok := s.colorOf(id)
	if !ok {
		return ErrNotInGame
	}
	p := s.players[color]
	if p.grace != nil {
		p.grace.Stop()
		p.grace = nil
	}
	p.graceGen++
	p.conn = conn
	obslog.L().Info("arena_reconnect", zap.String("game_id", s.id), zap.String("user", id))
	s.sendLocked(color, arenadto.Event{Type: arenadto.TypeGameResume, Data: s.gameStartLocked(color)})
	return nil
}

// detach starts the grace timer for id if connID is still its live connection.
func (s *session) detach(id, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusPlaying || s.halted {
		return
	}
	color, ok := s.colorOf(id)
	if !ok {
		return
	}
	p := s.players[color]
	if p.conn == nil || p.conn.ID() != connID {
		return
	}
	p.conn = nil
	p.graceGen++
	gen := p.graceGen
	p.grace = s.o.clock.AfterFunc(s.o.grace, func() { s.onGraceExpired(color, gen) })
	obslog.L().Info("arena_disconnect",
		zap.String("game_id", s.id),
		zap.String("user", id),
		zap.Duration("grace", s.o.grace))
}

func (s *session) onGraceExpired(c rules.Color, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.players[c]
	if s.status != statusPlaying || s.halted || p.graceGen != gen || p.conn != nil {
		return
	}
	s.finishLocked(resultFor(c.Opponent()), ReasonOpponentDisconnected, nil)
}

// halt stops all timers without settling. Used on shutdown; the escrow stays held.
func (s *session) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	s.stopTimersLocked()
}

func (s *session) stopTimersLocked() {
	s.tickGen++
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	for _, p := range s.players {
		p.graceGen++
		if p.grace != nil {
			p.grace.Stop()
			p.grace = nil
		}
	}
}

// Termination

// finishLocked is the only way a session ends. It is a no-op once finished.
func (s *session) finishLocked(result settlement.Result, reason string, forfeit *settlement.Forfeit) {
	if s.status == statusFinished {
		return
	}
	s.status = statusFinished
	s.result = result
	s.reason = reason
	s.stopTimersLocked()

	white, black := s.players[rules.White], s.players[rules.Black]
	moves := movesUCI(s.state)
	pgn := record.PGN(record.Game{
		ID:        s.id,
		Mode:      s.mode.Name,
		WhiteName: white.profile.DisplayName,
		BlackName: black.profile.DisplayName,
		MovesUCI:  moves,
		Result:    string(result),
		Reason:    reason,
		StartedAt: s.startedAt,
	})

	ctx, cancel := s.o.opContext()
	defer cancel()
	st, err := s.o.coord.Settle(ctx, settlement.Closing{
		GameID:   s.id,
		White:    white.id,
		Black:    black.id,
		EntryFee: s.mode.EntryFee,
		Result:   result,
		Reason:   reason,
		FinalFEN: s.state.FEN(),
		MovesUCI: moves,
		PGN:      pgn,
		Forfeit:  forfeit,
	})
	if err != nil {
		obslog.L().Error("arena_settlement_failed",
			zap.String("game_id", s.id),
			zap.String("result", string(result)),
			zap.String("reason", reason),
			zap.Error(err))
		st = settlement.Settlement{Payouts: settlement.Compute(result, s.mode.EntryFee, s.o.coord.FeeRate())}
	} else {
		s.settled = true
	}

	for _, c := range []rules.Color{rules.White, rules.Black} {
		s.sendLocked(c, arenadto.Event{Type: arenadto.TypeGameEnd, Data: s.gameEndLocked(c, st, forfeit)})
		if err != nil {
			s.sendLocked(c, s.o.errorEvent(arenadto.CodeSettlementFailed, nil))
		}
	}
	s.o.snapshot(s.snapshotLocked())
	s.o.reg.remove(s)

	obslog.L().Info("arena_finish",
		zap.String("game_id", s.id),
		zap.String("result", string(result)),
		zap.String("reason", reason),
		zap.Int("plies", len(moves)),
		zap.Bool("settled", s.settled))
}

func resultFor(winner rules.Color) settlement.Result {
	if winner == rules.White {
		return settlement.ResultWhite
	}
	return settlement.ResultBlack
}

// Rendering

func (s *session) sendLocked(c rules.Color, ev arenadto.Event) {
	p := s.players[c]
	if p.conn == nil {
		return
	}
	if err := p.conn.Send(ev); err != nil {
		obslog.L().Debug("arena_send_failed",
			zap.String("game_id", s.id),
			zap.String("user", p.id),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

func (s *session) broadcastLocked(ev arenadto.Event) {
	s.sendLocked(rules.White, ev)
	s.sendLocked(rules.Black, ev)
}

func dtoPlayer(p *player) arenadto.Player {
	return arenadto.Player{ID: p.id, Name: p.profile.DisplayName, AvatarURL: p.profile.AvatarURL}
}

func (s *session) gameStartLocked(c rules.Color) arenadto.GameStart {
	return arenadto.GameStart{
		GameID:              s.id,
		Mode:                s.mode.Name,
		Color:               c.String(),
		White:               dtoPlayer(s.players[rules.White]),
		Black:               dtoPlayer(s.players[rules.Black]),
		EntryFee:            s.mode.EntryFee.String(),
		WhiteTime:           seconds(s.players[rules.White].remaining),
		BlackTime:           seconds(s.players[rules.Black].remaining),
		CurrentTurn:         s.state.Turn.String(),
		CurrentTurnPlayerID: s.players[s.state.Turn].id,
		State:               renderState(s.state),
	}
}

// gameEndLocked personalises the end event for side c. Money change is what the side's
// balance moved over the whole contest: payout less the entry fee, less any confiscation.
// An unsettled contest reports only the entry fee still held in escrow.
func (s *session) gameEndLocked(c rules.Color, st settlement.Settlement, forfeit *settlement.Forfeit) arenadto.GameEnd {
	p := s.players[c]
	out := arenadto.GameEnd{
		GameID:  s.id,
		Reason:  s.reason,
		Message: s.o.cat.Text("end."+s.reason, nil),
		Payouts: arenadto.Payouts{
			White:       st.White.String(),
			Black:       st.Black.String(),
			PlatformFee: st.PlatformFee.String(),
			TotalPot:    st.Pot.String(),
		},
		Settled: s.settled,
		State:   renderState(s.state),
	}
	switch s.result {
	case settlement.ResultDraw:
		out.Result = "draw"
	case resultFor(c):
		out.Result = "win"
	default:
		out.Result = "loss"
	}
	if s.result != settlement.ResultDraw {
		winner := rules.White
		if s.result == settlement.ResultBlack {
			winner = rules.Black
		}
		out.Winner = s.players[winner].id
		out.Loser = s.players[winner.Opponent()].id
	}

	change := -s.mode.EntryFee
	if s.settled {
		change += st.For(c == rules.White)
		if forfeit != nil && forfeit.Account == p.id {
			change -= st.Confiscated
		}
	}
	out.MoneyChange = change.String()
	return out
}

func (s *session) snapshotLocked() store.Snapshot {
	white, black := s.players[rules.White], s.players[rules.Black]
	return store.Snapshot{
		GameID:      s.id,
		Mode:        s.mode.Name,
		White:       white.id,
		Black:       black.id,
		EntryFee:    s.mode.EntryFee.String(),
		Status:      s.status,
		FEN:         s.state.FEN(),
		MovesUCI:    movesUCI(s.state),
		Turn:        s.state.Turn.String(),
		WhiteMillis: white.remaining.Milliseconds(),
		BlackMillis: black.remaining.Milliseconds(),
		Result:      string(s.result),
		Reason:      s.reason,
		Settled:     s.settled,
		StartedAt:   s.startedAt,
		UpdatedAt:   s.o.clock.Now(),
	}
}
