package arena

import (
	"time"

	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func renderMove(m rules.Move) arenadto.MoveApplied {
	out := arenadto.MoveApplied{
		From:      m.From.String(),
		To:        m.To.String(),
		Piece:     m.Piece.Type.String(),
		Castling:  m.Castle.String(),
		EnPassant: m.EnPassant,
		Check:     m.Check,
		Checkmate: m.Checkmate,
		UCI:       m.UCI(),
	}
	if !m.Captured.IsZero() {
		out.Captured = m.Captured.Type.String()
	}
	if m.Promotion != rules.NoPieceType {
		out.Promotion = m.Promotion.String()
	}
	return out
}

func renderState(s rules.State) arenadto.GameState {
	hist := make([]arenadto.MoveApplied, 0, len(s.History))
	for _, m := range s.History {
		hist = append(hist, renderMove(m))
	}
	return arenadto.GameState{
		FEN:            s.FEN(),
		Turn:           s.Turn.String(),
		Check:          s.Check,
		Checkmate:      s.Checkmate,
		Stalemate:      s.Stalemate,
		Draw:           s.Draw,
		DrawReason:     string(s.DrawReason),
		HalfMoveClock:  s.HalfMoveClock,
		FullMoveNumber: s.FullMoveNumber,
		History:        hist,
	}
}

func movesUCI(s rules.State) []string {
	out := make([]string, 0, len(s.History))
	for _, m := range s.History {
		out = append(out, m.UCI())
	}
	return out
}

// seconds rounds up so a side with 400ms left still shows 1.
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// parseMove turns a client proposal into a candidate for rules.Find.
func parseMove(spec *arenadto.MoveSpec) (rules.Move, error) {
	if spec == nil {
		return rules.Move{}, ErrInvalidRequest
	}
	from, err := rules.ParseSquare(spec.From)
	if err != nil {
		return rules.Move{}, wrapDetail(ErrInvalidMove, err)
	}
	to, err := rules.ParseSquare(spec.To)
	if err != nil {
		return rules.Move{}, wrapDetail(ErrInvalidMove, err)
	}
	cand := rules.Move{From: from, To: to, EnPassant: spec.EnPassant}
	if spec.Promotion != "" {
		if cand.Promotion, err = rules.ParsePromotion(spec.Promotion); err != nil {
			return rules.Move{}, wrapDetail(ErrInvalidMove, err)
		}
	}
	if cand.Castle, err = rules.ParseCastleSide(spec.Castling); err != nil {
		return rules.Move{}, wrapDetail(ErrInvalidMove, err)
	}
	return cand, nil
}
