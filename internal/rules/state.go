package rules

// State is an immutable snapshot of a contest position. Apply returns a new State and never
// mutates its input.
type State struct {
	Board          Board
	Turn           Color
	Castling       CastlingRights
	EnPassant      Square
	HalfMoveClock  int
	FullMoveNumber int
	History        []Move

	Check      bool
	Checkmate  bool
	Stalemate  bool
	Draw       bool
	DrawReason DrawReason
}

const fiftyMoveLimit = 100

var backRankOrder = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// NewGame returns the standard initial position with White to move.
func NewGame() State {
	var s State
	for f := 0; f < 8; f++ {
		s.Board[NewSquare(f, 0)] = Piece{Type: backRankOrder[f], Color: White}
		s.Board[NewSquare(f, 1)] = Piece{Type: Pawn, Color: White}
		s.Board[NewSquare(f, 6)] = Piece{Type: Pawn, Color: Black}
		s.Board[NewSquare(f, 7)] = Piece{Type: backRankOrder[f], Color: Black}
	}
	s.Turn = White
	s.Castling = CastlingRights{WhiteKingSide: true, WhiteQueenSide: true, BlackKingSide: true, BlackQueenSide: true}
	s.EnPassant = NoSquare
	s.FullMoveNumber = 1
	return s
}

// Over reports whether the position is terminal.
func (s State) Over() bool { return s.Checkmate || s.Draw }

// Apply plays m, which must be a legal move of the side to move (see LegalMoves and Find),
// and returns the resulting state with check, mate and draw flags derived.
func Apply(s State, m Move) State {
	next := s
	mover := s.Turn

	m.Piece = s.Board[m.From]
	if m.EnPassant {
		m.Captured = s.Board[NewSquare(m.To.File(), m.From.Rank())]
	} else {
		m.Captured = s.Board[m.To]
	}

	placeMove(&next.Board, m)

	if m.Piece.Type == King {
		next.Castling.revoke(mover, KingSide)
		next.Castling.revoke(mover, QueenSide)
	}
	revokeRookHome(&next.Castling, m.From)
	revokeRookHome(&next.Castling, m.To)

	next.EnPassant = NoSquare
	if m.Piece.Type == Pawn && abs(m.To.Rank()-m.From.Rank()) == 2 {
		next.EnPassant = NewSquare(m.From.File(), (m.From.Rank()+m.To.Rank())/2)
	}

	if m.Piece.Type == Pawn || !m.Captured.IsZero() {
		next.HalfMoveClock = 0
	} else {
		next.HalfMoveClock++
	}
	if mover == Black {
		next.FullMoveNumber++
	}
	next.Turn = mover.Opponent()
	next.refresh()

	m.Check = next.Check
	m.Checkmate = next.Checkmate
	hist := make([]Move, len(s.History), len(s.History)+1)
	copy(hist, s.History)
	next.History = append(hist, m)
	return next
}

// revokeRookHome clears the right tied to a rook home square once anything leaves or lands on it.
func revokeRookHome(r *CastlingRights, sq Square) {
	switch sq {
	case NewSquare(0, 0):
		r.WhiteQueenSide = false
	case NewSquare(7, 0):
		r.WhiteKingSide = false
	case NewSquare(0, 7):
		r.BlackQueenSide = false
	case NewSquare(7, 7):
		r.BlackKingSide = false
	}
}

func (s *State) refresh() {
	k := kingSquare(&s.Board, s.Turn)
	s.Check = k != NoSquare && attacked(&s.Board, k, s.Turn.Opponent())
	canMove := s.hasLegalMove()
	s.Checkmate = s.Check && !canMove
	s.Stalemate = !s.Check && !canMove

	s.DrawReason = DrawNone
	switch {
	case s.Stalemate:
		s.DrawReason = DrawStalemate
	case !s.Checkmate && s.HalfMoveClock >= fiftyMoveLimit:
		s.DrawReason = DrawFiftyMove
	}
	s.Draw = s.DrawReason != DrawNone
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
