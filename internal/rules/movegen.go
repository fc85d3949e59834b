package rules

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	diagonals   = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	orthogonals = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	promotionOrder = [4]PieceType{Queen, Rook, Bishop, Knight}
)

func offset(sq Square, df, dr int) (Square, bool) {
	f, r := sq.File()+df, sq.Rank()+dr
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return NoSquare, false
	}
	return NewSquare(f, r), true
}

func backRank(c Color) int {
	if c == White {
		return 0
	}
	return 7
}

func pawnDir(c Color) int {
	if c == White {
		return 1
	}
	return -1
}

// LegalMoves returns every legal move of the piece on from. It returns nil when the
// square is empty or holds a piece of the side not to move.
func LegalMoves(s State, from Square) []Move {
	if from >= NoSquare {
		return nil
	}
	p := s.Board[from]
	if p.IsZero() || p.Color != s.Turn {
		return nil
	}
	return filterLegal(&s, pseudoMoves(&s, from, nil))
}

// AllLegalMoves returns the legal moves of the side to move.
func AllLegalMoves(s State) []Move {
	var pseudo []Move
	for sq := Square(0); sq < NoSquare; sq++ {
		p := s.Board[sq]
		if p.IsZero() || p.Color != s.Turn {
			continue
		}
		pseudo = pseudoMoves(&s, sq, pseudo)
	}
	return filterLegal(&s, pseudo)
}

// Find looks up a proposed move in the legal set of the side to move. The match is exact on
// source, destination, promotion, castle side and en-passant flag.
func Find(s State, candidate Move) (Move, bool) {
	for _, m := range LegalMoves(s, candidate.From) {
		if m.sameIntent(candidate) {
			return m, true
		}
	}
	return Move{}, false
}

func (s *State) hasLegalMove() bool {
	var buf []Move
	for sq := Square(0); sq < NoSquare; sq++ {
		p := s.Board[sq]
		if p.IsZero() || p.Color != s.Turn {
			continue
		}
		buf = pseudoMoves(s, sq, buf[:0])
		for _, m := range buf {
			if leavesKingSafe(&s.Board, m) {
				return true
			}
		}
	}
	return false
}

func filterLegal(s *State, pseudo []Move) []Move {
	out := pseudo[:0]
	for _, m := range pseudo {
		if leavesKingSafe(&s.Board, m) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// leavesKingSafe simulates m on a scratch copy and reports whether the mover's king is
// not attacked afterwards.
func leavesKingSafe(b *Board, m Move) bool {
	scratch := *b
	placeMove(&scratch, m)
	k := kingSquare(&scratch, m.Piece.Color)
	if k == NoSquare {
		return true
	}
	return !attacked(&scratch, k, m.Piece.Color.Opponent())
}

func pseudoMoves(s *State, from Square, out []Move) []Move {
	p := s.Board[from]
	switch p.Type {
	case Pawn:
		return pawnMoves(s, from, p, out)
	case Knight:
		return stepMoves(&s.Board, from, p, knightSteps[:], out)
	case Bishop:
		return slideMoves(&s.Board, from, p, diagonals[:], out)
	case Rook:
		return slideMoves(&s.Board, from, p, orthogonals[:], out)
	case Queen:
		out = slideMoves(&s.Board, from, p, diagonals[:], out)
		return slideMoves(&s.Board, from, p, orthogonals[:], out)
	case King:
		out = stepMoves(&s.Board, from, p, kingSteps[:], out)
		return castleMoves(s, from, p, out)
	}
	return out
}

func pawnMoves(s *State, from Square, p Piece, out []Move) []Move {
	dir := pawnDir(p.Color)
	startRank, lastRank := 1, 7
	if p.Color == Black {
		startRank, lastRank = 6, 0
	}

	if to, ok := offset(from, 0, dir); ok && s.Board[to].IsZero() {
		out = appendPawnMove(out, Move{From: from, To: to, Piece: p}, lastRank)
		if from.Rank() == startRank {
			if to2, ok := offset(from, 0, 2*dir); ok && s.Board[to2].IsZero() {
				out = append(out, Move{From: from, To: to2, Piece: p})
			}
		}
	}

	for _, df := range [2]int{-1, 1} {
		to, ok := offset(from, df, dir)
		if !ok {
			continue
		}
		target := s.Board[to]
		switch {
		case !target.IsZero() && target.Color != p.Color:
			out = appendPawnMove(out, Move{From: from, To: to, Piece: p, Captured: target}, lastRank)
		case target.IsZero() && to == s.EnPassant:
			victim := s.Board[NewSquare(to.File(), from.Rank())]
			if victim.Type == Pawn && victim.Color != p.Color {
				out = append(out, Move{From: from, To: to, Piece: p, Captured: victim, EnPassant: true})
			}
		}
	}
	return out
}

func appendPawnMove(out []Move, m Move, lastRank int) []Move {
	if m.To.Rank() != lastRank {
		return append(out, m)
	}
	for _, pt := range promotionOrder {
		pm := m
		pm.Promotion = pt
		out = append(out, pm)
	}
	return out
}

func stepMoves(b *Board, from Square, p Piece, steps [][2]int, out []Move) []Move {
	for _, st := range steps {
		to, ok := offset(from, st[0], st[1])
		if !ok {
			continue
		}
		target := b[to]
		if target.IsZero() {
			out = append(out, Move{From: from, To: to, Piece: p})
		} else if target.Color != p.Color {
			out = append(out, Move{From: from, To: to, Piece: p, Captured: target})
		}
	}
	return out
}

func slideMoves(b *Board, from Square, p Piece, dirs [][2]int, out []Move) []Move {
	for _, d := range dirs {
		sq := from
		for {
			to, ok := offset(sq, d[0], d[1])
			if !ok {
				break
			}
			target := b[to]
			if target.IsZero() {
				out = append(out, Move{From: from, To: to, Piece: p})
				sq = to
				continue
			}
			if target.Color != p.Color {
				out = append(out, Move{From: from, To: to, Piece: p, Captured: target})
			}
			break
		}
	}
	return out
}

func castleMoves(s *State, from Square, p Piece, out []Move) []Move {
	rank := backRank(p.Color)
	home := NewSquare(4, rank)
	if from != home {
		return out
	}
	opp := p.Color.Opponent()
	rook := Piece{Type: Rook, Color: p.Color}
	b := &s.Board

	if s.Castling.Has(p.Color, KingSide) {
		f, g, h := NewSquare(5, rank), NewSquare(6, rank), NewSquare(7, rank)
		if b[f].IsZero() && b[g].IsZero() && b[h] == rook &&
			!attacked(b, home, opp) && !attacked(b, f, opp) && !attacked(b, g, opp) {
			out = append(out, Move{From: home, To: g, Piece: p, Castle: KingSide})
		}
	}
	if s.Castling.Has(p.Color, QueenSide) {
		d, c, bb, a := NewSquare(3, rank), NewSquare(2, rank), NewSquare(1, rank), NewSquare(0, rank)
		if b[d].IsZero() && b[c].IsZero() && b[bb].IsZero() && b[a] == rook &&
			!attacked(b, home, opp) && !attacked(b, d, opp) && !attacked(b, c, opp) {
			out = append(out, Move{From: home, To: c, Piece: p, Castle: QueenSide})
		}
	}
	return out
}

// placeMove relocates pieces for m on b without touching any other state.
func placeMove(b *Board, m Move) {
	piece := b[m.From]
	b[m.From] = Piece{}
	if m.EnPassant {
		b[NewSquare(m.To.File(), m.From.Rank())] = Piece{}
	}
	if m.Promotion != NoPieceType {
		piece.Type = m.Promotion
	}
	b[m.To] = piece

	rank := m.From.Rank()
	switch m.Castle {
	case KingSide:
		b[NewSquare(5, rank)] = b[NewSquare(7, rank)]
		b[NewSquare(7, rank)] = Piece{}
	case QueenSide:
		b[NewSquare(3, rank)] = b[NewSquare(0, rank)]
		b[NewSquare(0, rank)] = Piece{}
	}
}

func kingSquare(b *Board, c Color) Square {
	king := Piece{Type: King, Color: c}
	for sq := Square(0); sq < NoSquare; sq++ {
		if b[sq] == king {
			return sq
		}
	}
	return NoSquare
}

// attacked reports whether sq is attacked by any piece of color by.
func attacked(b *Board, sq Square, by Color) bool {
	dir := pawnDir(by)
	for _, df := range [2]int{-1, 1} {
		if from, ok := offset(sq, df, -dir); ok && b[from] == (Piece{Type: Pawn, Color: by}) {
			return true
		}
	}
	for _, st := range knightSteps {
		if from, ok := offset(sq, st[0], st[1]); ok && b[from] == (Piece{Type: Knight, Color: by}) {
			return true
		}
	}
	for _, st := range kingSteps {
		if from, ok := offset(sq, st[0], st[1]); ok && b[from] == (Piece{Type: King, Color: by}) {
			return true
		}
	}
	if slidingAttack(b, sq, by, diagonals[:], Bishop) {
		return true
	}
	return slidingAttack(b, sq, by, orthogonals[:], Rook)
}

func slidingAttack(b *Board, sq Square, by Color, dirs [][2]int, slider PieceType) bool {
	for _, d := range dirs {
		cur := sq
		for {
			next, ok := offset(cur, d[0], d[1])
			if !ok {
				break
			}
			p := b[next]
			if p.IsZero() {
				cur = next
				continue
			}
			if p.Color == by && (p.Type == slider || p.Type == Queen) {
				return true
			}
			break
		}
	}
	return false
}
