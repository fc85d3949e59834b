package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// FEN serializes the position in Forsyth-Edwards Notation.
func (s State) FEN() string {
	var b strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			p := s.Board[NewSquare(f, r)]
			if p.IsZero() {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteByte(byte('0' + empty))
				empty = 0
			}
			b.WriteByte(p.FEN())
		}
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			b.WriteByte('/')
		}
	}
	turn := "w"
	if s.Turn == Black {
		turn = "b"
	}
	fmt.Fprintf(&b, " %s %s %s %d %d", turn, s.Castling, s.EnPassant, s.HalfMoveClock, s.FullMoveNumber)
	return b.String()
}

// ParseFEN builds a State from a FEN string. The clock fields may be omitted.
// Castling rights whose king or rook is not on its home square are dropped.
func ParseFEN(fen string) (State, error) {
	fields := strings.Fields(fen)
	if len(fields) != 4 && len(fields) != 6 {
		return State{}, fmt.Errorf("%w: expected 4 or 6 fields, got %d", ErrBadFEN, len(fields))
	}

	var s State
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return State{}, fmt.Errorf("%w: expected 8 ranks", ErrBadFEN)
	}
	kings := map[Color]int{}
	for i, row := range ranks {
		r := 7 - i
		f := 0
		for _, ch := range row {
			if ch >= '1' && ch <= '8' {
				f += int(ch - '0')
				continue
			}
			p, ok := pieceFromFEN(byte(ch))
			if !ok || f > 7 {
				return State{}, fmt.Errorf("%w: bad rank %q", ErrBadFEN, row)
			}
			if p.Type == King {
				kings[p.Color]++
			}
			s.Board[NewSquare(f, r)] = p
			f++
		}
		if f != 8 {
			return State{}, fmt.Errorf("%w: rank %q does not span 8 files", ErrBadFEN, row)
		}
	}
	if kings[White] != 1 || kings[Black] != 1 {
		return State{}, fmt.Errorf("%w: each side needs exactly one king", ErrBadFEN)
	}

	switch fields[1] {
	case "w":
		s.Turn = White
	case "b":
		s.Turn = Black
	default:
		return State{}, fmt.Errorf("%w: side to move %q", ErrBadFEN, fields[1])
	}

	if fields[2] != "-" {
		for _, ch := range fields[2] {
			switch ch {
			case 'K':
				s.Castling.WhiteKingSide = true
			case 'Q':
				s.Castling.WhiteQueenSide = true
			case 'k':
				s.Castling.BlackKingSide = true
			case 'q':
				s.Castling.BlackQueenSide = true
			default:
				return State{}, fmt.Errorf("%w: castling %q", ErrBadFEN, fields[2])
			}
		}
	}
	s.Castling = consistentRights(&s.Board, s.Castling)

	s.EnPassant = NoSquare
	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return State{}, fmt.Errorf("%w: en passant %q", ErrBadFEN, fields[3])
		}
		s.EnPassant = sq
	}

	s.FullMoveNumber = 1
	if len(fields) == 6 {
		hm, err := strconv.Atoi(fields[4])
		if err != nil || hm < 0 {
			return State{}, fmt.Errorf("%w: half-move clock %q", ErrBadFEN, fields[4])
		}
		fm, err := strconv.Atoi(fields[5])
		if err != nil || fm < 1 {
			return State{}, fmt.Errorf("%w: full-move number %q", ErrBadFEN, fields[5])
		}
		s.HalfMoveClock, s.FullMoveNumber = hm, fm
	}

	s.refresh()
	return s, nil
}

func pieceFromFEN(ch byte) (Piece, bool) {
	c := White
	lower := ch
	if ch >= 'a' && ch <= 'z' {
		c = Black
	} else {
		lower = ch - 'A' + 'a'
	}
	for pt := Pawn; pt <= King; pt++ {
		if pt.Letter() == lower {
			return Piece{Type: pt, Color: c}, true
		}
	}
	return Piece{}, false
}

func consistentRights(b *Board, r CastlingRights) CastlingRights {
	for _, c := range [2]Color{White, Black} {
		rank := backRank(c)
		if b[NewSquare(4, rank)] != (Piece{Type: King, Color: c}) {
			r.revoke(c, KingSide)
			r.revoke(c, QueenSide)
		}
		if b[NewSquare(7, rank)] != (Piece{Type: Rook, Color: c}) {
			r.revoke(c, KingSide)
		}
		if b[NewSquare(0, rank)] != (Piece{Type: Rook, Color: c}) {
			r.revoke(c, QueenSide)
		}
	}
	return r
}
