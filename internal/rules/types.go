package rules

import (
	"fmt"
	"strings"
)

// Color identifies a side.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// PieceType is the kind of a piece. The zero value means an empty square.
type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var pieceLetters = [...]byte{' ', 'p', 'n', 'b', 'r', 'q', 'k'}

// Letter returns the lowercase FEN letter of the piece type.
func (p PieceType) Letter() byte {
	if int(p) >= len(pieceLetters) {
		return '?'
	}
	return pieceLetters[p]
}

func (p PieceType) String() string {
	switch p {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return ""
	}
}

// ParsePromotion accepts a promotion piece written as a letter ("q") or a name ("queen").
func ParsePromotion(s string) (PieceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q", "queen":
		return Queen, nil
	case "r", "rook":
		return Rook, nil
	case "b", "bishop":
		return Bishop, nil
	case "n", "knight":
		return Knight, nil
	default:
		return NoPieceType, fmt.Errorf("%w: %q", ErrBadPromotion, s)
	}
}

// Piece is a colored piece. The zero value is an empty square.
type Piece struct {
	Type  PieceType
	Color Color
}

func (p Piece) IsZero() bool { return p.Type == NoPieceType }

// FEN returns the FEN character of the piece: uppercase for White.
func (p Piece) FEN() byte {
	b := p.Type.Letter()
	if p.Color == White {
		return b - 'a' + 'A'
	}
	return b
}

// Square indexes the board from a1 (0) to h8 (63).
type Square uint8

// NoSquare marks an absent square, e.g. no en-passant target.
const NoSquare Square = 64

func NewSquare(file, rank int) Square { return Square(rank*8 + file) }

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) String() string {
	if s >= NoSquare {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return NoSquare, fmt.Errorf("%w: %q", ErrBadSquare, s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

// Board is a fixed array of squares. Copying the value yields an independent board.
type Board [64]Piece

// CastleSide names a castling direction. NoCastle marks an ordinary move.
type CastleSide uint8

const (
	NoCastle CastleSide = iota
	KingSide
	QueenSide
)

func (c CastleSide) String() string {
	switch c {
	case KingSide:
		return "kingside"
	case QueenSide:
		return "queenside"
	default:
		return ""
	}
}

// ParseCastleSide accepts "kingside"/"queenside" and the short forms "k"/"q", "O-O"/"O-O-O".
func ParseCastleSide(s string) (CastleSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return NoCastle, nil
	case "kingside", "king", "k", "o-o", "short":
		return KingSide, nil
	case "queenside", "queen", "q", "o-o-o", "long":
		return QueenSide, nil
	default:
		return NoCastle, fmt.Errorf("%w: castling %q", ErrBadMove, s)
	}
}

// CastlingRights only ever transition from true to false during a game.
type CastlingRights struct {
	WhiteKingSide  bool
	WhiteQueenSide bool
	BlackKingSide  bool
	BlackQueenSide bool
}

func (r CastlingRights) Has(c Color, side CastleSide) bool {
	switch {
	case c == White && side == KingSide:
		return r.WhiteKingSide
	case c == White && side == QueenSide:
		return r.WhiteQueenSide
	case c == Black && side == KingSide:
		return r.BlackKingSide
	case c == Black && side == QueenSide:
		return r.BlackQueenSide
	}
	return false
}

func (r *CastlingRights) revoke(c Color, side CastleSide) {
	switch {
	case c == White && side == KingSide:
		r.WhiteKingSide = false
	case c == White && side == QueenSide:
		r.WhiteQueenSide = false
	case c == Black && side == KingSide:
		r.BlackKingSide = false
	case c == Black && side == QueenSide:
		r.BlackQueenSide = false
	}
}

func (r CastlingRights) String() string {
	var b strings.Builder
	if r.WhiteKingSide {
		b.WriteByte('K')
	}
	if r.WhiteQueenSide {
		b.WriteByte('Q')
	}
	if r.BlackKingSide {
		b.WriteByte('k')
	}
	if r.BlackQueenSide {
		b.WriteByte('q')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// Move is a fully described move. Check and Checkmate are derived when the move is applied.
type Move struct {
	From      Square
	To        Square
	Piece     Piece
	Captured  Piece
	Promotion PieceType
	Castle    CastleSide
	EnPassant bool
	Check     bool
	Checkmate bool
}

// UCI renders the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != NoPieceType {
		s += string(m.Promotion.Letter())
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// sameIntent reports whether two moves describe the same action, ignoring derived fields.
func (m Move) sameIntent(o Move) bool {
	return m.From == o.From &&
		m.To == o.To &&
		m.Promotion == o.Promotion &&
		m.Castle == o.Castle &&
		m.EnPassant == o.EnPassant
}

// DrawReason explains a drawn position.
type DrawReason string

const (
	DrawNone      DrawReason = ""
	DrawStalemate DrawReason = "stalemate"
	DrawFiftyMove DrawReason = "fifty_move"
)
