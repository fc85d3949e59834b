package rules

import "errors"

var (
	ErrBadSquare    = errors.New("rules: invalid square")
	ErrBadPromotion = errors.New("rules: invalid promotion piece")
	ErrBadMove      = errors.New("rules: malformed move")
	ErrBadFEN       = errors.New("rules: invalid FEN")
)
