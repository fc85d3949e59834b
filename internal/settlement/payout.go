// Package settlement turns contest outcomes into money movements. Pairing and settlement
// each run as exactly one ledger atomic unit.
package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/park285/cheese-arena/internal/money"
)

// Result is the contest result from the board's point of view.
type Result string

const (
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

// PGN returns the PGN result token.
func (r Result) PGN() string {
	switch r {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// Payouts for one finished contest. White + Black + PlatformFee always equals Pot.
type Payouts struct {
	Pot         money.Amount
	White       money.Amount
	Black       money.Amount
	PlatformFee money.Amount
}

// Compute splits the pot. A draw refunds both entry fees and takes no fee; a decisive
// result pays the winner the pot less round(pot × feeRate).
func Compute(result Result, entryFee money.Amount, feeRate decimal.Decimal) Payouts {
	p := Payouts{Pot: entryFee * 2}
	switch result {
	case ResultWhite, ResultBlack:
		p.PlatformFee = p.Pot.MulRate(feeRate)
		win := p.Pot - p.PlatformFee
		if result == ResultWhite {
			p.White = win
		} else {
			p.Black = win
		}
	default:
		p.White = entryFee
		p.Black = entryFee
	}
	return p
}

// For returns the payout of the given side ("white" or "black").
func (p Payouts) For(white bool) money.Amount {
	if white {
		return p.White
	}
	return p.Black
}
