package common

import "github.com/shopspring/decimal"

// Cents is the canonical currency representation: integer minor units.
// All discount and commission arithmetic resolves to Cents at each boundary
// so that applied amounts always sum exactly.
type Cents = int64

var bpsDenominator = decimal.NewFromInt(10_000)

// RoundCents rounds a decimal amount expressed in cents half away from zero.
func RoundCents(d decimal.Decimal) Cents {
	return d.Round(0).IntPart()
}

// PercentOf applies a basis-point rate to an amount, rounding half away from
// zero. 1000 bps == 10%.
func PercentOf(amount Cents, bps int32) Cents {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return RoundCents(decimal.NewFromInt(amount).Mul(decimal.NewFromInt32(bps)).Div(bpsDenominator))
}

// ClampCents bounds v to [0, max].
func ClampCents(v, max Cents) Cents {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
