package batch

import (
	"github.com/shopspring/decimal"
)

// Unit is the display unit a recipient amount was entered in. Amounts are
// normalized to sats (the base unit) before anything touches the chain.
type Unit string

const (
	UnitSats Unit = "sats"
	UnitSBTC Unit = "sBTC"
	UnitBTC  Unit = "BTC"
)

// SatsPerBTC is the base-unit multiplier shared by the BTC and sBTC units.
const SatsPerBTC = 100_000_000

// ValidUnit reports whether u is one of the three supported units.
func ValidUnit(u Unit) bool {
	switch u {
	case UnitSats, UnitSBTC, UnitBTC:
		return true
	}
	return false
}

// Multiplier returns the number of base units per display unit.
func (u Unit) Multiplier() int64 {
	switch u {
	case UnitBTC, UnitSBTC:
		return SatsPerBTC
	default:
		return 1
	}
}

// ToBaseUnits converts a raw amount string in the given unit to integer sats,
// truncating toward zero. Unparseable input converts to 0.
func ToBaseUnits(amount string, unit Unit) int64 {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0
	}
	sats := d.Mul(decimal.NewFromInt(unit.Multiplier()))
	return sats.Truncate(0).IntPart()
}
