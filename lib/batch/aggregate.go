package batch

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// FeeFloorSats and FeeRate are the defaults for the network fee estimate:
// max(floor, ceil(total * rate)). The fee_floor and fee_rate config keys
// override them.
const (
	FeeFloorSats = 500
	FeeRate      = 0.001
)

// Summary is the derived aggregate over a recipient list. It has no
// lifecycle of its own; recompute it whenever the list changes.
type Summary struct {
	Count            int             `json:"count"`
	ValidCount       int             `json:"validCount"`
	InvalidCount     int             `json:"invalidCount"`
	DuplicateCount   int             `json:"duplicateCount"`
	TotalSats        int64           `json:"totalSats"`
	TotalBTC         decimal.Decimal `json:"totalBtc"`
	TotalUSD         decimal.Decimal `json:"totalUsd"`
	EstimatedFeeSats int64           `json:"estimatedFeeSats"`
	PriceAvailable   bool            `json:"priceAvailable"`
}

// Summarize computes totals, counts, and the fee estimate for the given
// recipients. Every entry counts toward the total regardless of status;
// btcPrice is the current USD price per BTC, or zero when unavailable.
func Summarize(recipients []Recipient, btcPrice decimal.Decimal) Summary {
	s := Summary{Count: len(recipients)}

	var total int64
	for _, r := range recipients {
		total += ToBaseUnits(r.Amount, r.Unit)
		switch r.Status {
		case StatusValid:
			s.ValidCount++
		case StatusInvalid:
			s.InvalidCount++
		case StatusDuplicate:
			s.DuplicateCount++
		}
	}

	s.TotalSats = total
	s.TotalBTC = decimal.NewFromInt(total).Div(decimal.NewFromInt(SatsPerBTC))
	if btcPrice.IsPositive() {
		s.TotalUSD = s.TotalBTC.Mul(btcPrice)
		s.PriceAvailable = true
	}
	s.EstimatedFeeSats = EstimateFee(total)
	return s
}

// EstimateFee returns max(floor, ceil(totalSats * rate)), taking the floor
// and rate from the fee_floor/fee_rate config keys when set. It is
// monotonically non-decreasing in the total and never below the floor.
func EstimateFee(totalSats int64) int64 {
	floor := int64(FeeFloorSats)
	if v := viper.GetInt64("fee_floor"); v > 0 {
		floor = v
	}
	rate := FeeRate
	if v := viper.GetFloat64("fee_rate"); v > 0 {
		rate = v
	}

	fee := decimal.NewFromInt(totalSats).
		Mul(decimal.NewFromFloat(rate)).
		Ceil().
		IntPart()
	if fee < floor {
		return floor
	}
	return fee
}
