package quote

import (
	"github.com/shopspring/decimal"

	"github.com/veildex/swap-engine/pkg/model"
)

// Fee rates in basis points. These constants are the single source for both
// the quoting path and the submit path, so the two can never diverge.
const (
	BaseFeeBps    = 25
	PrivacyFeeBps = 10
)

var tenThousand = decimal.NewFromInt(10000)

// FeeBpsFor returns the total fee rate for a swap.
func FeeBpsFor(privacyMode bool) int {
	if privacyMode {
		return BaseFeeBps + PrivacyFeeBps
	}
	return BaseFeeBps
}

// ComputeFee derives the fee breakdown for a gross output amount in base
// units: feeAmount = floor(gross * totalBps / 10000).
func ComputeFee(gross decimal.Decimal, privacyMode bool) model.FeeBreakdown {
	privacyBps := 0
	if privacyMode {
		privacyBps = PrivacyFeeBps
	}
	totalBps := BaseFeeBps + privacyBps

	amount := gross.Mul(decimal.NewFromInt(int64(totalBps))).Div(tenThousand).Floor()

	return model.FeeBreakdown{
		BaseBps:    BaseFeeBps,
		PrivacyBps: privacyBps,
		TotalBps:   totalBps,
		Amount:     amount,
	}
}

// NetOutput applies the fee to a gross output, clamped at zero.
func NetOutput(gross decimal.Decimal, fee model.FeeBreakdown) decimal.Decimal {
	net := gross.Sub(fee.Amount)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}
