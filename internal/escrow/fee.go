package escrow

import "github.com/shopspring/decimal"

// Platform fee: 2.9% of the amount plus a 30 cent fixed component, the usual
// card-processing shape.
var (
	FeeRate  = decimal.NewFromFloat(0.029)
	FeeFixed = decimal.NewFromFloat(0.30)
)

// ComputeFee returns the platform fee for an escrow amount, rounded half-up
// to cents. ComputeFee(100.00) == 3.20.
func ComputeFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(FeeRate).Add(FeeFixed).Round(2)
}

// ComputeTotal returns the fee and the total the buyer is charged
// (amount + fee).
func ComputeTotal(amount decimal.Decimal) (fee, total decimal.Decimal) {
	fee = ComputeFee(amount)
	return fee, amount.Add(fee)
}
