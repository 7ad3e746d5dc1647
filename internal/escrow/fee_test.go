package escrow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeFee(t *testing.T) {
	cases := []struct {
		amount string
		fee    string
	}{
		{"100.00", "3.20"},  // 2.90 + 0.30
		{"1.00", "0.33"},    // 0.029 + 0.30 = 0.329, rounds up
		{"0.01", "0.30"},    // 0.00029 + 0.30 = 0.30029, rounds down
		{"10.00", "0.59"},   // 0.29 + 0.30
		{"50.00", "1.75"},   // 1.45 + 0.30
		{"250.00", "7.55"},  // 7.25 + 0.30
		{"33.33", "1.27"},   // 0.966570 + 0.30 = 1.26657, rounds up
		{"500.00", "14.80"}, // 14.50 + 0.30
	}

	for _, tc := range cases {
		fee := ComputeFee(dec(tc.amount))
		assert.True(t, fee.Equal(dec(tc.fee)),
			"ComputeFee(%s) = %s, want %s", tc.amount, fee, tc.fee)
	}
}

func TestComputeFeeRoundsHalfUp(t *testing.T) {
	// 5.00 * 0.029 + 0.30 = 0.445 exactly; half-up gives 0.45, not the
	// banker's 0.44.
	fee := ComputeFee(dec("5.00"))
	assert.True(t, fee.Equal(dec("0.45")), "got %s", fee)
}

func TestComputeTotal(t *testing.T) {
	fee, total := ComputeTotal(dec("100.00"))
	assert.True(t, fee.Equal(dec("3.20")), "fee = %s", fee)
	assert.True(t, total.Equal(dec("103.20")), "total = %s", total)
}

func TestComputeFeeTwoDecimalPlaces(t *testing.T) {
	for _, amount := range []string{"0.01", "19.99", "123.45", "9999.99"} {
		fee := ComputeFee(dec(amount))
		assert.LessOrEqual(t, int(fee.Exponent()*-1), 2,
			"fee for %s has more than 2 decimal places: %s", amount, fee)
	}
}
