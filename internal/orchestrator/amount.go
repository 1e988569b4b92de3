package orchestrator

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals of USDC and USDCx
const Decimals = 6

// ParseAmount converts a decimal token amount to base units
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %q is not positive", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}

	return d.Shift(Decimals).BigInt(), nil
}

// FormatUnits renders base units as a decimal amount with at least two decimals
func FormatUnits(units *big.Int) string {
	d := decimal.NewFromBigInt(units, -Decimals)
	if !d.Equal(d.Truncate(2)) {
		return d.String()
	}
	return d.StringFixed(2)
}
