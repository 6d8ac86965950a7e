package services

import "github.com/shopspring/decimal"

// CommissionRates holds the marketplace cut for each seller tier.
type CommissionRates struct {
	Standard decimal.Decimal
	Premium  decimal.Decimal
}

// Compute returns the rate for the tier and the commission on amount,
// rounded to cents.
func (r CommissionRates) Compute(amount decimal.Decimal, premium bool) (rate, commission decimal.Decimal) {
	rate = r.Standard
	if premium {
		rate = r.Premium
	}
	return rate, amount.Mul(rate).Round(2)
}
