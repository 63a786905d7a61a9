package booking

import "github.com/shopspring/decimal"

// DefaultRefundRate keeps a flat 25% cancellation fee.
var DefaultRefundRate = decimal.RequireFromString("0.75")

// CancellationPolicy decides how much of a reservation's price comes back
// on cancellation.
type CancellationPolicy struct {
	RefundRate decimal.Decimal
}

func NewCancellationPolicy(rate decimal.Decimal) CancellationPolicy {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = DefaultRefundRate
	}
	return CancellationPolicy{RefundRate: rate}
}

// Refund returns the amount credited back for r, rounded to cents.
func (p CancellationPolicy) Refund(r Reservation) decimal.Decimal {
	return r.TotalPrice.Mul(p.RefundRate).Round(2)
}
