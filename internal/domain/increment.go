package domain

import "github.com/shopspring/decimal"

// IncrementRule applies Increment to prices strictly below Below.
// A rule with an invalid Below is the unbounded catch-all.
type IncrementRule struct {
	Below     decimal.NullDecimal
	Increment decimal.Decimal
}

type IncrementTable []IncrementRule

// IncrementAt walks the table in order and returns the increment of the first
// rule whose bound is above price. The last rule covers anything left over.
func (t IncrementTable) IncrementAt(price decimal.Decimal) decimal.Decimal {
	if len(t) == 0 {
		return decimal.Zero
	}
	for _, r := range t {
		if !r.Below.Valid || r.Below.Decimal.GreaterThan(price) {
			return r.Increment
		}
	}
	return t[len(t)-1].Increment
}

// MinimumBid is the smallest amount that beats price.
func (t IncrementTable) MinimumBid(price decimal.Decimal) decimal.Decimal {
	return price.Add(t.IncrementAt(price))
}

func (t IncrementTable) Clone() IncrementTable {
	if t == nil {
		return nil
	}
	out := make(IncrementTable, len(t))
	copy(out, t)
	return out
}
