package invoice

import (
	"github.com/shopspring/decimal"
)

var backfillTolerance = decimal.RequireFromString("0.05")

// Backfill derives the one missing member of net, tax and gross from the other
// two, then aligns gross with net + tax when they are within five cents.
// Derived values are never negative.
func Backfill(f Fields) Fields {
	net, tax, gross := f.NetAmount, f.TaxAmount, f.GrossAmount

	switch {
	case !net.Valid && tax.Valid && gross.Valid:
		if base := gross.Decimal.Sub(tax.Decimal).Round(2); !base.IsNegative() {
			net = decimal.NewNullDecimal(base)
		}
	case !tax.Valid && net.Valid && gross.Valid:
		if diff := gross.Decimal.Sub(net.Decimal).Round(2); !diff.IsNegative() {
			tax = decimal.NewNullDecimal(diff)
		}
	case !gross.Valid && net.Valid && tax.Valid:
		gross = decimal.NewNullDecimal(net.Decimal.Add(tax.Decimal).Round(2))
	}

	if net.Valid && tax.Valid {
		sum := net.Decimal.Add(tax.Decimal).Round(2)
		if !gross.Valid || sum.Sub(gross.Decimal).Abs().LessThanOrEqual(backfillTolerance) {
			gross = decimal.NewNullDecimal(sum)
		}
	}

	f.NetAmount, f.TaxAmount, f.GrossAmount = net, tax, gross
	return f
}
