package models

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineTotal is qty x price less the discount percentage, rounded to 2 places.
func LineTotal(qty, price, discountPct decimal.Decimal) decimal.Decimal {
	gross := qty.Mul(price)
	net := gross.Mul(hundred.Sub(discountPct)).Div(hundred)
	return net.Round(2)
}

// Totals sums line totals and applies the tax rate (a fraction such as 0.18).
func Totals(lineTotals []decimal.Decimal, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Sum(decimal.Zero, lineTotals...)
	tax = subtotal.Mul(taxRate).Round(2)
	return subtotal, tax, subtotal.Add(tax)
}
