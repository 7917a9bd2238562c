package checkout

import "github.com/shopspring/decimal"

// Totals is the money breakdown stored on the order. All arithmetic is in
// integer cents; only the tax computation passes through decimal.
type Totals struct {
	SubtotalCents int
	TaxCents      int
	TotalCents    int
}

func lineTotalCents(unitPriceCents, qty int) int {
	return unitPriceCents * qty
}

// computeTotals is the one place tax is derived. The configured rate is in
// basis points; rounding is half-up on the cent.
func computeTotals(subtotalCents, taxRateBasisPoints int) Totals {
	tax := 0
	if taxRateBasisPoints > 0 && subtotalCents > 0 {
		taxDec := decimal.NewFromInt(int64(subtotalCents)).
			Mul(decimal.NewFromInt(int64(taxRateBasisPoints))).
			Div(decimal.NewFromInt(10000)).
			Round(0)
		tax = int(taxDec.IntPart())
	}
	return Totals{
		SubtotalCents: subtotalCents,
		TaxCents:      tax,
		TotalCents:    subtotalCents + tax,
	}
}
