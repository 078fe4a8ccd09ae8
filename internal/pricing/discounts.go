package pricing

import "github.com/mbd888/quotecore/internal/catalog"

// discountBreak is one quantity-discount tier: at or above Quantity, the
// fractional discount applies.
type discountBreak struct {
	Quantity int
	Rate     float64
}

// quantityDiscounts holds per-process discount ladders, sorted ascending by
// quantity. Sheet work amortizes faster than machining, so its ladder is
// steeper.
var quantityDiscounts = map[catalog.Process][]discountBreak{
	catalog.ProcessCNCMilling: {
		{1, 0}, {10, 0.05}, {50, 0.10}, {100, 0.15}, {250, 0.20},
	},
	catalog.ProcessTurning: {
		{1, 0}, {10, 0.06}, {50, 0.12}, {100, 0.18}, {250, 0.22},
	},
	catalog.ProcessSheet: {
		{1, 0}, {25, 0.08}, {100, 0.15}, {500, 0.25},
	},
}

// DiscountFor returns the fractional quantity discount for a process: the
// highest tier the quantity reaches. Unknown processes get no discount.
func DiscountFor(process catalog.Process, quantity int) float64 {
	breaks, ok := quantityDiscounts[process]
	if !ok {
		return 0
	}
	rate := 0.0
	for _, b := range breaks {
		if quantity >= b.Quantity {
			rate = b.Rate
		}
	}
	return rate
}
