package arbitrage

// FeeModel charges the marketplace's sale commission: a basis-point share of
// the sell price with an optional floor, in integer minor units.
type FeeModel struct {
	SaleFeeBps int64
	MinFee     int64
}

// Apply returns the commission withheld from a sale at sellPrice, rounded
// half up to the nearest minor unit.
func (f FeeModel) Apply(sellPrice int64) int64 {
	if sellPrice <= 0 {
		return 0
	}
	fee := (sellPrice*f.SaleFeeBps + 5000) / 10000
	if fee < f.MinFee {
		fee = f.MinFee
	}
	return fee
}
