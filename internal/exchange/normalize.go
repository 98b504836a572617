package exchange

import (
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/utils"
)

// normalizeEntryPrice picks the position entry price from the payload. The
// venue reports it under different keys depending on endpoint version and
// position mode; the preference order matters and must not change, or
// recovered positions would drift between restarts.
func normalizeEntryPrice(p rawPosition) float64 {
	candidates := []string{
		p.EntryPrice,
		p.MarkPrice,
		p.OpenPriceAvg,
		p.AvgPrice,
		p.AverageOpenPrice,
	}
	for _, c := range candidates {
		if v := utils.ParseDecimalSafe(c); v > 0 {
			return v
		}
	}
	return 0
}

// normalizeFillPrice picks the average fill price from an order detail.
func normalizeFillPrice(o rawOrderDetail) float64 {
	candidates := []string{
		o.PriceAvg,
		o.FillPrice,
		o.AvgPrice,
	}
	for _, c := range candidates {
		if v := utils.ParseDecimalSafe(c); v > 0 {
			return v
		}
	}
	return 0
}
