package utils

import (
	"github.com/shopspring/decimal"
)

// FloorToPlaces floors val to the given number of decimal places. Exchange
// precision rules always round down: rounding a price or quantity up can
// reject an order or exceed the account's margin.
func FloorToPlaces(val float64, places int32) float64 {
	d := decimal.NewFromFloat(val).RoundFloor(places)
	f, _ := d.Float64()
	return f
}

// FloorToStep floors val to the nearest multiple of step. A step of zero
// returns val unchanged.
func FloorToStep(val, step float64) float64 {
	if step <= 0 {
		return val
	}
	v := decimal.NewFromFloat(val)
	s := decimal.NewFromFloat(step)
	f, _ := v.Div(s).Floor().Mul(s).Float64()
	return f
}

// ParseDecimalSafe parses s, falling back to zero on error. Exchange payloads
// carry numbers as strings and occasionally omit them entirely.
func ParseDecimalSafe(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
