package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorToPlaces(t *testing.T) {
	assert.InDelta(t, 110.1, FloorToPlaces(110.19, 1), 1e-12)
	assert.InDelta(t, 0.123, FloorToPlaces(0.12399, 3), 1e-12)
	assert.InDelta(t, -1.3, FloorToPlaces(-1.25, 1), 1e-12)
	assert.InDelta(t, 42, FloorToPlaces(42, 0), 1e-12)
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.9, FloorToStep(0.95, 0.1), 1e-12)
	assert.InDelta(t, 12, FloorToStep(12.7, 1), 1e-12)
	assert.InDelta(t, 3.14, FloorToStep(3.14, 0), 1e-12)
}

func TestParseDecimalSafe(t *testing.T) {
	assert.InDelta(t, 64250.5, ParseDecimalSafe("64250.5"), 1e-9)
	assert.Zero(t, ParseDecimalSafe(""))
	assert.Zero(t, ParseDecimalSafe("garbage"))
}
