package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	data := []float64{50, 10, 40, 20, 30}
	assert.Equal(t, 30.0, percentile(data, 50))
	assert.Equal(t, 50.0, percentile(data, 99))
	assert.Equal(t, 10.0, percentile(data, 0))
}

func TestSimulateStaysNearBeat(t *testing.T) {
	for i := 0; i < 100; i++ {
		m := simulate(3, 90, 0.05)
		assert.Equal(t, 90.0, m.BPM)
		assert.LessOrEqual(t, math.Abs(m.Offset), 0.05)
		assert.InDelta(t, 3, m.Timestamp, 0.05)
	}
}
