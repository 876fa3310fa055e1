package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeries_SMASeed(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	s := emaSeries(values, 3)
	require.Len(t, s, 5)

	assert.True(t, math.IsNaN(s[0]))
	assert.True(t, math.IsNaN(s[1]))
	assert.Equal(t, 2.0, s[2], "seed is the SMA of the first period")

	// k = 2/(3+1) = 0.5
	assert.InDelta(t, 3.0, s[3], 1e-9)
	assert.InDelta(t, 4.0, s[4], 1e-9)
}

func TestEMASeries_TooShort(t *testing.T) {
	assert.Nil(t, emaSeries([]float64{1, 2}, 3))
	assert.Nil(t, emaSeries(nil, 3))
	assert.Nil(t, emaSeries([]float64{1, 2, 3}, 0))
}

func TestLastEMA(t *testing.T) {
	assert.InDelta(t, 4.0, lastEMA([]float64{1, 2, 3, 4, 5}, 3), 1e-9)
	assert.True(t, math.IsNaN(lastEMA([]float64{1}, 3)))
}

func TestLastSMA(t *testing.T) {
	assert.Equal(t, 4.0, lastSMA([]float64{1, 2, 3, 4, 5}, 3))
	assert.True(t, math.IsNaN(lastSMA([]float64{1, 2}, 3)))
}
