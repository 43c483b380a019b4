package congestion_pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowKeepsNewestCapacityElements(t *testing.T) {
	window := NewWindow[int](10)
	for i := 0; i < 15; i++ {
		window.Push(i)
	}
	require.Equal(t, 10, window.Len())
	assert.True(t, window.Full())
	assert.Equal(t, []int{5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, window.Values())
	assert.Equal(t, 5, window.At(0))
	last, loaded := window.Last()
	assert.True(t, loaded)
	assert.Equal(t, 14, last)
}

func TestWindowPartialAndReset(t *testing.T) {
	window := NewWindow[float64](4)
	_, loaded := window.Last()
	assert.False(t, loaded)

	window.Push(1)
	window.Push(2)
	assert.Equal(t, 2, window.Len())
	assert.False(t, window.Full())
	assert.Equal(t, []float64{1, 2}, window.Values())
	assert.Panics(t, func() { window.At(2) })

	window.Reset()
	assert.Zero(t, window.Len())
	assert.Equal(t, 4, window.Cap())
	window.Push(3)
	assert.Equal(t, []float64{3}, window.Values())
}
