package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundsAccumulator(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var a boundsAccumulator
		assert.Nil(t, a.bounds())
	})

	t.Run("first point seeds every extent", func(t *testing.T) {
		var a boundsAccumulator
		a.add(-33.9, 151.2)
		assert.Equal(t, &BoundingBox{MinLat: -33.9, MinLng: 151.2, MaxLat: -33.9, MaxLng: 151.2}, a.bounds())
	})

	t.Run("running min max", func(t *testing.T) {
		var a boundsAccumulator
		a.add(42.0, 13.0)
		a.add(37.5, 15.1)
		a.add(46.2, 11.0)
		assert.Equal(t, &BoundingBox{MinLat: 37.5, MinLng: 11.0, MaxLat: 46.2, MaxLng: 15.1}, a.bounds())
	})
}

func TestBoundingBox_Contains(t *testing.T) {
	b := BoundingBox{MinLat: 45, MinLng: 10, MaxLat: 50, MaxLng: 20}

	assert.True(t, b.Contains(47, 15))
	assert.True(t, b.Contains(45, 10), "edges are inside")
	assert.True(t, b.Contains(50, 20), "edges are inside")
	assert.False(t, b.Contains(44.9, 15))
	assert.False(t, b.Contains(47, 20.1))
}

func TestBoundingBox_Pad(t *testing.T) {
	b := BoundingBox{MinLat: 45, MinLng: 10, MaxLat: 50, MaxLng: 20}
	assert.Equal(t, BoundingBox{MinLat: 44.5, MinLng: 9.5, MaxLat: 50.5, MaxLng: 20.5}, b.Pad(0.5))

	world := BoundingBox{MinLat: -89.5, MinLng: -179.5, MaxLat: 89.5, MaxLng: 179.5}
	assert.Equal(t, BoundingBox{MinLat: -90, MinLng: -180, MaxLat: 90, MaxLng: 180}, world.Pad(1))

	assert.Equal(t, b, b.Pad(0))
	assert.Equal(t, b, b.Pad(-2), "negative padding is ignored")
}

func TestBoundingBox_PadOutOfRangePoint(t *testing.T) {
	// Classify keeps finite coordinates outside the world range.
	res := Classify([]Feature{point(-3.5, 95.0, nil)})
	require.NotNil(t, res.Bounds)

	padded := res.Bounds.Pad(1)
	assert.LessOrEqual(t, padded.MinLat, padded.MaxLat)
	assert.LessOrEqual(t, padded.MinLng, padded.MaxLng)
	assert.Equal(t, BoundingBox{MinLat: 89, MinLng: -4.5, MaxLat: 90, MaxLng: -2.5}, padded)
}
