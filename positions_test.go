package nnfind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPositions(t *testing.T) {
	t.Run("Vec", func(t *testing.T) {
		p := VecPositions{{X: 1}, {Y: 2}}
		assert.Equal(t, 2, p.Len())
		assert.Equal(t, r3.Vec{Y: 2}, p.Position(1))
	})

	t.Run("Flat", func(t *testing.T) {
		p, err := NewFlatPositions([]float64{1, 2, 3, 4, 5, 6})
		require.NoError(t, err)
		assert.Equal(t, 2, p.Len())
		assert.Equal(t, r3.Vec{X: 4, Y: 5, Z: 6}, p.Position(1))

		_, err = NewFlatPositions([]float64{1, 2})
		assert.Error(t, err)
	})
}
