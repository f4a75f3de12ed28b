package traffic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeToCoverConstantSpeed(t *testing.T) {
	got := timeToCover(100, 10, 0)
	assert.InDelta(t, 10, got, 1e-9)
}

func TestTimeToCoverNoSolutionWhenDecelerating(t *testing.T) {
	// Decelerating from rest can never cover positive distance.
	got := timeToCover(100, 0, -1)
	assert.True(t, math.IsInf(got, 1))
}

func TestTimeToCoverZeroDistanceIsImmediate(t *testing.T) {
	assert.Equal(t, 0.0, timeToCover(0, 5, 0))
}

func TestTimeToCoverAcceleratingFromRest(t *testing.T) {
	// dist = 0.5*a*t^2 => t = sqrt(2*dist/a)
	got := timeToCover(50, 0, 2)
	assert.InDelta(t, math.Sqrt(50), got, 1e-9)
}
