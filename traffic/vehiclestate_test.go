package traffic_test

import (
	"math"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/traffic"
	"github.com/stretchr/testify/assert"
)

func TestBoundingBoxOverlapsSameCenter(t *testing.T) {
	a := traffic.BoundingBox{Center: geometry.Point{X: 0, Y: 0}, Heading: 0, Length: 5, Width: 2}
	b := traffic.BoundingBox{Center: geometry.Point{X: 0, Y: 0}, Heading: 0, Length: 5, Width: 2}
	assert.True(t, a.Overlaps(b))
}

func TestBoundingBoxNoOverlapFarApart(t *testing.T) {
	a := traffic.BoundingBox{Center: geometry.Point{X: 0, Y: 0}, Heading: 0, Length: 5, Width: 2}
	b := traffic.BoundingBox{Center: geometry.Point{X: 100, Y: 100}, Heading: 0, Length: 5, Width: 2}
	assert.False(t, a.Overlaps(b))
}

func TestBoundingBoxOverlapsRotatedSeparatingAxis(t *testing.T) {
	// Two long boxes whose centers are 4 apart in both X and Y: as
	// axis-aligned boxes they would miss, but rotated 45 degrees both lie
	// along the same diagonal and their ends overlap.
	a := traffic.BoundingBox{Center: geometry.Point{X: 0, Y: 0}, Heading: math.Pi / 4, Length: 10, Width: 1}
	b := traffic.BoundingBox{Center: geometry.Point{X: 4, Y: 4}, Heading: math.Pi / 4, Length: 10, Width: 1}
	assert.True(t, a.Overlaps(b))
}

func TestBoundingBoxEdgeTouchingCountsAsOverlap(t *testing.T) {
	a := traffic.BoundingBox{Center: geometry.Point{X: 0, Y: 0}, Heading: 0, Length: 4, Width: 2}
	b := traffic.BoundingBox{Center: geometry.Point{X: 4, Y: 0}, Heading: 0, Length: 4, Width: 2}
	assert.True(t, a.Overlaps(b))
}
