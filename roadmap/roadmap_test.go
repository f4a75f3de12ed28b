package roadmap_test

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// straightMap builds two roads of one lane each, connected head-to-tail
// along the X axis: road 1 is [0,100], road 2 is [100,200].
func straightMap(t *testing.T) roadmap.RoadMap {
	t.Helper()
	roads := []roadmap.RoadSpec{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
	}
	lanes := []roadmap.ExtendedLaneSpec{
		{
			RoadID: 1,
			LaneSpec: roadmap.LaneSpec{
				ID: 101, Width: 3.5, MaxSpeed: 16.7,
				Centerline: []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}},
				Successors: []int32{201},
			},
		},
		{
			RoadID: 2,
			LaneSpec: roadmap.LaneSpec{
				ID: 201, Width: 3.5, MaxSpeed: 16.7,
				Centerline:   []geometry.Point{{X: 100, Y: 0}, {X: 200, Y: 0}},
				Predecessors: []int32{101},
			},
		},
	}
	rm, err := roadmap.Build(roads, lanes)
	require.NoError(t, err)
	return rm
}

func TestBuildTopology(t *testing.T) {
	rm := straightMap(t)

	l1, ok := rm.Lane(101)
	require.True(t, ok)
	l2, ok := rm.Lane(201)
	require.True(t, ok)

	assert.Equal(t, float64(100), l1.Length())
	assert.Same(t, l2, l1.UniqueSuccessor())
	assert.Same(t, l1, l2.UniquePredecessor())

	r1, ok := rm.Road(1)
	require.True(t, ok)
	r2, ok := rm.Road(2)
	require.True(t, ok)
	require.Len(t, r1.OutgoingRoads(), 1)
	assert.Equal(t, int32(2), r1.OutgoingRoads()[0].ID())
	require.Len(t, r2.IncomingRoads(), 1)
	assert.Equal(t, int32(1), r2.IncomingRoads()[0].ID())
}

func TestLaneGeometry(t *testing.T) {
	rm := straightMap(t)
	l1, _ := rm.Lane(101)

	mid := l1.PositionAt(50)
	assert.InDelta(t, 50, mid.X, 1e-9)
	assert.InDelta(t, 0, mid.Y, 1e-9)

	assert.InDelta(t, 0, l1.DirectionAt(10), 1e-9)
	assert.Equal(t, l1.CurvatureRadiusAt(50), l1.CurvatureRadiusAt(50))

	s := l1.ProjectToLane(geometry.Point{X: 30, Y: 2})
	assert.InDelta(t, 30, s, 1e-6)
}

func TestNearestLanes(t *testing.T) {
	rm := straightMap(t)
	near := rm.NearestLanes(geometry.Point{X: 5, Y: 0}, 50, 2, true)
	require.Len(t, near, 1)
	assert.Equal(t, int32(101), near[0].ID())
}

func TestRandomRouteFromRoad(t *testing.T) {
	rm := straightMap(t)
	draw := func(n int) int { return 0 }
	route := rm.RandomRouteFromRoad(1, draw, 5)
	assert.Equal(t, []int32{1, 2}, route)
}

func TestUnknownLookupsMiss(t *testing.T) {
	rm := straightMap(t)
	_, ok := rm.Lane(999)
	assert.False(t, ok)
	_, ok = rm.Road(999)
	assert.False(t, ok)
}
