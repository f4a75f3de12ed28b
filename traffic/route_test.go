package traffic_test

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/traffic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoRoadMap(t *testing.T) roadmap.RoadMap {
	t.Helper()
	roads := []roadmap.RoadSpec{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	lanes := []roadmap.ExtendedLaneSpec{
		{RoadID: 1, LaneSpec: roadmap.LaneSpec{
			ID: 101, Width: 3.5, MaxSpeed: 10,
			Centerline: []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}},
			Successors: []int32{201},
		}},
		{RoadID: 2, LaneSpec: roadmap.LaneSpec{
			ID: 201, Width: 3.5, MaxSpeed: 10,
			Centerline:   []geometry.Point{{X: 100, Y: 0}, {X: 200, Y: 0}},
			Predecessors: []int32{101},
		}},
	}
	rm, err := roadmap.Build(roads, lanes)
	require.NoError(t, err)
	return rm
}

func TestRouteLengthIndexTerminalRoad(t *testing.T) {
	rm := twoRoadMap(t)
	idx := traffic.NewRouteLengthIndex(rm)
	route, err := idx.Register([]int32{1, 2})
	require.NoError(t, err)

	assert.Equal(t, float64(100), idx.RemainingLength(route.Key, 201, 1))
	assert.GreaterOrEqual(t, idx.RemainingLength(route.Key, 101, 0), float64(100))
}

func TestRouteLengthIndexUnknownRoadRejectsWholeRoute(t *testing.T) {
	rm := twoRoadMap(t)
	idx := traffic.NewRouteLengthIndex(rm)
	_, err := idx.Register([]int32{1, 999})
	assert.Error(t, err)
	var cfgErr *traffic.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRouteLengthIndexIdempotent(t *testing.T) {
	rm := twoRoadMap(t)
	idx := traffic.NewRouteLengthIndex(rm)
	r1, err := idx.Register([]int32{1, 2})
	require.NoError(t, err)
	r2, err := idx.Register([]int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, r1.Key, r2.Key)
}

func TestRouteLengthIndexFallsBackToLaneLength(t *testing.T) {
	rm := twoRoadMap(t)
	idx := traffic.NewRouteLengthIndex(rm)
	route, err := idx.Register([]int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, float64(100), idx.RemainingLength(route.Key, 201, 99))
}
