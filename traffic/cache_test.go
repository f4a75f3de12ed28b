package traffic

import (
	"math"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleLaneRoadMap(t *testing.T) roadmap.RoadMap {
	t.Helper()
	roads := []roadmap.RoadSpec{{ID: 1, Name: "a"}}
	lanes := []roadmap.ExtendedLaneSpec{
		{RoadID: 1, LaneSpec: roadmap.LaneSpec{
			ID: 10, Width: 3.5, MaxSpeed: 20,
			Centerline: []geometry.Point{{X: 0, Y: 0}, {X: 200, Y: 0}},
		}},
	}
	rm, err := roadmap.Build(roads, lanes)
	require.NoError(t, err)
	return rm
}

func TestSpatialLaneCacheFindLeaderPicksNearestAhead(t *testing.T) {
	rm := singleLaneRoadMap(t)
	idx := NewRouteLengthIndex(rm)
	route, err := idx.Register([]int32{1})
	require.NoError(t, err)

	cache := NewSpatialLaneCache(rm)
	cache.Build([]LaneProjection{
		{LaneID: 10, S: 50, Vehicle: NewLaneOccupant("near", VehicleState{ID: "near", Speed: 5, Length: 4})},
		{LaneID: 10, S: 80, Vehicle: NewLaneOccupant("far", VehicleState{ID: "far", Speed: 5, Length: 4})},
	})

	res := cache.FindLeader(10, 20, route.Key, 0, idx, 4)
	require.NotNil(t, res.Leader)
	assert.Equal(t, "near", res.Leader.ID)
	assert.InDelta(t, 50-2-20, res.Distance, 1e-9)
}

func TestSpatialLaneCacheFindLeaderNoneReturnsInf(t *testing.T) {
	rm := singleLaneRoadMap(t)
	idx := NewRouteLengthIndex(rm)
	route, err := idx.Register([]int32{1})
	require.NoError(t, err)

	cache := NewSpatialLaneCache(rm)
	cache.Build(nil)

	res := cache.FindLeader(10, 20, route.Key, 0, idx, 4)
	assert.Nil(t, res.Leader)
	assert.True(t, math.IsInf(res.Distance, 1))
}

func TestSpatialLaneCacheFindFollowerPicksNearestBehind(t *testing.T) {
	rm := singleLaneRoadMap(t)
	cache := NewSpatialLaneCache(rm)
	cache.Build([]LaneProjection{
		{LaneID: 10, S: 10, Vehicle: NewLaneOccupant("behind-near", VehicleState{ID: "behind-near", Speed: 5, Length: 4})},
		{LaneID: 10, S: 2, Vehicle: NewLaneOccupant("behind-far", VehicleState{ID: "behind-far", Speed: 5, Length: 4})},
	})

	res := cache.FindFollower(10, 50)
	require.NotNil(t, res.Follower)
	assert.Equal(t, "behind-near", res.Follower.ID)
	assert.InDelta(t, 50-(10+2), res.Distance, 1e-9)
}
