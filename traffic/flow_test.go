package traffic

import (
	"math"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/utils/randengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straightFlowMap(t *testing.T) roadmap.RoadMap {
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

// Scenario 1 (§8): a single flow on a single straight lane spawns at its
// configured period and never spawns outside its [begin, end) window.
func TestTrySpawnRespectsWindowAndPeriod(t *testing.T) {
	rm := straightFlowMap(t)
	idx := NewRouteLengthIndex(rm)
	route, err := idx.Register([]int32{1})
	require.NoError(t, err)

	f := &FlowSpec{
		ID: "f1", VType: DefaultVTypeFrom(VehicleState{}),
		Route: route, VehiclesPerHour: 360, // period = 10s
		Begin: 0, End: 100,
		lastSpawn: math.Inf(-1),
	}
	engine := randengine.New(1)

	assert.Nil(t, TrySpawn(f, rm, idx, engine, -1))
	assert.Nil(t, TrySpawn(f, rm, idx, engine, 100))

	a := TrySpawn(f, rm, idx, engine, 0)
	require.NotNil(t, a)

	// Immediately retrying before one period elapses must not spawn.
	assert.Nil(t, TrySpawn(f, rm, idx, engine, 5))

	a2 := TrySpawn(f, rm, idx, engine, 10)
	require.NotNil(t, a2)
	assert.NotEqual(t, a.State().ID, a2.State().ID)
}

func TestTrySpawnZeroRateNeverSpawns(t *testing.T) {
	rm := straightFlowMap(t)
	idx := NewRouteLengthIndex(rm)
	route, err := idx.Register([]int32{1})
	require.NoError(t, err)

	f := &FlowSpec{
		ID: "f2", VType: DefaultVTypeFrom(VehicleState{}),
		Route: route, VehiclesPerHour: 0,
		Begin: 0, End: math.Inf(1),
		lastSpawn: math.Inf(-1),
	}
	engine := randengine.New(1)
	assert.Nil(t, TrySpawn(f, rm, idx, engine, 0))
	assert.Nil(t, TrySpawn(f, rm, idx, engine, 1000))
}
