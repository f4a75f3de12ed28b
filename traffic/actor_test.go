package traffic

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/utils/randengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoLaneRoadMap(t *testing.T) roadmap.RoadMap {
	t.Helper()
	roads := []roadmap.RoadSpec{{ID: 1, Name: "a"}}
	lanes := []roadmap.ExtendedLaneSpec{
		{RoadID: 1, LaneSpec: roadmap.LaneSpec{
			ID: 10, Width: 3.5, MaxSpeed: 20, OffsetInRoad: 0,
			Centerline: []geometry.Point{{X: 0, Y: 0}, {X: 200, Y: 0}},
		}},
		{RoadID: 1, LaneSpec: roadmap.LaneSpec{
			ID: 11, Width: 3.5, MaxSpeed: 20, OffsetInRoad: 1,
			Centerline: []geometry.Point{{X: 0, Y: 3.5}, {X: 200, Y: 3.5}},
		}},
	}
	rm, err := roadmap.Build(roads, lanes)
	require.NoError(t, err)
	return rm
}

func newTestVType() VType {
	v := defaultVType("car")
	v.Length, v.Width, v.Height = 5, 1.8, 1.5
	v.MaxSpeed = 20
	return v
}

// Scenario 5 (§8): emergency brake when the leader is close and a hard
// emergencyDecel is configured.
func TestLongitudinalControlEmergencyBrake(t *testing.T) {
	rm := twoLaneRoadMap(t)
	lane, _ := rm.Lane(10)
	vtype := newTestVType()

	w := &LaneWindow{
		Lane: lane, S: 50,
		GapAhead: 5 - vtype.Length/2 - minSpaceCushion,
		TimeLeft: 5.0 / 20.0, // gap / speed, well below tau=1s
		TTRE:     1000,
	}
	if w.GapAhead < 0 {
		w.GapAhead = 0
	}

	a := &TrafficActor{VType: vtype, Speed: 20}
	accel := a.longitudinalControl(w, 0.1)
	assert.LessOrEqual(t, accel, -vtype.EmergencyDecel*0.5)
	assert.GreaterOrEqual(t, accel, -vtype.EmergencyDecel)
}

// Scenario 3 (§8): cut-in accepted when an EgoAgent follower's gap lands
// inside (target_gap/aggressiveness, target_gap+2) and the Bernoulli
// trial (probability 1.0 here) succeeds.
func TestSelectLaneCutInAccept(t *testing.T) {
	rm := twoLaneRoadMap(t)
	curLane, _ := rm.Lane(10)
	otherLane, _ := rm.Lane(11)
	vtype := newTestVType()
	vtype.LCCutinProb = 1.0

	follower := NewLaneOccupant("ego-follower", VehicleState{ID: "ego-follower", Role: RoleEgoAgent, Speed: 10, Length: 5})

	windows := map[int32]*LaneWindow{
		10: {Lane: curLane, S: 50, Feasible: true, AdjTimeLeft: 10, TTRE: 100},
		11: {Lane: otherLane, S: 50, Feasible: true, AdjTimeLeft: 5, TTRE: 100, GapBehind: 6, Follower: &follower},
	}

	a := &TrafficActor{VType: vtype, S: 50, DestOffset: 1e9}
	engine := randengine.New(1)
	best := a.selectLane(curLane, windows, engine, 0)

	require.NotNil(t, best)
	assert.Equal(t, int32(11), best.Lane.ID())
	require.NotNil(t, a.cuttingInto)
	assert.Equal(t, int32(11), *a.cuttingInto)
}

// Scenario 4 (§8): cut-in rejected when the gap is too large to fall in
// the acceptance window.
func TestSelectLaneCutInRejectTooLargeGap(t *testing.T) {
	rm := twoLaneRoadMap(t)
	curLane, _ := rm.Lane(10)
	otherLane, _ := rm.Lane(11)
	vtype := newTestVType()
	vtype.LCCutinProb = 1.0

	follower := NewLaneOccupant("ego-follower", VehicleState{ID: "ego-follower", Role: RoleEgoAgent, Speed: 10, Length: 5})

	windows := map[int32]*LaneWindow{
		10: {Lane: curLane, S: 50, Feasible: true, AdjTimeLeft: 10, TTRE: 100},
		11: {Lane: otherLane, S: 50, Feasible: true, AdjTimeLeft: 1, TTRE: 100, GapBehind: 20, Follower: &follower},
	}

	a := &TrafficActor{VType: vtype, S: 50, DestOffset: 1e9}
	engine := randengine.New(1)
	best := a.selectLane(curLane, windows, engine, 0)

	require.NotNil(t, best)
	assert.Equal(t, int32(10), best.Lane.ID())
	assert.Nil(t, a.cuttingInto)
}
