package traffic

import (
	"math"
	"strconv"

	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/utils/randengine"
	"github.com/sirupsen/logrus"
)

var flowSpawnLog = logrus.WithField("module", "traffic.flow")

// TrySpawn evaluates one flow for this tick (§4.10): if within its time
// window and due per its period, resolves a depart pose/speed and
// constructs a tentative actor; the caller (provider) is responsible for
// the bbox-overlap check and for discarding the candidate silently on
// rejection (§7 SpawnRejected is logged at debug, not treated as an
// error).
func TrySpawn(f *FlowSpec, rm roadmap.RoadMap, routeIdx *RouteLengthIndex, engine *randengine.Engine, simTime float64) *TrafficActor {
	if simTime < f.Begin || simTime >= f.End {
		return nil
	}
	if f.VehiclesPerHour <= 0 {
		return nil
	}
	if simTime-f.lastSpawn < f.Period() {
		return nil
	}

	road, ok := rm.Road(f.Route.Roads[0])
	if !ok {
		return nil
	}
	lanes := road.DrivingLanes()
	if f.DepartLane < 0 || f.DepartLane >= len(lanes) {
		flowSpawnLog.WithField("flow", f.ID).Warn("departLane out of range, skipping tick")
		return nil
	}
	lane := lanes[f.DepartLane]

	s := resolveOffset(f.DepartPos, lane.Length(), engine)
	speed := resolveDepartSpeed(f.DepartSpeed, lane.MaxSpeed(), f.VType.MaxSpeed, engine)

	destRoad, _ := rm.Road(f.Route.Roads[len(f.Route.Roads)-1])
	destLanes := destRoad.DrivingLanes()
	destLaneIdx := f.ArrivalLane
	if destLaneIdx < 0 || destLaneIdx >= len(destLanes) {
		destLaneIdx = 0
	}
	destOffset := resolveOffset(f.ArrivalPos, destLanes[destLaneIdx].Length(), engine)

	f.lastSpawn = simTime
	f.spawnCounter++
	return NewTrafficActor(f.ID+"-"+strconv.Itoa(f.spawnCounter), f.VType, f.Route, lane.ID(), s, speed, destLaneIdx, destOffset, rm, engine)
}

func resolveOffset(o Offset, laneLength float64, engine *randengine.Engine) float64 {
	switch o.Kind {
	case OffsetMax:
		return laneLength
	case OffsetRandom:
		return engine.Float64() * laneLength
	default:
		if o.Value < 0 || o.Value > laneLength {
			return math.Max(0, math.Min(o.Value, laneLength))
		}
		return o.Value
	}
}

func resolveDepartSpeed(d DepartSpeed, laneSpeedLimit, vMax float64, engine *randengine.Engine) float64 {
	switch d.Kind {
	case DepartSpeedMax:
		return vMax
	case DepartSpeedLimit:
		return laneSpeedLimit
	case DepartSpeedRandom:
		return engine.Float64() * math.Min(laneSpeedLimit, vMax)
	default:
		return d.Value
	}
}
