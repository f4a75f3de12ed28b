package traffic

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/utils/randengine"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var actorLog = logrus.WithField("module", "traffic.actor")

const (
	minSpaceCushion     = 2.5
	maxAngularVelocity  = 2.0
	curvatureSpeedLimit = 0.5714 // empirical: |radius| * this ≈ safe speed, §4.6
	cutinHoldSecs       = 2.0
)

// TrafficActor is the per-vehicle decision loop: pose, route progress,
// lane evaluation, cut-in, target-speed, acceleration, and steering
// (§4 component design, §2 "40%" share). Its algorithmic content is
// grounded on _TrafficActor in the original local-traffic-provider
// source; its Go shape (exported state, a Decide that writes only this
// actor's own fields, plus a Commit that is the only place next_* fields
// become state) follows the two-pass contract of §5.
type TrafficActor struct {
	ID     string
	VType  VType
	Route  *Route
	RouteIndex int

	LaneID int32
	S      float64
	T      float64

	Speed              float64
	Heading            float64
	Position           geometry.Point
	LinearAcceleration geometry.Point

	DestLaneIndex int
	DestOffset    float64

	Source string
	Role   Role

	OffRoute      bool
	DoneWithRoute bool

	// speedFactor is VType.SpeedFactor perturbed once at construction by a
	// Gaussian draw scaled by SpeedDev — a supplemented feature restored
	// from the original source (SPEC_FULL.md §11).
	speedFactor float64

	cuttingInto    *int32
	cutinEnteredAt float64 // sim time the actor's lane became cuttingInto's lane
	cutinPinned    bool

	// Decide writes the next* fields (plus targetLaneID and the cut-in
	// bookkeeping above); Commit is the only place they become the pose,
	// speed and lane fields above (§5 two-pass contract).
	nextPosition           geometry.Point
	nextHeading            float64
	nextSpeed              float64
	nextLinearAcceleration geometry.Point
	nextLaneID             int32
	nextS                  float64
	nextT                  float64
	nextRouteIndex         int
	targetLaneID           int32
}

// NewTrafficActor constructs an actor at a resolved depart pose, drawing
// its one-time speedFactor jitter from engine (§11 supplemented feature;
// consumes one NormFloat64 draw in the actor-construction order documented
// by the provider).
func NewTrafficActor(id string, vtype VType, route *Route, laneID int32, s, speed float64, destLaneIndex int, destOffset float64, rm roadmap.RoadMap, engine *randengine.Engine) *TrafficActor {
	lane, _ := rm.Lane(laneID)
	pos := lane.PositionAt(s)
	heading := lane.DirectionAt(s)

	jitter := 1.0
	if vtype.SpeedDev > 0 {
		jitter = 1 + vtype.SpeedDev*engine.NormFloat64()
		if jitter < 0.1 {
			jitter = 0.1
		}
	}

	return &TrafficActor{
		ID: id, VType: vtype, Route: route,
		LaneID: laneID, S: s, Speed: speed,
		Heading: heading, Position: pos,
		DestLaneIndex: destLaneIndex, DestOffset: destOffset,
		speedFactor: vtype.SpeedFactor * jitter,
		Role:        RoleSocial,
	}
}

// State returns the public snapshot exchanged with the provider's peers.
func (a *TrafficActor) State() VehicleState {
	return VehicleState{
		ID: a.ID, Pose: Pose{Position: a.Position, Heading: a.Heading},
		Speed: a.Speed, LinearAcceleration: a.LinearAcceleration,
		Length: a.VType.Length, Width: a.VType.Width, Height: a.VType.Height,
		Role: a.Role, Source: a.Source,
	}
}

// aggressiveness is the cut-in-gap-threshold divisor; the original source
// additionally scales by lcAssertive, which this module treats as the
// same knob rather than introducing a second hidden parameter (§11).
func (a *TrafficActor) aggressiveness() float64 { return a.VType.LCAssertive }

// Decide computes the actor's next pose/speed/lane (pass 1 of §5's
// two-pass tick): reads cache/idx/rm and writes only this actor's own
// fields (next*, targetLaneID, the cut-in bookkeeping, and OffRoute when
// its lane is missing), never shared state, so no actor observes another
// actor's partial update.
func (a *TrafficActor) Decide(rm roadmap.RoadMap, cache *SpatialLaneCache, idx *RouteLengthIndex, engine *randengine.Engine, simTime, dt float64) {
	curLane, ok := rm.Lane(a.LaneID)
	if !ok {
		actorLog.WithField("actor", a.ID).Warn("current lane vanished from map, marking off-route")
		a.OffRoute = true
		a.nextLaneID, a.nextS, a.nextT = a.LaneID, a.S, a.T
		a.nextSpeed, a.nextPosition, a.nextHeading = a.Speed, a.Position, a.Heading
		return
	}

	windows := a.buildLaneWindows(curLane, rm, cache, idx, simTime)
	best := a.selectLane(curLane, windows, engine, simTime)

	target := best.Lane
	a.targetLaneID = target.ID()

	accel := a.longitudinalControl(best, dt)
	a.lateralControl(target, best, accel, dt)
}

// buildLaneWindows computes one LaneWindow per lane of the actor's current
// road (§4.3).
func (a *TrafficActor) buildLaneWindows(curLane roadmap.Lane, rm roadmap.RoadMap, cache *SpatialLaneCache, idx *RouteLengthIndex, simTime float64) map[int32]*LaneWindow {
	road := curLane.ParentRoad()
	var candidateLanes []roadmap.Lane
	if road != nil {
		candidateLanes = road.DrivingLanes()
	} else {
		candidateLanes = []roadmap.Lane{curLane}
	}

	windows := make(map[int32]*LaneWindow, len(candidateLanes))
	for _, lane := range candidateLanes {
		s := lane.ProjectToLane(a.Position)
		remaining := idx.RemainingLength(a.Route.Key, lane.ID(), a.RouteIndex)

		leader := cache.FindLeader(lane.ID(), s, a.Route.Key, a.RouteIndex, idx, 8)
		follower := cache.FindFollower(lane.ID(), s)

		gapAhead := leader.Distance - a.VType.Length/2 - minSpaceCushion
		gapAhead = math.Max(gapAhead, 0)
		gapBehind := follower.Distance - a.VType.Length/2 - minSpaceCushion
		gapBehind = math.Max(gapBehind, 0)

		dv := 0.0
		if leader.Leader != nil {
			dv = a.Speed - leader.Leader.V()
		}
		ttc := mathutil.INF
		if dv > 0 {
			ttc = timeToCover(gapAhead, dv, 0)
		}
		tte := mathutil.INF
		if a.Speed > 0 {
			tte = remaining / a.Speed
		}
		timeLeft := math.Min(ttc, tte)

		dvBehind := 0.0
		if follower.Follower != nil {
			dvBehind = follower.Follower.V() - a.Speed
		}
		ttre := mathutil.INF
		if dvBehind > 0 {
			ttre = timeToCover(gapBehind, dvBehind, 0)
		}

		windows[lane.ID()] = &LaneWindow{
			Lane: lane, S: s, T: a.T,
			RemainingPath: remaining,
			GapAhead:      gapAhead, GapBehind: gapBehind,
			TimeToCollision: ttc, TimeToEnd: tte, TimeLeft: timeLeft,
			TTRE:     ttre,
			Leader:   leader.Leader, Follower: follower.Follower,
			Feasible: true,
		}
	}

	for _, w := range windows {
		path := lanesBetween(curLane, w.Lane)
		w.CrossingTime = crossingTimeInto(path, w.S, w.T, a.Speed)
		w.AdjTimeLeft = w.TimeLeft - w.CrossingTime
		w.Feasible = crossingFeasible(windows, path, w.CrossingTime)
	}
	return windows
}

// lanesBetween returns the chain of lanes a vehicle crosses moving
// side-to-side from cur to target (inclusive of both ends), ordered by
// OffsetInRoad between the two. Both lanes must share a parent road; if
// not (e.g. a junction-internal composite lane), the path is just the two
// endpoints.
func lanesBetween(cur, target roadmap.Lane) []roadmap.Lane {
	if cur.ID() == target.ID() {
		return []roadmap.Lane{cur}
	}
	road := cur.ParentRoad()
	if road == nil || target.ParentRoad() == nil || road.ID() != target.ParentRoad().ID() {
		return []roadmap.Lane{cur, target}
	}
	lanes := road.DrivingLanes()
	lo1, hi1 := cur.OffsetInRoad(), target.OffsetInRoad()
	if lo1 > hi1 {
		lo1, hi1 = hi1, lo1
	}
	var path []roadmap.Lane
	for _, l := range lanes {
		if l.OffsetInRoad() >= lo1 && l.OffsetInRoad() <= hi1 {
			path = append(path, l)
		}
	}
	if cur.OffsetInRoad() > target.OffsetInRoad() {
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
	}
	return path
}

// crossingFeasible requires every lane crossed other than the current one
// (intermediate lanes plus the destination) to have min(time-left, ttre)
// exceed the aggregate crossing time — a closing follower (high ttre risk)
// blocks the crossing exactly as a closing leader does (§4.4, grounded on
// `_crossing_time_into`'s per-lane `min(lw.time_left, lw.ttre) <= cross_time`
// check).
func crossingFeasible(windows map[int32]*LaneWindow, path []roadmap.Lane, crossingTime float64) bool {
	if len(path) <= 1 {
		return true
	}
	for _, l := range path[1:] {
		lw, ok := windows[l.ID()]
		if !ok {
			continue
		}
		if math.Min(lw.TimeLeft, lw.TTRE) <= crossingTime {
			return false
		}
	}
	return true
}

// selectLane runs the per-tick lane-selection decision (§4.5). The scan
// walks outward from the current lane in both directions, each visited at
// most once — per SPEC_FULL.md §9's resolution of the cyclic-scan open
// question, matching the original's two one-directional range() scans
// rather than a true ring.
func (a *TrafficActor) selectLane(curLane roadmap.Lane, windows map[int32]*LaneWindow, engine *randengine.Engine, simTime float64) *LaneWindow {
	best := windows[curLane.ID()]
	curIdx := curLane.OffsetInRoad()

	if a.cuttingInto != nil {
		if w, ok := windows[*a.cuttingInto]; ok && w.Feasible {
			if a.LaneID == *a.cuttingInto {
				if !a.cutinPinned {
					a.cutinPinned = true
					a.cutinEnteredAt = simTime
				}
				if simTime-a.cutinEnteredAt < cutinHoldSecs {
					return w
				}
				a.cuttingInto = nil
				a.cutinPinned = false
			} else {
				return w
			}
		} else {
			a.cuttingInto = nil
			a.cutinPinned = false
		}
	}

	road := curLane.ParentRoad()
	var ordered []roadmap.Lane
	if road != nil {
		ordered = road.DrivingLanes()
	} else {
		ordered = []roadmap.Lane{curLane}
	}

	visit := func(lane roadmap.Lane) bool {
		w, ok := windows[lane.ID()]
		if !ok || !w.Feasible {
			return false
		}
		if lane.CompositeLane().ID() == destinationLaneID(a, curLane) && w.S+w.GapAhead >= a.DestOffset {
			if a.VType.LCDogmatic || best == nil {
				best = w
				return true
			}
		}
		if w.Follower != nil && w.Follower.State.Role == RoleEgoAgent {
			targetGap := 2.5
			gap := w.GapBehind
			low, high := targetGap/a.aggressiveness(), targetGap+2
			if gap > low && gap < high && w.Feasible {
				if engine.PTrue(a.VType.LCCutinProb) {
					a.cuttingInto = new(int32)
					*a.cuttingInto = lane.ID()
					best = w
					return true
				}
			}
		}
		if best == nil || w.AdjTimeLeft > best.AdjTimeLeft {
			best = w
		} else if w.AdjTimeLeft == best.AdjTimeLeft {
			destID := destinationLaneID(a, curLane)
			if lane.CompositeLane().ID() == destID && a.S < a.DestOffset {
				best = w
			} else if lane.OffsetInRoad() < best.Lane.OffsetInRoad() && w.TTRE > best.TTRE {
				best = w
			}
		}
		return false
	}

	for i := curIdx; i >= 0; i-- {
		if i < len(ordered) {
			lane := findByOffset(ordered, i)
			if lane == nil {
				break
			}
			if decisive := visit(lane); decisive {
				break
			}
			if w, ok := windows[lane.ID()]; !ok || !w.Feasible {
				break
			}
		}
	}
	for i := curIdx + 1; i < len(ordered); i++ {
		lane := findByOffset(ordered, i)
		if lane == nil {
			break
		}
		if decisive := visit(lane); decisive {
			break
		}
		if w, ok := windows[lane.ID()]; !ok || !w.Feasible {
			break
		}
	}

	return best
}

func findByOffset(lanes []roadmap.Lane, offset int) roadmap.Lane {
	for _, l := range lanes {
		if l.OffsetInRoad() == offset {
			return l
		}
	}
	return nil
}

// destinationLaneID resolves the id the actor is ultimately trying to
// reach, compared via CompositeLane so geometrically-identical lanes
// (e.g. parallel junction-internal lanes) compare equal (§11 supplemented
// feature, §4.5/§4.8). While the actor is not yet at its route's final
// road it returns math.MinInt32, which matches no lane.
func destinationLaneID(a *TrafficActor, curLane roadmap.Lane) int32 {
	if a.Route != nil && a.RouteIndex != len(a.Route.Roads)-1 {
		return math.MinInt32
	}
	road := curLane.ParentRoad()
	if road == nil {
		return curLane.CompositeLane().ID()
	}
	lanes := road.DrivingLanes()
	for _, l := range lanes {
		if l.OffsetInRoad() == a.DestLaneIndex {
			return l.CompositeLane().ID()
		}
	}
	return curLane.CompositeLane().ID()
}

// longitudinalControl computes this tick's acceleration (§4.6) and
// returns it; Decide folds the result into next speed/position via
// lateralControl's integration step.
func (a *TrafficActor) longitudinalControl(w *LaneWindow, dt float64) float64 {
	targetSpeed := w.Lane.MaxSpeed() * a.speedFactor
	targetSpeed = math.Min(targetSpeed, a.VType.MaxSpeed)
	if r := w.Lane.CurvatureRadiusAt(w.S); !math.IsInf(r, 1) {
		targetSpeed = math.Min(targetSpeed, math.Abs(r)*curvatureSpeedLimit)
	}

	spaceCushion := w.GapAhead
	timeCushion := math.Min(w.TimeLeft, w.GapAhead/math.Max(a.Speed, 0.1))

	if timeCushion < a.VType.Tau && a.Speed > 0 {
		ratio := lo.Clamp(4*(a.VType.Tau-timeCushion)/a.VType.Tau, 0, 1)
		return -a.VType.EmergencyDecel * ratio
	}
	if spaceCushion < minSpaceCushion {
		ratio := lo.Clamp(4*(minSpaceCushion-spaceCushion)/minSpaceCushion, 0, 1)
		return -a.VType.EmergencyDecel * ratio
	}

	ownAccel := 0.0
	if dt > 0 {
		// LinearAcceleration is Δt·a·unit(heading) (§9 quirk); divide back out
		// to recover the scalar |a| the original's own self.acceleration reads.
		ownAccel = math.Hypot(a.LinearAcceleration.X, a.LinearAcceleration.Y) / dt
	}
	p := 0.006 * (targetSpeed - a.Speed)
	i := -0.01 / math.Max(spaceCushion, 1e-3)
	d := -0.001 * ownAccel
	out := (p + i + d) / dt
	out = lo.Clamp(out, -1, 1)
	if out >= 0 {
		return out * a.VType.Accel
	}
	return out * a.VType.Decel
}

// lateralControl computes the actor's next heading/position/speed from
// the steering law in §4.7, writing the next* scratch fields Commit later
// applies. The two 0.2-gain terms act on the current heading and lateral
// errors; no previous-tick errors are kept, so no finite difference is
// taken.
func (a *TrafficActor) lateralControl(target roadmap.Lane, w *LaneWindow, accel, dt float64) {
	lookAhead := math.Max(dt*a.Speed, 2.0)
	aheadPoint := geometry.Point{
		X: a.Position.X + lookAhead*math.Cos(a.Heading),
		Y: a.Position.Y + lookAhead*math.Sin(a.Heading),
	}
	sAhead := target.ProjectToLane(aheadPoint)
	projAhead := target.PositionAt(sAhead)
	tErr := math.Hypot(aheadPoint.X-projAhead.X, aheadPoint.Y-projAhead.Y)
	if crossProduct(target.DirectionAt(sAhead), aheadPoint, projAhead) < 0 {
		tErr = -tErr
	}
	targetHeading := target.DirectionAt(sAhead)
	deltaHeading := normalizeAngle(targetHeading - a.Heading)

	omega := 3.75*deltaHeading - 1.25*tErr
	if deltaHeading*tErr < 0 {
		omega += 2.2 * sign(omega) * (deltaHeading * tErr)
	}
	omega += 0.2 * deltaHeading
	omega += 0.2 * tErr
	omega = lo.Clamp(omega, -maxAngularVelocity, maxAngularVelocity)

	nextHeading := math.Mod(a.Heading+omega*dt, 2*math.Pi)
	if nextHeading < 0 {
		nextHeading += 2 * math.Pi
	}
	nextSpeed := math.Max(0, a.Speed+accel*dt)
	nextPosition := geometry.Point{
		X: a.Position.X + dt*a.Speed*math.Cos(nextHeading),
		Y: a.Position.Y + dt*a.Speed*math.Sin(nextHeading),
	}
	// next_linear_acceleration = Δt·accel·unit(heading): dimensionally a
	// velocity delta, preserved exactly as specified (§9 Open Questions).
	nextLinAcc := geometry.Point{
		X: dt * accel * math.Cos(nextHeading),
		Y: dt * accel * math.Sin(nextHeading),
	}

	a.nextHeading = nextHeading
	a.nextSpeed = nextSpeed
	a.nextPosition = nextPosition
	a.nextLinearAcceleration = nextLinAcc
	a.nextLaneID = target.ID()
	a.nextS = target.ProjectToLane(nextPosition)
	a.nextT = tErr
}

func crossProduct(heading float64, p, origin geometry.Point) float64 {
	ux, uy := math.Cos(heading), math.Sin(heading)
	dx, dy := p.X-origin.X, p.Y-origin.Y
	return ux*dy - uy*dx
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Commit is the only place next_* fields become state (pass 2 of the §5
// two-pass contract): applies the computed next pose, then runs post-step
// re-localization (§4.8) and endless-traffic reroute (§4.9).
func (a *TrafficActor) Commit(rm roadmap.RoadMap, idx *RouteLengthIndex, engine *randengine.Engine, endlessTraffic bool, departLaneID int32, departS, departSpeed, departHeading float64, overlapCheck func(BoundingBox) bool) {
	a.Position = a.nextPosition
	a.Heading = a.nextHeading
	a.Speed = a.nextSpeed
	a.LinearAcceleration = a.nextLinearAcceleration

	const k = 5
	near := rm.NearestLanes(a.Position, a.VType.Length, k, true)
	chosen := roadmap.Lane(nil)
	bestDelta := math.MaxInt32
	start := a.RouteIndex
	if start < 0 {
		start = 0 // after a loop reroute the route index is -1
	}
	for _, l := range near {
		for i := start; i < len(a.Route.Roads); i++ {
			if l.ParentRoad() != nil && l.ParentRoad().ID() == a.Route.Roads[i] {
				delta := i - a.RouteIndex
				if delta < bestDelta {
					bestDelta = delta
					chosen = l
				}
				break
			}
		}
	}
	if chosen == nil {
		a.OffRoute = true
		if len(near) > 0 {
			chosen = near[0]
		} else if l, ok := rm.Lane(a.nextLaneID); ok {
			chosen = l
		} else {
			chosen, _ = rm.Lane(a.LaneID)
		}
	} else {
		a.OffRoute = false
		a.RouteIndex += bestDelta
	}

	a.LaneID = chosen.ID()
	a.S = chosen.ProjectToLane(a.Position)
	a.T = a.nextT

	if chosen.CompositeLane().ID() == destinationLaneID(a, chosen) && a.S >= a.DestOffset {
		if endlessTraffic {
			a.reroute(rm, engine, departLaneID, departS, departSpeed, departHeading, overlapCheck)
		} else {
			a.DoneWithRoute = true
		}
	}
}

// reroute implements the two endless-traffic strategies of §4.9: loop
// when the route's first road is reachable as an outgoing road from the
// current lane's road, else teleport back to the original depart pose.
func (a *TrafficActor) reroute(rm roadmap.RoadMap, engine *randengine.Engine, departLaneID int32, departS, departSpeed, departHeading float64, overlapCheck func(BoundingBox) bool) {
	curRoad, _ := rm.Road(a.Route.Roads[a.RouteIndex])
	firstRoad := a.Route.Roads[0]
	for _, out := range curRoad.OutgoingRoads() {
		if out.ID() == firstRoad {
			a.RouteIndex = -1
			a.DoneWithRoute = false
			return
		}
	}

	depart, ok := rm.Lane(departLaneID)
	if !ok {
		a.DoneWithRoute = true
		return
	}
	pos := depart.PositionAt(departS)
	box := BoundingBox{Center: pos, Heading: departHeading, Length: a.VType.Length, Width: a.VType.Width}
	if overlapCheck != nil && overlapCheck(box) {
		a.DoneWithRoute = true
		return
	}
	a.LaneID = departLaneID
	a.S = departS
	a.T = 0
	a.Position = pos
	a.Heading = departHeading
	a.Speed = departSpeed
	a.RouteIndex = 0
	a.DoneWithRoute = false
}
