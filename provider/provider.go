// Package provider is the top-level orchestrator (SPEC_FULL.md §4.11): it
// ticks every owned actor in the two-pass decide-then-commit pipeline of
// §5, owns the per-tick caches, and exchanges state with peer providers
// through sync/add_vehicle hand-off.
package provider

import (
	"git.fiblab.net/sim/microtraffic/clock"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/traffic"
	"git.fiblab.net/sim/microtraffic/utils/config"
	"git.fiblab.net/sim/microtraffic/utils/randengine"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
}

var log = logrus.WithField("module", "provider")

// Scenario is everything Setup needs to bind a road map and ingest flows;
// road-map construction is the caller's responsibility (§1 excludes the
// road-map library from this module's deliverable focus).
type Scenario struct {
	RoadMap  roadmap.RoadMap
	Config   *config.Config
}

// departRecord remembers a flow-spawned actor's original depart pose, so
// an endless-traffic teleport reroute (§4.9 Strategy B) can return to it.
type departRecord struct {
	laneID  int32
	s       float64
	speed   float64
	heading float64
}

// Provider is the core orchestrator. SourceStr is its read-only identifier
// string, stamped onto every vehicle it owns (§6).
type Provider struct {
	SourceStr string

	rm       roadmap.RoadMap
	clock    *clock.Clock
	engine   *randengine.Engine
	routeIdx *traffic.RouteLengthIndex

	flows []*traffic.FlowSpec

	ownedOrder []string
	owned      map[string]*traffic.TrafficActor
	departOf   map[string]departRecord

	shadowOrder []string
	shadow      map[string]traffic.VehicleState

	reserved map[string]traffic.BoundingBox

	endlessTraffic bool
}

func New(sourceStr string) *Provider {
	return &Provider{
		SourceStr: sourceStr,
		owned:     make(map[string]*traffic.TrafficActor),
		departOf:  make(map[string]departRecord),
		shadow:    make(map[string]traffic.VehicleState),
		reserved:  make(map[string]traffic.BoundingBox),
	}
}

// Setup binds the road map, ingests flow specs from the configured flow
// file, spawns zero-time actors, and emits the initial state (§4.11).
func (p *Provider) Setup(s Scenario) ([]traffic.VehicleState, error) {
	p.rm = s.RoadMap
	p.clock = clock.New(s.Config.Control.Step)
	p.engine = randengine.New(s.Config.Control.Seed)
	p.routeIdx = traffic.NewRouteLengthIndex(p.rm)
	p.endlessTraffic = s.Config.Control.EndlessTraffic

	vTypes, routeEdges, xmlFlows, err := traffic.LoadFlowFile(s.Config.Input.FlowFile)
	if err != nil {
		return nil, err
	}
	routesByID := make(map[string]*traffic.Route, len(routeEdges))
	for id, edges := range routeEdges {
		route, err := p.routeIdx.Register(edges)
		if err != nil {
			return nil, err
		}
		routesByID[id] = route
	}

	p.flows = make([]*traffic.FlowSpec, 0, len(xmlFlows))
	for _, xf := range xmlFlows {
		fs := traffic.BuildFlowSpec(xf, vTypes, routesByID)
		departRoad, _ := p.rm.Road(fs.Route.Roads[0])
		departLanes := departRoad.DrivingLanes()
		if fs.DepartLane < 0 || fs.DepartLane >= len(departLanes) {
			return nil, traffic.NewConfigError("flow %q: departLane %d out of range", fs.ID, fs.DepartLane)
		}
		if l := departLanes[fs.DepartLane].Length(); fs.DepartPos.Kind == traffic.OffsetLiteral && (fs.DepartPos.Value < 0 || fs.DepartPos.Value > l) {
			return nil, traffic.NewConfigError("flow %q: departPos %v outside [0, %v]", fs.ID, fs.DepartPos.Value, l)
		}
		p.flows = append(p.flows, fs)
	}

	p.clock.Reset()
	for _, f := range p.flows {
		actor := traffic.TrySpawn(f, p.rm, p.routeIdx, p.engine, p.clock.T)
		if actor == nil || p.boxOverlapsAny(actor.State().BoundingBox(), "") {
			continue
		}
		p.insertOwned(actor)
		p.departOf[actor.ID] = departRecord{laneID: actor.LaneID, s: actor.S, speed: actor.Speed, heading: actor.Heading}
	}
	return p.snapshot(), nil
}

// Step runs one tick of the §2 pipeline: advance sim-time, spawn due
// flows, rebuild the spatial cache, decide every owned actor (pass 1),
// commit every owned actor (pass 2), emit a snapshot. dt and simTime are
// host-supplied contract parameters, never measured wall-clock (§5).
func (p *Provider) Step(dt, simTime float64) []traffic.VehicleState {
	p.clock.Advance(dt)

	for _, f := range p.flows {
		actor := traffic.TrySpawn(f, p.rm, p.routeIdx, p.engine, simTime)
		if actor == nil {
			continue
		}
		if p.boxOverlapsAny(actor.State().BoundingBox(), "") {
			log.WithField("flow", f.ID).Debug("spawn rejected: bbox overlap")
			continue
		}
		p.insertOwned(actor)
		p.departOf[actor.ID] = departRecord{laneID: actor.LaneID, s: actor.S, speed: actor.Speed, heading: actor.Heading}
	}

	cache := traffic.NewSpatialLaneCache(p.rm)
	cache.Build(p.projections())

	for _, id := range p.ownedOrder {
		a := p.owned[id]
		a.Decide(p.rm, cache, p.routeIdx, p.engine, simTime, dt)
	}

	var toRemove []string
	for _, id := range p.ownedOrder {
		a := p.owned[id]
		rec := p.departOf[id]
		overlapCheck := func(box traffic.BoundingBox) bool { return p.boxOverlapsAny(box, id) }
		a.Commit(p.rm, p.routeIdx, p.engine, p.endlessTraffic, rec.laneID, rec.s, rec.speed, rec.heading, overlapCheck)
		if a.DoneWithRoute {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		p.removeOwned(id)
		delete(p.departOf, id)
	}

	return p.snapshot()
}

// projections gathers (lane, offset, occupant) triples over the union of
// owned and shadow vehicles, in insertion order, for SpatialLaneCache.Build.
func (p *Provider) projections() []traffic.LaneProjection {
	out := make([]traffic.LaneProjection, 0, len(p.ownedOrder)+len(p.shadowOrder))
	for _, id := range p.ownedOrder {
		a := p.owned[id]
		st := a.State()
		out = append(out, traffic.LaneProjection{LaneID: a.LaneID, S: a.S, Vehicle: traffic.NewLaneOccupant(id, st)})
	}
	for _, id := range p.shadowOrder {
		st := p.shadow[id]
		lane, ok := p.nearestLaneFor(st)
		if !ok {
			continue
		}
		s := lane.ProjectToLane(st.Pose.Position)
		out = append(out, traffic.LaneProjection{LaneID: lane.ID(), S: s, Vehicle: traffic.NewLaneOccupant(id, st)})
	}
	return out
}

func (p *Provider) nearestLaneFor(st traffic.VehicleState) (roadmap.Lane, bool) {
	near := p.rm.NearestLanes(st.Pose.Position, st.Length, 1, true)
	if len(near) == 0 {
		return nil, false
	}
	return near[0], true
}

func (p *Provider) snapshot() []traffic.VehicleState {
	out := make([]traffic.VehicleState, 0, len(p.ownedOrder))
	for _, id := range p.ownedOrder {
		st := p.owned[id].State()
		st.Source = p.SourceStr
		out = append(out, st)
	}
	return out
}

func (p *Provider) insertOwned(a *traffic.TrafficActor) {
	a.Source = p.SourceStr
	p.owned[a.ID] = a
	p.ownedOrder = append(p.ownedOrder, a.ID)
}

func (p *Provider) removeOwned(id string) {
	delete(p.owned, id)
	for i, existing := range p.ownedOrder {
		if existing == id {
			p.ownedOrder = append(p.ownedOrder[:i], p.ownedOrder[i+1:]...)
			break
		}
	}
}

// boxOverlapsAny checks box against every currently-known vehicle bbox
// (owned, excluding excludeID, and shadow) and every reserved polygon
// (§4.9, §4.10).
func (p *Provider) boxOverlapsAny(box traffic.BoundingBox, excludeID string) bool {
	for _, id := range p.ownedOrder {
		if id == excludeID {
			continue
		}
		if box.Overlaps(p.owned[id].State().BoundingBox()) {
			return true
		}
	}
	for _, id := range p.shadowOrder {
		st := p.shadow[id]
		if box.Overlaps(st.BoundingBox()) {
			return true
		}
	}
	for id, r := range p.reserved {
		if id == excludeID {
			continue
		}
		if box.Overlaps(r) {
			return true
		}
	}
	return false
}

// Sync absorbs external vehicles (§4.11): owned vehicles missing from the
// external view are dropped; owned vehicles whose incoming source differs
// are released (hand-off out, a HandoffConflict per §7 — not an error).
func (p *Provider) Sync(states []traffic.VehicleState) {
	seen := make(map[string]bool, len(states))
	newShadowOrder := p.shadowOrder[:0]
	newShadow := make(map[string]traffic.VehicleState, len(states))

	for _, st := range states {
		seen[st.ID] = true
		if st.Source == p.SourceStr {
			continue // this is one of ours, reported back to us; ignore
		}
		if a, ok := p.owned[st.ID]; ok {
			_ = a
			log.WithField("vehicle", st.ID).Info("hand-off out: sync reported a different source")
			p.removeOwned(st.ID)
			delete(p.departOf, st.ID)
			continue
		}
		newShadow[st.ID] = st
		newShadowOrder = append(newShadowOrder, st.ID)
	}

	for _, id := range append([]string(nil), p.ownedOrder...) {
		if !seen[id] {
			p.removeOwned(id)
			delete(p.departOf, id)
		}
	}

	p.shadow = newShadow
	p.shadowOrder = newShadowOrder
	p.clearReservationsSeenInShadow()
}

// AddVehicle accepts an external vehicle (hand-off in, §4.11): stamps its
// source, optionally generates a random route from its current road, and
// constructs a TrafficActor from its current pose.
func (p *Provider) AddVehicle(st traffic.VehicleState, optionalRoute []int32) error {
	near := p.rm.NearestLanes(st.Pose.Position, st.Length, 1, true)
	if len(near) == 0 {
		return traffic.NewConfigError("add_vehicle: no lane found near %q's position", st.ID)
	}
	lane := near[0]
	s := lane.ProjectToLane(st.Pose.Position)

	roads := optionalRoute
	if roads == nil {
		road := lane.ParentRoad()
		if road == nil {
			return traffic.NewConfigError("add_vehicle: %q's lane has no parent road, cannot build a route", st.ID)
		}
		draw := func(n int) int { return p.engine.IntnSafe(n) }
		roads = p.rm.RandomRouteFromRoad(road.ID(), draw, 10)
	}
	route, err := p.routeIdx.Register(roads)
	if err != nil {
		return err
	}

	destRoad, _ := p.rm.Road(roads[len(roads)-1])
	destLanes := destRoad.DrivingLanes()
	destLaneIdx := 0
	destOffset := destLanes[0].Length()

	actor := traffic.NewTrafficActor(st.ID, traffic.DefaultVTypeFrom(st), route, lane.ID(), s, st.Speed, destLaneIdx, destOffset, p.rm, p.engine)
	actor.Heading = st.Pose.Heading
	actor.Position = st.Pose.Position
	p.insertOwned(actor)
	p.departOf[actor.ID] = departRecord{laneID: lane.ID(), s: s, speed: st.Speed, heading: st.Pose.Heading}
	return nil
}

// ReserveTrafficLocationForVehicle is a soft spawn keep-out (§4.11),
// cleared the next tick id reappears in the shadow set.
func (p *Provider) ReserveTrafficLocationForVehicle(id string, box traffic.BoundingBox) {
	p.reserved[id] = box
}

func (p *Provider) clearReservationsSeenInShadow() {
	for id := range p.reserved {
		if _, ok := p.shadow[id]; ok {
			delete(p.reserved, id)
		}
	}
}

// StopManaging releases an owned vehicle. OwnershipViolation for an
// unknown id.
func (p *Provider) StopManaging(id string) error {
	if _, ok := p.owned[id]; !ok {
		return &traffic.OwnershipViolation{VehicleID: id}
	}
	p.removeOwned(id)
	delete(p.departOf, id)
	return nil
}

// UpdateRouteForVehicle replaces an owned vehicle's route.
// OwnershipViolation for an unknown id.
func (p *Provider) UpdateRouteForVehicle(id string, roads []int32) error {
	a, ok := p.owned[id]
	if !ok {
		return &traffic.OwnershipViolation{VehicleID: id}
	}
	route, err := p.routeIdx.Register(roads)
	if err != nil {
		return err
	}
	a.Route = route
	a.RouteIndex = 0
	return nil
}

// VehicleDestRoad returns the final road id of id's route.
func (p *Provider) VehicleDestRoad(id string) (int32, bool) {
	a, ok := p.owned[id]
	if !ok {
		return 0, false
	}
	return a.Route.Roads[len(a.Route.Roads)-1], true
}

// CanAcceptVehicle reports whether st's bbox is clear of every known
// vehicle and reservation, i.e. would not be spawn-rejected.
func (p *Provider) CanAcceptVehicle(st traffic.VehicleState) bool {
	return !p.boxOverlapsAny(st.BoundingBox(), "")
}

// ManagesVehicle reports whether id is currently owned by this provider.
func (p *Provider) ManagesVehicle(id string) bool {
	_, ok := p.owned[id]
	return ok
}

// Teardown empties all state; safe to call at any tick boundary (§5).
func (p *Provider) Teardown() {
	p.owned = make(map[string]*traffic.TrafficActor)
	p.ownedOrder = nil
	p.departOf = make(map[string]departRecord)
	p.shadow = make(map[string]traffic.VehicleState)
	p.shadowOrder = nil
	p.reserved = make(map[string]traffic.BoundingBox)
}
