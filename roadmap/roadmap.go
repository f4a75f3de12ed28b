package roadmap

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/parallel"
	"git.fiblab.net/sim/microtraffic/utils/container"
)

// roadMap is the concrete RoadMap: two id-keyed collections plus the
// derived topology, built once at setup and read-only thereafter. Grounded
// on entity/road/manager.go and entity/lane/manager.go's two-phase
// construct-then-wire Init pattern, minus the protobuf/gRPC surface.
type roadMap struct {
	lanes map[int32]*laneImpl
	roads map[int32]*roadImpl
}

// ExtendedLaneSpec adds the road assignment a LaneSpec needs during Build;
// LaneSpec itself stays road-agnostic so it can also describe a
// free-standing test lane.
type ExtendedLaneSpec struct {
	LaneSpec
	RoadID int32
}

// Build constructs a roadMap from flat specs, mirroring the teacher
// managers' "allocate concurrently, then wire cross-references" shape:
// parallel.GoMap builds every lane/road object, then a single-threaded pass
// resolves predecessor/successor/side-lane/road-topology references (those
// need every object to already exist, so can't themselves run concurrently
// without extra locking — not worth it for a one-time setup cost).
func Build(roadSpecs []RoadSpec, laneSpecs []ExtendedLaneSpec) (RoadMap, error) {
	roads := parallel.GoMap(roadSpecs, func(s RoadSpec) *roadImpl { return newRoad(s) })
	lanes := parallel.GoMap(laneSpecs, func(s ExtendedLaneSpec) *laneImpl { return newLane(s.LaneSpec) })

	rm := &roadMap{
		lanes: make(map[int32]*laneImpl, len(lanes)),
		roads: make(map[int32]*roadImpl, len(roads)),
	}
	for _, r := range roads {
		rm.roads[r.id] = r
	}
	for _, l := range lanes {
		rm.lanes[l.id] = l
	}

	for _, s := range laneSpecs {
		l, ok := rm.lanes[s.ID]
		if !ok {
			continue
		}
		r, ok := rm.roads[s.RoadID]
		if !ok {
			return nil, fmt.Errorf("roadmap: lane %d references unknown road %d", s.ID, s.RoadID)
		}
		l.parentRoad = r
		r.lanes = append(r.lanes, l)
	}
	for _, r := range rm.roads {
		sort.Slice(r.lanes, func(i, j int) bool {
			return r.lanes[i].(*laneImpl).offsetInRoad < r.lanes[j].(*laneImpl).offsetInRoad
		})
	}

	for _, s := range laneSpecs {
		l := rm.lanes[s.ID]
		for _, pid := range s.Predecessors {
			p, ok := rm.lanes[pid]
			if !ok {
				return nil, fmt.Errorf("roadmap: lane %d references unknown predecessor %d", s.ID, pid)
			}
			l.predecessors[pid] = Connection{Lane: p, Type: ConnectionHead}
		}
		for _, sid := range s.Successors {
			n, ok := rm.lanes[sid]
			if !ok {
				return nil, fmt.Errorf("roadmap: lane %d references unknown successor %d", s.ID, sid)
			}
			l.successors[sid] = Connection{Lane: n, Type: ConnectionHead}
		}
	}

	for _, r := range rm.roads {
		for i, l := range r.lanes {
			li := l.(*laneImpl)
			for j, other := range r.lanes {
				if j == i {
					continue
				}
				oi := other.(*laneImpl)
				if oi.offsetInRoad < li.offsetInRoad {
					li.sideLanes[Left] = append(li.sideLanes[Left], other)
				} else if oi.offsetInRoad > li.offsetInRoad {
					li.sideLanes[Right] = append(li.sideLanes[Right], other)
				}
			}
			sort.Slice(li.sideLanes[Left], func(a, b int) bool {
				return li.sideLanes[Left][a].(*laneImpl).offsetInRoad > li.sideLanes[Left][b].(*laneImpl).offsetInRoad
			})
			sort.Slice(li.sideLanes[Right], func(a, b int) bool {
				return li.sideLanes[Right][a].(*laneImpl).offsetInRoad < li.sideLanes[Right][b].(*laneImpl).offsetInRoad
			})
		}
	}

	roadSet := func(lanes map[int32]Connection) []Road {
		seen := make(map[int32]Road)
		for _, c := range lanes {
			road := c.Lane.ParentRoad()
			if road != nil {
				seen[road.ID()] = road
			}
		}
		out := make([]Road, 0, len(seen))
		for _, r := range seen {
			out = append(out, r)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
		return out
	}
	for _, r := range rm.roads {
		incoming := make(map[int32]Road)
		outgoing := make(map[int32]Road)
		for _, l := range r.lanes {
			for _, road := range roadSet(l.Predecessors()) {
				incoming[road.ID()] = road
			}
			for _, road := range roadSet(l.Successors()) {
				outgoing[road.ID()] = road
			}
		}
		r.incoming = mapValuesSorted(incoming)
		r.outgoing = mapValuesSorted(outgoing)
	}

	return rm, nil
}

func mapValuesSorted(m map[int32]Road) []Road {
	out := make([]Road, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (m *roadMap) Lane(id int32) (Lane, bool) {
	l, ok := m.lanes[id]
	return l, ok
}

func (m *roadMap) Road(id int32) (Road, bool) {
	r, ok := m.roads[id]
	return r, ok
}

// NearestLanes performs a bounded-radius linear scan, pushing every
// in-range lane into a PriorityQueue keyed by distance and popping the k
// closest (SPEC_FULL.md §4.8 post-step re-localization). A real map service
// would index this spatially; a linear scan is adequate for the lane counts
// this reference implementation targets and keeps the query read-only and
// allocation-light, matching §5's per-tick transience requirement.
func (m *roadMap) NearestLanes(pos geometry.Point, radius float64, k int, includeJunctions bool) []Lane {
	ids := make([]int32, 0, len(m.lanes))
	for id := range m.lanes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pq := container.NewPriorityQueue[Lane]()
	for _, id := range ids {
		l := m.lanes[id]
		if !includeJunctions && l.ParentRoad() == nil {
			continue
		}
		s := l.ProjectToLane(pos)
		p := l.PositionAt(s)
		d := math.Hypot(p.X-pos.X, p.Y-pos.Y)
		if d <= radius {
			pq.Push(l, d)
		}
	}
	pq.Heapify()
	out := make([]Lane, 0, k)
	for pq.Len() > 0 && len(out) < k {
		l, _ := pq.HeapPop()
		out = append(out, l)
	}
	return out
}

// RandomRouteFromRoad walks up to maxHops legal successor-road hops from
// roadID, using draw(n) to pick an index in [0,n) at each branch — callers
// pass an randengine.Engine draw so the walk consumes the shared,
// order-deterministic RNG stream (SPEC_FULL.md §5).
func (m *roadMap) RandomRouteFromRoad(roadID int32, draw func(n int) int, maxHops int) []int32 {
	route := []int32{roadID}
	cur, ok := m.roads[roadID]
	if !ok {
		return route
	}
	for i := 0; i < maxHops; i++ {
		next := cur.OutgoingRoads()
		if len(next) == 0 {
			break
		}
		cur = next[draw(len(next))].(*roadImpl)
		route = append(route, cur.id)
	}
	return route
}
