package traffic

import (
	"fmt"

	"git.fiblab.net/sim/microtraffic/roadmap"
)

// Route is an ordered sequence of road ids plus the stable key used to
// index RouteLengthIndex.
type Route struct {
	Roads []int32
	Key   int64
}

// RouteLengthIndex caches, per route, the remaining path length from the
// start of each (lane, route-index) to the end of the route. Built once
// per distinct route by breadth-first back-propagation from the terminal
// road (§4.1); idempotent for a route already registered.
type RouteLengthIndex struct {
	rm roadmap.RoadMap

	nextKey int64
	keys    map[string]int64                    // route-roads signature -> key
	tables  map[int64]map[laneIndexKey]float64   // route key -> (lane id, route index) -> remaining length
	routes  map[int64][]int32
}

type laneIndexKey struct {
	laneID int32
	index  int
}

func NewRouteLengthIndex(rm roadmap.RoadMap) *RouteLengthIndex {
	return &RouteLengthIndex{
		rm:     rm,
		keys:   make(map[string]int64),
		tables: make(map[int64]map[laneIndexKey]float64),
		routes: make(map[int64][]int32),
	}
}

// Register validates roads and returns the route's stable key, building
// (or reusing) its RouteLengthIndex table. Rejects the whole route if any
// road id is unknown.
func (idx *RouteLengthIndex) Register(roads []int32) (*Route, error) {
	if len(roads) == 0 {
		return nil, newConfigError("route has no roads")
	}
	sig := routeSignature(roads)
	if key, ok := idx.keys[sig]; ok {
		return &Route{Roads: idx.routes[key], Key: key}, nil
	}

	resolved := make([]roadmap.Road, len(roads))
	for i, id := range roads {
		r, ok := idx.rm.Road(id)
		if !ok {
			return nil, newConfigError("route references unknown road %d", id)
		}
		resolved[i] = r
	}

	key := idx.nextKey
	idx.nextKey++
	idx.keys[sig] = key
	idx.routes[key] = append([]int32(nil), roads...)
	idx.tables[key] = buildRouteLengthTable(resolved, roads[0])

	return &Route{Roads: idx.routes[key], Key: key}, nil
}

func routeSignature(roads []int32) string {
	s := ""
	for _, r := range roads {
		s += fmt.Sprintf("%d,", r)
	}
	return s
}

// RemainingLength returns the remaining route length from lane at the
// given route-index, falling back to the lane's own length when the lane
// is not registered at that index (§4.3 step 2).
func (idx *RouteLengthIndex) RemainingLength(routeKey int64, laneID int32, index int) float64 {
	table := idx.tables[routeKey]
	if table == nil {
		return 0
	}
	if v, ok := table[laneIndexKey{laneID, index}]; ok {
		return v
	}
	if l, ok := idx.rm.Lane(laneID); ok {
		return l.Length()
	}
	return 0
}

// buildRouteLengthTable back-propagates remaining length from the last
// road's lanes to every predecessor lane on the route, one road-hop at a
// time. A predecessor lane gets +1 for each of its successors that lies on
// the route's first road; the terminal road's own entries are not biased
// and stay at their bare lane length.
func buildRouteLengthTable(roads []roadmap.Road, loopRoad int32) map[laneIndexKey]float64 {
	table := make(map[laneIndexKey]float64)

	lastIdx := len(roads) - 1
	for _, l := range roads[lastIdx].DrivingLanes() {
		table[laneIndexKey{l.ID(), lastIdx}] = l.Length()
	}

	for i := lastIdx; i > 0; i-- {
		for _, l := range roads[i].DrivingLanes() {
			v, ok := table[laneIndexKey{l.ID(), i}]
			if !ok {
				continue
			}
			for predID, conn := range l.Predecessors() {
				pred := conn.Lane
				if pred.ParentRoad() == nil || pred.ParentRoad().ID() != roads[i-1].ID() {
					continue
				}
				total := pred.Length() + v
				for _, succConn := range pred.Successors() {
					if succConn.Lane.ParentRoad() != nil && succConn.Lane.ParentRoad().ID() == loopRoad {
						total += 1
					}
				}
				key := laneIndexKey{predID, i - 1}
				if cur, ok := table[key]; !ok || total > cur {
					table[key] = total
				}
			}
		}
	}
	return table
}
