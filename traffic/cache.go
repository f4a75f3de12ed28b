package traffic

import (
	"math"
	"sort"

	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/utils/container"
)

// laneOccupant is the per-vehicle payload stored in a lane's occupancy
// list; it satisfies container.IHasVAndLength so gap arithmetic can read
// speed/length straight off the list node.
type laneOccupant struct {
	ID    string
	State *VehicleState
}

func (o laneOccupant) V() float64      { return o.State.Speed }
func (o laneOccupant) Length() float64 { return o.State.Length }

// NewLaneOccupant builds the payload a LaneProjection carries for one
// vehicle; exported so the provider package (which owns the insertion
// order over owned+shadow vehicles) can construct projections without
// reaching into this package's internals.
func NewLaneOccupant(id string, state VehicleState) laneOccupant {
	st := state
	return laneOccupant{ID: id, State: &st}
}

type laneOccupantNode = container.ListNode[laneOccupant, struct{}]

// laneEntries is the frozen, binary-searchable snapshot of one lane's
// occupancy for this tick: ascending front-offsets and back-offsets plus
// their owning occupants, in the same order.
type laneEntries struct {
	frontOffsets []float64
	frontOccupants []laneOccupant
	backOffsets  []float64
	backOccupants  []laneOccupant
}

// SpatialLaneCache holds, for every lane with at least one vehicle
// projected onto it this tick, the sorted front/back-offset sequences used
// for O(log n) leader/follower queries (§4.2). Rebuilt from scratch every
// tick; queries are read-only once Build returns.
type SpatialLaneCache struct {
	rm      roadmap.RoadMap
	byLane  map[int32]*laneEntries
}

func NewSpatialLaneCache(rm roadmap.RoadMap) *SpatialLaneCache {
	return &SpatialLaneCache{rm: rm}
}

// LaneProjection is one vehicle's placement on a lane, the raw input to
// Build. Order is insertion order over the union of owned + shadow
// vehicles, and is the tie-break for equal offsets (§4.2).
type LaneProjection struct {
	LaneID int32
	S      float64 // arc-length offset of the vehicle's reference point
	Vehicle laneOccupant
}

// Build rebuilds the cache from the given projections, one per
// currently-known vehicle (owned + shadow), in insertion order.
func (c *SpatialLaneCache) Build(projections []LaneProjection) {
	byLane := make(map[int32][]LaneProjection)
	for _, p := range projections {
		byLane[p.LaneID] = append(byLane[p.LaneID], p)
	}

	c.byLane = make(map[int32]*laneEntries, len(byLane))
	for laneID, ps := range byLane {
		if _, ok := c.rm.Lane(laneID); !ok {
			continue
		}
		halfLen := func(o laneOccupant) float64 { return o.State.Length / 2 }

		frontList := &container.List[laneOccupant, struct{}]{}
		backList := &container.List[laneOccupant, struct{}]{}
		var frontNodes, backNodes []*laneOccupantNode
		for _, p := range ps {
			frontNodes = append(frontNodes, &laneOccupantNode{S: p.S + halfLen(p.Vehicle), Value: p.Vehicle})
			backNodes = append(backNodes, &laneOccupantNode{S: p.S - halfLen(p.Vehicle), Value: p.Vehicle})
		}
		frontList.Merge(frontNodes)
		backList.Merge(backNodes)

		entries := &laneEntries{
			frontOffsets:   frontList.Keys(),
			frontOccupants: frontList.Values(),
			backOffsets:    backList.Keys(),
			backOccupants:  backList.Values(),
		}
		c.byLane[laneID] = entries
	}
}

// LeaderResult is the outcome of a leader search: the distance from the
// querying offset to the leader's rear bumper measured along the route,
// and the leader itself (nil if none was found, in which case Distance is
// +Inf).
type LeaderResult struct {
	Distance float64
	Leader   *laneOccupant
}

// FindLeader locates the nearest vehicle ahead of (lane, myOffset) along
// the route, recursing through outgoing lanes registered in idx at
// routeKey/routeIndex+1 when the current lane has no back-offset beyond
// myOffset (§4.2). Each hop adds the distance from myOffset to the end of
// the current lane, and at most maxDepth hops are followed.
func (c *SpatialLaneCache) FindLeader(laneID int32, myOffset float64, routeKey int64, routeIndex int, idx *RouteLengthIndex, maxDepth int) LeaderResult {
	return c.findLeader(laneID, myOffset, routeKey, routeIndex, idx, 0, 0, maxDepth)
}

func (c *SpatialLaneCache) findLeader(laneID int32, myOffset float64, routeKey int64, routeIndex int, idx *RouteLengthIndex, distanceSoFar float64, depth int, maxDepth int) LeaderResult {
	l, ok := c.rm.Lane(laneID)
	if !ok {
		return LeaderResult{Distance: math.Inf(1)}
	}
	if e, ok := c.byLane[laneID]; ok {
		i := sort.SearchFloat64s(e.backOffsets, myOffset)
		for i < len(e.backOffsets) && e.backOffsets[i] <= myOffset {
			i++
		}
		if i < len(e.backOffsets) {
			return LeaderResult{
				Distance: distanceSoFar + (e.backOffsets[i] - myOffset),
				Leader:   &e.backOccupants[i],
			}
		}
	}
	if depth >= maxDepth {
		return LeaderResult{Distance: math.Inf(1)}
	}

	best := LeaderResult{Distance: math.Inf(1)}
	toEnd := l.Length() - myOffset
	for nextID := range l.Successors() {
		if _, onRoute := idx.tables[routeKey][laneIndexKey{nextID, routeIndex + 1}]; !onRoute {
			continue
		}
		r := c.findLeader(nextID, 0, routeKey, routeIndex+1, idx, distanceSoFar+toEnd, depth+1, maxDepth)
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best
}

// FollowerResult is the outcome of a follower search.
type FollowerResult struct {
	Distance float64
	Follower *laneOccupant
}

// FindFollower locates the nearest vehicle behind (lane, myOffset),
// looking back at most one incoming-lane hop — followers further back
// don't affect this module's dynamics (§4.2).
func (c *SpatialLaneCache) FindFollower(laneID int32, myOffset float64) FollowerResult {
	if e, ok := c.byLane[laneID]; ok {
		i := sort.SearchFloat64s(e.frontOffsets, myOffset) - 1
		for i >= 0 && e.frontOffsets[i] >= myOffset {
			i--
		}
		if i >= 0 {
			return FollowerResult{Distance: myOffset - e.frontOffsets[i], Follower: &e.frontOccupants[i]}
		}
	}
	l, ok := c.rm.Lane(laneID)
	if !ok {
		return FollowerResult{Distance: math.Inf(1)}
	}
	best := FollowerResult{Distance: math.Inf(1)}
	for predID, conn := range l.Predecessors() {
		pred := conn.Lane
		e, ok := c.byLane[predID]
		if !ok {
			continue
		}
		if e.frontOffsets == nil || len(e.frontOffsets) == 0 {
			continue
		}
		i := len(e.frontOffsets) - 1
		d := myOffset + (pred.Length() - e.frontOffsets[i])
		if d < best.Distance {
			best = FollowerResult{Distance: d, Follower: &e.frontOccupants[i]}
		}
	}
	return best
}
