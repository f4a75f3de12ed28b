// Package roadmap is a minimal, self-contained implementation of the
// road-map / lane-geometry collaborator described by SPEC_FULL.md §6.
// Production deployments are expected to swap this for a real map service;
// this package exists so the traffic core is runnable and testable without
// one.
package roadmap

import "git.fiblab.net/general/common/v2/geometry"

// Direction indexes a lane's side-neighbor slots, left before right — the
// same convention the teacher's entity package uses for sideLanes[2].
const (
	Left = iota
	Right
)

// ConnectionType distinguishes a lane-to-lane link that continues straight
// ahead from one that only exists to let traffic merge or diverge.
type ConnectionType int

const (
	ConnectionHead ConnectionType = iota
	ConnectionMerge
)

// Connection is one edge in the lane connectivity graph.
type Connection struct {
	Lane Lane
	Type ConnectionType
}

// Lane is the per-lane surface the traffic core consumes (SPEC_FULL.md §6):
// length, speed limit, centerline geometry, topology, and lane-coordinate
// conversions.
type Lane interface {
	ID() int32
	Length() float64
	Width() float64
	MaxSpeed() float64

	// PositionAt converts an arc-length offset to a world point.
	PositionAt(s float64) geometry.Point
	// DirectionAt returns the centerline tangent direction (radians) at s.
	DirectionAt(s float64) float64
	// CurvatureRadiusAt returns the local radius of curvature at s; +Inf
	// on a straight segment.
	CurvatureRadiusAt(s float64) float64
	// ProjectToLane returns the arc-length offset of the closest point on
	// the centerline to pos, clamped to [0, Length()].
	ProjectToLane(pos geometry.Point) float64

	ParentRoad() Road
	OffsetInRoad() int // 0 = leftmost

	Predecessors() map[int32]Connection
	Successors() map[int32]Connection
	UniquePredecessor() Lane // nil if not exactly one
	UniqueSuccessor() Lane

	LeftLane() Lane
	RightLane() Lane
	NeighborLane(side int) Lane

	// CompositeLane returns the canonical representative for lanes that
	// are geometrically equivalent (e.g. parallel junction-internal
	// lanes sharing a centerline); equal to the lane itself when no such
	// equivalence exists.
	CompositeLane() Lane
}

// Road is the per-road surface the traffic core consumes.
type Road interface {
	ID() int32
	Lanes() []Lane
	DrivingLanes() []Lane
	IncomingRoads() []Road
	OutgoingRoads() []Road
}

// RoadMap is the narrow interface §6 calls "the road-map consumed
// interface": lookups by id, nearest-lane queries, and random routing.
type RoadMap interface {
	Lane(id int32) (Lane, bool)
	Road(id int32) (Road, bool)

	// NearestLanes returns up to k lanes within radius of pos, nearest
	// first. includeJunctions controls whether junction-internal lanes
	// are eligible candidates.
	NearestLanes(pos geometry.Point, radius float64, k int, includeJunctions bool) []Lane

	// RandomRouteFromRoad builds a plausible route starting at roadID by
	// taking up to maxHops random legal successor-road steps.
	RandomRouteFromRoad(roadID int32, draw func(n int) int, maxHops int) []int32
}
