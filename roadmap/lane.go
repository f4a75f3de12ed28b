package roadmap

import (
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"
)

// laneImpl is the concrete Lane: a polyline centerline plus the topology
// and width/speed attributes the decision loop needs. Grounded on
// entity/lane/lane.go, stripped of signal state, AOIs, and the
// vehicle/pedestrian occupancy lists (those live in traffic.SpatialLaneCache
// instead — §4.2 rebuilds per-lane occupancy from scratch every tick rather
// than maintaining it as lane-owned state).
type laneImpl struct {
	id       int32
	width    float64
	maxSpeed float64

	line           []geometry.Point
	lineLengths    []float64
	lineDirections []geometry.PolylineDirection
	length         float64

	parentRoad   *roadImpl
	offsetInRoad int

	predecessors map[int32]Connection
	successors   map[int32]Connection
	sideLanes    [2][]Lane

	composite Lane // self unless overridden by the map builder
}

// LaneSpec is the builder-facing description of one lane; RoadMap.Build
// wires LaneSpecs into the connected laneImpl graph.
type LaneSpec struct {
	ID           int32
	Width        float64
	MaxSpeed     float64
	Centerline   []geometry.Point
	OffsetInRoad int
	Predecessors []int32
	Successors   []int32
}

func newLane(spec LaneSpec) *laneImpl {
	l := &laneImpl{
		id:           spec.ID,
		width:        spec.Width,
		maxSpeed:     spec.MaxSpeed,
		line:         spec.Centerline,
		offsetInRoad: spec.OffsetInRoad,
		predecessors: make(map[int32]Connection),
		successors:   make(map[int32]Connection),
	}
	l.lineLengths = geometry.GetPolylineLengths2D(l.line)
	l.length = l.lineLengths[len(l.lineLengths)-1]
	l.lineDirections = geometry.GetPolylineDirections(l.line)
	l.composite = l
	return l
}

func (l *laneImpl) ID() int32         { return l.id }
func (l *laneImpl) Length() float64   { return l.length }
func (l *laneImpl) Width() float64    { return l.width }
func (l *laneImpl) MaxSpeed() float64 { return l.maxSpeed }

func (l *laneImpl) PositionAt(s float64) geometry.Point {
	s = lo.Clamp(s, 0, l.length)
	i := sort.SearchFloat64s(l.lineLengths, s)
	if i == 0 {
		return l.line[0]
	}
	sHigh, sLow := l.lineLengths[i], l.lineLengths[i-1]
	k := (s - sLow) / (sHigh - sLow)
	return geometry.Blend(l.line[i-1], l.line[i], k)
}

func (l *laneImpl) DirectionAt(s float64) float64 {
	s = lo.Clamp(s, 0, l.length)
	i := sort.SearchFloat64s(l.lineLengths, s)
	if i == 0 {
		return l.lineDirections[0].Direction
	}
	return l.lineDirections[i-1].Direction
}

// CurvatureRadiusAt estimates the local radius of curvature from the
// circumradius of three centerline samples straddling s. Near-collinear
// samples (the common straight-segment case) return +Inf rather than a
// numerically unstable huge number.
func (l *laneImpl) CurvatureRadiusAt(s float64) float64 {
	const sample = 3.0
	a := l.PositionAt(lo.Clamp(s-sample, 0, l.length))
	b := l.PositionAt(s)
	c := l.PositionAt(lo.Clamp(s+sample, 0, l.length))

	ab := math.Hypot(b.X-a.X, b.Y-a.Y)
	bc := math.Hypot(c.X-b.X, c.Y-b.Y)
	ca := math.Hypot(a.X-c.X, a.Y-c.Y)
	area2 := math.Abs((b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y))
	if area2 < 1e-9 {
		return mathutil.INF
	}
	return (ab * bc * ca) / (2 * area2)
}

func (l *laneImpl) ProjectToLane(pos geometry.Point) float64 {
	s := geometry.GetClosestPolylineSToPoint2D(l.line, l.lineLengths, pos)
	return lo.Clamp(s, 0, l.length)
}

func (l *laneImpl) ParentRoad() Road { return l.parentRoad }
func (l *laneImpl) OffsetInRoad() int { return l.offsetInRoad }

func (l *laneImpl) Predecessors() map[int32]Connection { return l.predecessors }
func (l *laneImpl) Successors() map[int32]Connection   { return l.successors }

func (l *laneImpl) UniquePredecessor() Lane {
	if len(l.predecessors) != 1 {
		return nil
	}
	for _, c := range l.predecessors {
		return c.Lane
	}
	return nil
}

func (l *laneImpl) UniqueSuccessor() Lane {
	if len(l.successors) != 1 {
		return nil
	}
	for _, c := range l.successors {
		return c.Lane
	}
	return nil
}

func (l *laneImpl) LeftLane() Lane  { return l.NeighborLane(Left) }
func (l *laneImpl) RightLane() Lane { return l.NeighborLane(Right) }

func (l *laneImpl) NeighborLane(side int) Lane {
	if len(l.sideLanes[side]) == 0 {
		return nil
	}
	return l.sideLanes[side][0]
}

func (l *laneImpl) CompositeLane() Lane { return l.composite }
