package traffic

import (
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	"git.fiblab.net/sim/microtraffic/roadmap"
)

// LaneWindow is the per-tick, per-candidate-lane scratch record consumed
// by lane selection (§4.3): time-to-collision ahead, time-to-rear-end,
// gaps, and the crossing-time-adjusted time-left used to compare lanes.
type LaneWindow struct {
	Lane roadmap.Lane

	S float64 // lane-relative coordinate of the actor's projection
	T float64 // lateral offset from lane center, |T| used by crossing time

	RemainingPath float64

	GapAhead  float64
	GapBehind float64

	TimeToCollision float64
	TimeToEnd       float64
	TimeLeft        float64 // min(TimeToEnd, TimeToCollision), §4.3 step 5
	TTRE            float64 // time-to-rear-end (symmetric, from the follower)

	CrossingTime float64
	AdjTimeLeft  float64

	Leader   *laneOccupant
	Follower *laneOccupant

	Feasible bool
}

// crossingAngleTheta is the targeted crossing angle (30°, sin(theta)=0.5)
// the original source assumes on average (§4.4).
const crossingAngleTheta = math.Pi / 6

// crossingTimeAtSpeed is the cost of crossing a single lane boundary at
// the given lane's width and curvature, at the actor's current speed
// (§4.4). angleScale corrects the effective crossing distance for
// curvature; it is 1/sin(theta) on a straight lane. towardHigherIndex is
// true when the overall crossing moves to a higher-offset lane.
func crossingTimeAtSpeed(lane roadmap.Lane, s, speed float64, towardHigherIndex bool) float64 {
	if speed <= 0 {
		return mathutil.INF
	}
	scale := angleScale(lane, s, towardHigherIndex)
	dist := lane.Width() * scale
	return dist / speed
}

// angleScale derives the curvature correction factor from the lane's local
// radius of curvature, matching `_LaneWindow._angle_scale` in the original
// local-traffic-provider source bit-for-bit (normative per SPEC_FULL.md
// §9): T = radius/width, branching on whether the crossing moves to a
// higher or lower lane index (the `T-1`/`T+1` terms), since a vehicle
// crossing toward the outside vs. inside of a curve travels a different
// effective arc length. This module's CurvatureRadiusAt returns an unsigned
// magnitude (see its own doc comment), so only the direction of the lane
// crossing — not the turn's handedness — selects the branch.
func angleScale(lane roadmap.Lane, s float64, towardHigherIndex bool) float64 {
	r := lane.CurvatureRadiusAt(s)
	if math.IsInf(r, 1) || r == 0 {
		return 1 / math.Sin(crossingAngleTheta)
	}
	width := lane.Width()
	t := r / width
	tanTheta := math.Tan(crossingAngleTheta)

	var se, denom float64
	if towardHigherIndex {
		se = t * (t - 1)
		denom = tanTheta * (t - 1)
	} else {
		se = t * (t + 1)
		denom = tanTheta * (t + 1)
	}
	if denom == 0 {
		return 1 / math.Sin(crossingAngleTheta)
	}
	return math.Sqrt(2 * (se + 0.5 - se*math.Cos(1/denom)))
}

// crossingTimeInto is the aggregate cost of crossing from the current
// lane (at s, t) to the lane at targetIndex, summing half the crossing
// for the final lane, full crossings for any intermediate lanes, and a
// partial term for the current lane scaled by how far off-center the
// actor already is (§4.4).
func crossingTimeInto(path []roadmap.Lane, s, t, speed float64) float64 {
	if len(path) == 0 {
		return 0
	}
	towardHigherIndex := path[len(path)-1].OffsetInRoad() > path[0].OffsetInRoad()

	width := path[0].Width()
	partialCurrent := (1 - math.Abs(t)/(width/2)) * 0.5 * crossingTimeAtSpeed(path[0], s, speed, towardHigherIndex)
	if partialCurrent < 0 {
		partialCurrent = 0
	}
	total := partialCurrent
	for i := 1; i < len(path)-1; i++ {
		total += crossingTimeAtSpeed(path[i], s, speed, towardHigherIndex)
	}
	if len(path) > 1 {
		last := path[len(path)-1]
		total += 0.5 * crossingTimeAtSpeed(last, s, speed, towardHigherIndex)
	}
	return total
}

// timeToCover solves dist = v*t + 0.5*a*t^2 for the smallest positive real
// root, returning +Inf when no positive solution exists — e.g.
// decelerating and unable to reach dist before stopping (§4.6).
func timeToCover(dist, v, a float64) float64 {
	if dist <= 0 {
		return 0
	}
	if a == 0 {
		if v <= 0 {
			return mathutil.INF
		}
		return dist / v
	}
	disc := v*v + 2*a*dist
	if disc < 0 {
		return mathutil.INF
	}
	sq := math.Sqrt(disc)
	t1 := (-v + sq) / a
	t2 := (-v - sq) / a
	best := mathutil.INF
	for _, t := range []float64{t1, t2} {
		if t > 0 && t < best {
			best = t
		}
	}
	return best
}
