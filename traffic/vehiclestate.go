package traffic

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
)

// Role tags who is driving a vehicle.
type Role int

const (
	RoleUnknown Role = iota
	RoleSocial
	RoleEgoAgent
	RoleSocialAgent
)

// Pose is a 2D pose; it has no z component, since the dynamics ignore z
// (§3).
type Pose struct {
	Position geometry.Point
	Heading  float64 // radians, [0, 2π)
}

// VehicleState is the wire-level snapshot exchanged with the provider's
// peers: identity, pose, speed, acceleration, bounding box, role, and the
// source label naming the provider currently responsible for it.
//
// Invariants: Speed >= 0; Heading in [0, 2π); Length/Width/Height > 0;
// Source names exactly one provider.
type VehicleState struct {
	ID       string
	Pose     Pose
	Speed    float64
	// LinearAcceleration is Δt·a·unit(heading): dimensionally a velocity
	// delta, not an acceleration vector. Preserved as specified rather than
	// corrected (see SPEC_FULL.md §9 Open Questions) — downstream consumers
	// that want true acceleration must divide by Δt themselves.
	LinearAcceleration geometry.Point
	Length             float64
	Width              float64
	Height             float64
	Role               Role
	Source             string
}

// BoundingBox returns the vehicle's oriented rectangle at its current pose,
// used by spawn/teleport overlap checks (§4.9, §4.10) and the no-
// self-collision property (§8).
type BoundingBox struct {
	Center  geometry.Point
	Heading float64
	Length  float64
	Width   float64
}

func (v VehicleState) BoundingBox() BoundingBox {
	return BoundingBox{Center: v.Pose.Position, Heading: v.Pose.Heading, Length: v.Length, Width: v.Width}
}

// Overlaps reports whether two oriented bounding boxes intersect, via the
// separating-axis test over each box's two edge normals.
func (b BoundingBox) Overlaps(other BoundingBox) bool {
	axes := []float64{b.Heading, b.Heading + halfPi, other.Heading, other.Heading + halfPi}
	for _, axis := range axes {
		aMin, aMax := b.projectOnto(axis)
		bMin, bMax := other.projectOnto(axis)
		if aMax < bMin || bMax < aMin {
			return false
		}
	}
	return true
}

const halfPi = 1.5707963267948966

func (b BoundingBox) projectOnto(axis float64) (min, max float64) {
	ux, uy := math.Cos(axis), math.Sin(axis)
	corners := b.corners()
	min, max = math.Inf(1), math.Inf(-1)
	for _, c := range corners {
		p := c.X*ux + c.Y*uy
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return
}

func (b BoundingBox) corners() [4]geometry.Point {
	hl, hw := b.Length/2, b.Width/2
	ux, uy := math.Cos(b.Heading), math.Sin(b.Heading)
	nx, ny := -uy, ux
	mk := func(along, side float64) geometry.Point {
		return geometry.Point{
			X: b.Center.X + along*ux + side*nx,
			Y: b.Center.Y + along*uy + side*ny,
		}
	}
	return [4]geometry.Point{mk(hl, hw), mk(hl, -hw), mk(-hl, hw), mk(-hl, -hw)}
}
