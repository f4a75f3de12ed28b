package roadmap

// roadImpl is the concrete Road: an ordered slice of driving lanes plus the
// road-to-road topology derived from its edge lanes' connections. Grounded
// on entity/road/road.go, stripped of the junction/traffic-light fields the
// spec's Non-goals put out of scope.
type roadImpl struct {
	id       int32
	name     string
	lanes    []Lane
	incoming []Road
	outgoing []Road
}

// RoadSpec is the builder-facing description of one road.
type RoadSpec struct {
	ID   int32
	Name string
}

func newRoad(spec RoadSpec) *roadImpl {
	return &roadImpl{id: spec.ID, name: spec.Name}
}

func (r *roadImpl) ID() int32     { return r.id }
func (r *roadImpl) Lanes() []Lane { return r.lanes }

// DrivingLanes is the same slice as Lanes: this package only models driving
// lanes (walking lanes are out of scope per SPEC_FULL.md §1's pedestrian
// non-goal), kept as a distinct accessor to match the §6 interface name.
func (r *roadImpl) DrivingLanes() []Lane { return r.lanes }

func (r *roadImpl) IncomingRoads() []Road { return r.incoming }
func (r *roadImpl) OutgoingRoads() []Road { return r.outgoing }
