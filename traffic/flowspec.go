package traffic

import "math"

// OffsetKind tags how a depart/arrival lane offset is resolved at spawn or
// destination-check time (§9: "dynamic typing of flow attributes" becomes
// a proper tagged variant rather than parsing strings per tick).
type OffsetKind int

const (
	OffsetLiteral OffsetKind = iota
	OffsetMax
	OffsetRandom
)

// Offset is a depart-pos/arrival-pos value as parsed from the XML flow
// file (§6): either a literal meter value, "max" (resolved to the lane's
// length), or "random" (resolved via the shared RNG stream at spawn time).
type Offset struct {
	Kind  OffsetKind
	Value float64 // meaningful only when Kind == OffsetLiteral
}

// DepartSpeedKind tags how a flow's depart speed is resolved.
type DepartSpeedKind int

const (
	DepartSpeedLiteral DepartSpeedKind = iota
	DepartSpeedMax
	DepartSpeedLimit
	DepartSpeedRandom
)

// DepartSpeed is a depart-speed value as parsed from the XML flow file.
type DepartSpeed struct {
	Kind  DepartSpeedKind
	Value float64 // meaningful only when Kind == DepartSpeedLiteral
}

// VType is a vehicle-type template (§6 <vType>); every field has the
// documented default already applied by the loader.
type VType struct {
	ID             string
	VClass         string
	MaxSpeed       float64
	Accel          float64
	Decel          float64
	EmergencyDecel float64
	MinGap         float64
	Tau            float64
	SpeedFactor    float64
	SpeedDev       float64
	LCAssertive    float64
	LCCutinProb    float64
	LCDogmatic     bool
	Length         float64
	Width          float64
	Height         float64
}

func defaultVType(id string) VType {
	return VType{
		ID: id, VClass: "passenger",
		MaxSpeed: 55.55, Accel: 2.6, Decel: 4.5, EmergencyDecel: 4.5,
		MinGap: 2.5, Tau: 1.0, SpeedFactor: 1.0, SpeedDev: 0.1,
		LCAssertive: 1.0, LCCutinProb: 0.0, LCDogmatic: false,
		Length: 5, Width: 1.8, Height: 1.5,
	}
}

// FlowSpec is a declarative spawn source (§3): a vehicle-type template,
// route, depart/arrival lane+offset, depart speed, a spawn time window,
// and the derived inter-arrival period.
type FlowSpec struct {
	ID             string
	VType          VType
	Route          *Route
	DepartLane     int
	DepartPos      Offset
	DepartSpeed    DepartSpeed
	ArrivalLane    int
	ArrivalPos     Offset
	Begin, End     float64
	VehiclesPerHour float64

	lastSpawn   float64 // sim-time of the last spawn; -Inf until the first
	spawnCounter int     // appended to spawned actor ids for uniqueness
}

// Period is the inter-arrival time derived from VehiclesPerHour (§3).
func (f *FlowSpec) Period() float64 {
	if f.VehiclesPerHour <= 0 {
		return math.Inf(1)
	}
	return 3600.0 / f.VehiclesPerHour
}
