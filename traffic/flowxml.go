package traffic

import (
	"encoding/xml"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var flowLog = logrus.WithField("module", "traffic.flowxml")

// xmlRoutes mirrors the <routes> root of the §6 traffic flow file. No
// third-party XML library exists anywhere in the retrieved example pack
// (confirmed by a corpus-wide search), so this loader uses the standard
// library's encoding/xml rather than inventing a dependency.
type xmlRoutes struct {
	VTypes []xmlVType `xml:"vType"`
	Routes []xmlRoute `xml:"route"`
	Flows  []xmlFlow  `xml:"flow"`
}

type xmlVType struct {
	ID             string `xml:"id,attr"`
	VClass         string `xml:"vClass,attr"`
	MaxSpeed       string `xml:"maxSpeed,attr"`
	Accel          string `xml:"accel,attr"`
	Decel          string `xml:"decel,attr"`
	EmergencyDecel string `xml:"emergencyDecel,attr"`
	MinGap         string `xml:"minGap,attr"`
	Tau            string `xml:"tau,attr"`
	SpeedFactor    string `xml:"speedFactor,attr"`
	SpeedDev       string `xml:"speedDev,attr"`
	Sigma          string `xml:"sigma,attr"`
	LCAssertive    string `xml:"lcAssertive,attr"`
	LCCutinProb    string `xml:"lcCutinProb,attr"`
	LCDogmatic     string `xml:"lcDogmatic,attr"`
}

type xmlRoute struct {
	ID    string `xml:"id,attr"`
	Edges string `xml:"edges,attr"`
}

type xmlFlow struct {
	ID            string `xml:"id,attr"`
	Type          string `xml:"type,attr"`
	Route         string `xml:"route,attr"`
	Begin         string `xml:"begin,attr"`
	End           string `xml:"end,attr"`
	VehsPerHour   string `xml:"vehsPerHour,attr"`
	DepartLane    string `xml:"departLane,attr"`
	DepartPos     string `xml:"departPos,attr"`
	DepartSpeed   string `xml:"departSpeed,attr"`
	ArrivalLane   string `xml:"arrivalLane,attr"`
	ArrivalPos    string `xml:"arrivalPos,attr"`
}

// LoadFlowFile parses a §6 XML flow file into vType templates, raw route
// edge lists, and the raw <flow> elements (routes are resolved against the
// road map and registered by the caller, which turns each flow element into
// a FlowSpec with BuildFlowSpec — see provider.Setup).
func LoadFlowFile(path string) (vTypes map[string]VType, routeEdges map[string][]int32, flows []xmlFlow, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, newConfigError("read flow file %s: %v", path, err)
	}
	var doc xmlRoutes
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, newConfigError("parse flow file %s: %v", path, err)
	}

	vTypes = make(map[string]VType, len(doc.VTypes))
	for _, v := range doc.VTypes {
		vTypes[v.ID] = parseVType(v)
	}

	routeEdges = make(map[string][]int32, len(doc.Routes))
	for _, r := range doc.Routes {
		ids, err := parseEdgeList(r.Edges)
		if err != nil {
			return nil, nil, nil, newConfigError("route %s: %v", r.ID, err)
		}
		routeEdges[r.ID] = ids
	}

	for _, f := range doc.Flows {
		if _, ok := vTypes[f.Type]; !ok {
			return nil, nil, nil, newConfigError("flow %s references unknown vType %s", f.ID, f.Type)
		}
		if _, ok := routeEdges[f.Route]; !ok {
			return nil, nil, nil, newConfigError("flow %s references unknown route %s", f.ID, f.Route)
		}
	}

	return vTypes, routeEdges, doc.Flows, nil
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseVType(x xmlVType) VType {
	v := defaultVType(x.ID)
	v.VClass = lo.Ternary(x.VClass != "", x.VClass, v.VClass)
	v.MaxSpeed = parseFloat(x.MaxSpeed, v.MaxSpeed)
	v.Accel = parseFloat(x.Accel, v.Accel)
	v.Decel = parseFloat(x.Decel, v.Decel)
	v.EmergencyDecel = parseFloat(x.EmergencyDecel, v.EmergencyDecel)
	v.MinGap = parseFloat(x.MinGap, v.MinGap)
	v.Tau = parseFloat(x.Tau, v.Tau)
	v.SpeedFactor = parseFloat(x.SpeedFactor, v.SpeedFactor)
	v.SpeedDev = parseFloat(x.SpeedDev, v.SpeedDev)
	v.LCAssertive = parseFloat(x.LCAssertive, v.LCAssertive)
	v.LCCutinProb = parseFloat(x.LCCutinProb, v.LCCutinProb)
	v.LCDogmatic = x.LCDogmatic == "true" || x.LCDogmatic == "1"

	if v.LCCutinProb < 0 || v.LCCutinProb > 1 {
		flowLog.WithField("vType", x.ID).Warnf("lcCutinProb %f out of [0,1], clamped to default", v.LCCutinProb)
		v.LCCutinProb = defaultVType(x.ID).LCCutinProb
	}
	if v.LCAssertive <= 0 {
		flowLog.WithField("vType", x.ID).Warnf("lcAssertive %f non-positive, clamped to default", v.LCAssertive)
		v.LCAssertive = defaultVType(x.ID).LCAssertive
	}
	return v
}

func parseEdgeList(edges string) ([]int32, error) {
	fields := strings.Fields(edges)
	if len(fields) == 0 {
		return nil, newConfigError("empty edge list")
	}
	ids := make([]int32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, int32(n))
	}
	return ids, nil
}

func parseOffset(s string) Offset {
	switch s {
	case "max":
		return Offset{Kind: OffsetMax}
	case "random":
		return Offset{Kind: OffsetRandom}
	default:
		return Offset{Kind: OffsetLiteral, Value: parseFloat(s, 0)}
	}
}

func parseDepartSpeed(s string) DepartSpeed {
	switch s {
	case "max":
		return DepartSpeed{Kind: DepartSpeedMax}
	case "speed_limit":
		return DepartSpeed{Kind: DepartSpeedLimit}
	case "random":
		return DepartSpeed{Kind: DepartSpeedRandom}
	default:
		return DepartSpeed{Kind: DepartSpeedLiteral, Value: parseFloat(s, 0)}
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFlowWindow(x xmlFlow) (begin, end, vph float64) {
	return parseFloat(x.Begin, 0), parseFloat(x.End, math.Inf(1)), parseFloat(x.VehsPerHour, 0)
}

// BuildFlowSpec converts one parsed <flow> element plus its resolved
// vType/route into a runnable FlowSpec, ready for TrySpawn. Unknown
// vType/route references are caught by LoadFlowFile before this is
// called, so lookups here are assumed to succeed. An omitted arrivalPos
// resolves to the end of the arrival lane ("max").
func BuildFlowSpec(x xmlFlow, vTypes map[string]VType, routes map[string]*Route) *FlowSpec {
	begin, end, vph := parseFlowWindow(x)
	if x.ArrivalPos == "" {
		x.ArrivalPos = "max"
	}
	return &FlowSpec{
		ID:              x.ID,
		VType:           vTypes[x.Type],
		Route:           routes[x.Route],
		DepartLane:      parseIntDefault(x.DepartLane, 0),
		DepartPos:       parseOffset(x.DepartPos),
		DepartSpeed:     parseDepartSpeed(x.DepartSpeed),
		ArrivalLane:     parseIntDefault(x.ArrivalLane, 0),
		ArrivalPos:      parseOffset(x.ArrivalPos),
		Begin:           begin,
		End:             end,
		VehiclesPerHour: vph,
		lastSpawn:       math.Inf(-1),
	}
}

// DefaultVTypeFrom synthesizes a VType for a hand-off-in vehicle (§4.11
// add_vehicle) whose physical template is unknown: it keeps the incoming
// bounding-box dimensions and falls back to the XML format's documented
// defaults (§6) for every driving parameter.
func DefaultVTypeFrom(st VehicleState) VType {
	v := defaultVType("external:" + st.ID)
	if st.Length > 0 {
		v.Length = st.Length
	}
	if st.Width > 0 {
		v.Width = st.Width
	}
	if st.Height > 0 {
		v.Height = st.Height
	}
	return v
}
