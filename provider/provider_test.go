package provider_test

import (
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/microtraffic/provider"
	"git.fiblab.net/sim/microtraffic/roadmap"
	"git.fiblab.net/sim/microtraffic/traffic"
	"git.fiblab.net/sim/microtraffic/utils/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const straightFlowXML = `<routes>
  <vType id="car" maxSpeed="20" accel="3" decel="4.5"/>
  <route id="r1" edges="1"/>
  <flow id="f1" type="car" route="r1" begin="0" end="1000" vehsPerHour="360" departLane="0" departPos="0" departSpeed="0"/>
</routes>`

func straightProviderMap(t *testing.T) roadmap.RoadMap {
	t.Helper()
	roads := []roadmap.RoadSpec{{ID: 1, Name: "a"}}
	lanes := []roadmap.ExtendedLaneSpec{
		{RoadID: 1, LaneSpec: roadmap.LaneSpec{
			ID: 10, Width: 3.5, MaxSpeed: 20,
			Centerline: []geometry.Point{{X: 0, Y: 0}, {X: 500, Y: 0}},
		}},
	}
	rm, err := roadmap.Build(roads, lanes)
	require.NoError(t, err)
	return rm
}

func writeFlowFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, flowFile string) *config.Config {
	return &config.Config{
		Input:   config.Input{FlowFile: flowFile},
		Control: config.Control{Step: config.ControlStep{Start: 0, Total: 1000, Interval: 1}, Seed: 1},
	}
}

// Scenario 1 (§8): a single flow on a single straight lane spawns vehicles
// at its configured period as the provider is stepped forward.
func TestProviderSpawnsFromFlow(t *testing.T) {
	rm := straightProviderMap(t)
	flowFile := writeFlowFile(t, straightFlowXML)
	p := provider.New("test-provider")

	states, err := p.Setup(provider.Scenario{RoadMap: rm, Config: testConfig(t, flowFile)})
	require.NoError(t, err)
	assert.Len(t, states, 1)

	states = p.Step(1, 0)
	require.Len(t, states, 1)
	assert.Equal(t, "test-provider", states[0].Source)

	// Before one full period (10s) elapses, no second vehicle spawns.
	states = p.Step(1, 1)
	assert.Len(t, states, 1)
}

// Scenario 6 (§8): when Sync reports a previously-owned vehicle under a
// different source, the provider releases it (hand-off out) rather than
// continuing to simulate it.
func TestProviderSyncHandsOffOwnedVehicleToAnotherSource(t *testing.T) {
	rm := straightProviderMap(t)
	flowFile := writeFlowFile(t, straightFlowXML)
	p := provider.New("provider-a")

	_, err := p.Setup(provider.Scenario{RoadMap: rm, Config: testConfig(t, flowFile)})
	require.NoError(t, err)

	states := p.Step(1, 0)
	require.Len(t, states, 1)
	owned := states[0]
	assert.True(t, p.ManagesVehicle(owned.ID))

	handedOff := owned
	handedOff.Source = "provider-b"
	p.Sync([]traffic.VehicleState{handedOff})

	assert.False(t, p.ManagesVehicle(owned.ID))
}

func TestProviderAddVehicleAndStopManaging(t *testing.T) {
	rm := straightProviderMap(t)
	flowFile := writeFlowFile(t, straightFlowXML)
	p := provider.New("provider-a")
	_, err := p.Setup(provider.Scenario{RoadMap: rm, Config: testConfig(t, flowFile)})
	require.NoError(t, err)

	st := traffic.VehicleState{
		ID:    "external-1",
		Pose:  traffic.Pose{Position: geometry.Point{X: 10, Y: 0}, Heading: 0},
		Speed: 5, Length: 5, Width: 1.8, Height: 1.5,
	}
	require.NoError(t, p.AddVehicle(st, []int32{1}))
	assert.True(t, p.ManagesVehicle("external-1"))

	require.NoError(t, p.StopManaging("external-1"))
	assert.False(t, p.ManagesVehicle("external-1"))

	var ownErr *traffic.OwnershipViolation
	err = p.StopManaging("external-1")
	assert.ErrorAs(t, err, &ownErr)
}
