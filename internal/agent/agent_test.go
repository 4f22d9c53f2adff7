package agent

import (
	"testing"

	"github.com/idqam/swarmsim/internal/world"
	"github.com/stretchr/testify/assert"
)

func flatView(intensity float64) WorldView {
	return WorldView{
		Now:           0,
		SampleIntensity: func(x, y float64) float64 { return intensity },
		BoundsWidthM:  1000,
		BoundsHeightM: 1000,
	}
}

func TestIdleRequiresTakeoffCommandAndBattery(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateIdle, BatteryPercent: 100}

	intent := a.Step(flatView(0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateIdle, intent.NextState)

	a.RequestTakeoff()
	intent = a.Step(flatView(0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateTakeoff, intent.NextState)
}

func TestTakeoffTransitionsToSearchAtTargetAltitude(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateTakeoff, BatteryPercent: 100, PayloadRemaining: 10, Pose: world.Vector3{Z: a.Cfg.TakeoffAltitudeM - 0.05}}

	intent := a.Step(flatView(0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateSearch, intent.NextState)
}

func TestSearchDetectsFireAndSuppresses(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateSearch, BatteryPercent: 100, PayloadRemaining: 10}

	intent := a.Step(flatView(0.9), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateSuppress, intent.NextState)
}

func TestSuppressExitsWhenFireOut(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateSuppress, BatteryPercent: 100, PayloadRemaining: 10}

	intent := a.Step(flatView(0.0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateSearch, intent.NextState)
	assert.False(t, intent.WantSuppression)
}

func TestSuppressExitsToRTLWhenPayloadEmpty(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateSuppress, BatteryPercent: 100, PayloadRemaining: 0}

	intent := a.Step(flatView(0.5), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateReturnToLaunch, intent.NextState)
}

func TestRTLOverrideFiresFromAnyMissionState(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateSearch, BatteryPercent: 15, PayloadRemaining: 10}

	intent := a.Step(flatView(0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateReturnToLaunch, intent.NextState)
}

func TestRTLTransitionsToLandWithinLandingRadius(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	dock := world.Vector3{X: 0, Y: 0, Z: 0}
	d := world.Drone{State: world.StateReturnToLaunch, BatteryPercent: 15, PayloadRemaining: 10, Pose: world.Vector3{X: 1, Y: 1, Z: 10}}

	intent := a.Step(flatView(0), d, dock, 0.1)
	assert.Equal(t, world.StateLand, intent.NextState)
}

func TestLandTransitionsToIdleOnGround(t *testing.T) {
	a := New(1, world.RoleLeader, DefaultConfig(), 0)
	d := world.Drone{State: world.StateLand, Pose: world.Vector3{Z: 0.1}}

	intent := a.Step(flatView(0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateIdle, intent.NextState)
}

func TestFollowerUsesFormationState(t *testing.T) {
	a := New(2, world.RoleFollower, DefaultConfig(), 0)
	a.SetLeaderTarget(1)
	d := world.Drone{State: world.StateTakeoff, BatteryPercent: 100, PayloadRemaining: 10, Pose: world.Vector3{Z: a.Cfg.TakeoffAltitudeM}}

	intent := a.Step(flatView(0), d, world.Vector3{}, 0.1)
	assert.Equal(t, world.StateFormation, intent.NextState)
}
