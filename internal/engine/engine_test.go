package engine

import (
	"testing"
	"time"

	"github.com/idqam/swarmsim/internal/config"
	"github.com/idqam/swarmsim/internal/fire"
	"github.com/idqam/swarmsim/internal/world"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Fire.Width, cfg.Fire.Height = 20, 20
	cfg.Sim.Seed = 42
	return cfg
}

func TestRegisterDroneRejectsDuplicateID(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 5, Y: 5}, world.RoleLeader, 10, 0))
	err := e.RegisterDrone(0, world.Vector3{X: 6, Y: 6}, world.RoleLeader, 10, 0)
	assert.ErrorIs(t, err, world.ErrDuplicateID)
}

func TestStepRejectsNonPositiveDt(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	assert.ErrorIs(t, e.Step(0), world.ErrNegativeDt)
	assert.ErrorIs(t, e.Step(-1), world.ErrNegativeDt)
}

func TestBatteryIsMonotoneNonIncreasingAcrossTicks(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 100, Y: 100}, world.RoleLeader, 10, 1))
	require.NoError(t, e.RequestTakeoff(0))

	prev, err := e.Battery(0)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, e.Step(0.1))
		cur, err := e.Battery(0)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur, prev, "battery_percent must be non-increasing absent reset")
		prev = cur
	}
}

func TestResetDroneRestoresBatteryAndPayload(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 100, Y: 100}, world.RoleLeader, 10, 1))
	require.NoError(t, e.RequestTakeoff(0))
	for i := 0; i < 50; i++ {
		require.NoError(t, e.Step(0.1))
	}
	require.NoError(t, e.ResetDrone(0))
	bat, err := e.Battery(0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, bat)
}

func TestIgniteOutOfBoundsReturnsError(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	err := e.Ignite(1e9, 1e9, 1.0)
	assert.ErrorIs(t, err, world.ErrOutOfBounds)
}

func TestIgniteOnZeroFuelCellIsNoop(t *testing.T) {
	cfg := testConfig()
	e := New(cfg, zerolog.Nop())

	// Burndown only removes 0.01*intensity*dt of fuel per tick, so a
	// single burn never empties a cell; start from a grid with zero fuel
	// everywhere instead, tick it, then confirm an ignite attempt on a
	// zero-fuel cell leaves intensity unchanged (spec.md §8 boundary
	// behavior).
	e.grid = fire.New(fire.Params{
		Width:                    cfg.Fire.Width,
		Height:                   cfg.Fire.Height,
		CellSizeM:                cfg.Fire.CellSizeM,
		Seed:                     cfg.Sim.Seed,
		SpreadRateMpm:            cfg.Fire.SpreadRateMpm,
		SuppressionEffectiveness: cfg.Fire.SuppressionEffectiveness,
		InitialFuelDensity:       0,
	})
	require.NoError(t, e.Ignite(5, 5, 1.0))
	for i := 0; i < 5000; i++ {
		require.NoError(t, e.Step(0.1))
	}
	before := e.SampleIntensity(5, 5)
	require.NoError(t, e.Ignite(5, 5, 1.0))
	after := e.SampleIntensity(5, 5)
	assert.InDelta(t, before, after, 1e-9)
}

func TestSelfRSSIIsSentinelWithZeroLatency(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 5, Y: 5}, world.RoleLeader, 10, 1))

	link, err := e.RSSI(0, 0)
	require.NoError(t, err)
	assert.Equal(t, world.SelfRSSI, link.RSSIDbm)
	assert.Equal(t, 0.0, link.LatencySec)
}

func TestRSSIUnknownDroneReturnsError(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 5, Y: 5}, world.RoleLeader, 10, 1))
	_, err := e.RSSI(0, 99)
	assert.ErrorIs(t, err, world.ErrUnknownDrone)
}

func TestDeterministicReplaySnapshotsAreIdentical(t *testing.T) {
	run := func() Snapshot {
		cfg := testConfig()
		cfg.Swarm.NumLeaders, cfg.Swarm.NumFollowers = 0, 0
		e := New(cfg, zerolog.Nop())
		require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 10, Y: 10}, world.RoleLeader, 10, 0))
		require.NoError(t, e.RegisterDrone(1, world.Vector3{X: 50, Y: 50}, world.RoleFollower, 10, 0))
		require.NoError(t, e.RequestTakeoff(0))
		require.NoError(t, e.RequestTakeoff(1))
		require.NoError(t, e.Ignite(100, 100, 0.9))

		var snap Snapshot
		for i := 0; i < 100; i++ {
			require.NoError(t, e.Step(0.1))
			snap = e.ExportState()
		}
		return snap
	}

	a := run()
	b := run()
	assert.Equal(t, a, b, "identical config+seed runs must produce byte-identical snapshots")
}

func TestApplyHotReloadUpdatesRunningEngineConfig(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	e.Start()
	defer e.Stop()

	eta := 3.3
	result := make(chan error, 1)
	e.Inbox() <- ConfigUpdateCommand{HotReload: config.HotReload{DETMEta0: &eta}, Result: result}
	require.NoError(t, <-result)

	assert.InDelta(t, eta, e.Config().Swarm.DETMEta0, 1e-9)
}

func TestFatalChannelReceivesInvariantViolation(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())
	require.NoError(t, e.RegisterDrone(0, world.Vector3{X: 5, Y: 5}, world.RoleLeader, 10, 1))

	// Force an invariant violation directly rather than through 10^4
	// battery-drain ticks: corrupt the record the tick loop will check.
	e.vehicles[0].drone.BatteryPercent = -1

	e.Start()
	defer e.Stop()

	select {
	case err := <-e.Fatal():
		var iv *InvariantViolation
		require.ErrorAs(t, err, &iv)
	case <-time.After(2 * time.Second):
		t.Fatal("tick loop did not report the invariant violation in time")
	}
}
