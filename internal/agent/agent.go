// Package agent implements the per-vehicle state machine of spec.md
// §4.6, grounded on the teacher's VehicleAgent/DecisionState split in
// idqam-fleet-sim-ms/.../entities/agent.go and the route-assignment/
// pose-integration pair in vehicle-routing.go and vehicle-move.go,
// generalized from road-edge progress to free point-mass motion plus a
// Lévy-flight search policy.
//
// Per spec.md §9's redesign note on cyclic engine<->agent references,
// an Agent never holds a reference to the engine: each tick it is
// handed an immutable WorldView and returns an Intent, a typed
// command-sink value consumed by the orchestrator.
package agent

import (
	"math"
	"math/rand/v2"

	"github.com/idqam/swarmsim/internal/etm"
	"github.com/idqam/swarmsim/internal/observer"
	"github.com/idqam/swarmsim/internal/world"
)

// WorldView is the read-only interface an Agent senses the world
// through; the engine is the only implementer.
type WorldView struct {
	Now             float64
	SampleIntensity func(xM, yM float64) float64
	BoundsWidthM    float64
	BoundsHeightM   float64
}

// Config holds the per-vehicle behavior parameters (spec.md §6 and
// §4.6).
type Config struct {
	CruiseSpeedMps       float64
	ClimbRateMps         float64
	TakeoffAltitudeM     float64
	SensorRadiusM        float64
	DetectionThreshold   float64
	SuppressionStrength  float64
	RTLThresholdPercent  float64
	LandingRadiusM       float64
	LevyAlpha            float64
	LevyStepScaleM       float64
	FormationOffset      world.Vector3 // follower offset relative to its leader, FORMATION state only
}

func DefaultConfig() Config {
	return Config{
		CruiseSpeedMps:      8.0,
		ClimbRateMps:        2.0,
		TakeoffAltitudeM:    50.0,
		SensorRadiusM:       20.0,
		DetectionThreshold:  0.1,
		SuppressionStrength: 0.5,
		RTLThresholdPercent: 20.0,
		LandingRadiusM:      5.0,
		LevyAlpha:           1.5,
		LevyStepScaleM:      15.0,
	}
}

// Intent is what an Agent wants to happen this tick; the engine (the
// only writer of canonical pose/energy) carries it out.
type Intent struct {
	NextState        world.VehicleState
	DesiredVelocity  world.Vector3
	WantSuppression  bool
	SuppressPosition world.Vector2
	SuppressStrength float64
	WantDetection    bool
	Detection        world.FireDetectionPayload
	ShouldTransmit   bool
}

// Agent is the per-vehicle decentralized controller: its own ETM state
// and its own observer over neighbors, seeded independently of the
// engine's RNGs (spec.md §9).
type Agent struct {
	ID       int
	Role     world.Role
	Cfg      Config
	ETM      *etm.Controller
	Observer *observer.Observer

	rng            *rand.Rand
	leaderID       int
	hasLeaderTarget bool
	takeoffCmd     bool
}

// New builds an Agent with its own exploration RNG seeded from
// (configSeed, droneID) for reproducibility (spec.md §4.6).
func New(id int, role world.Role, cfg Config, configSeed int64) *Agent {
	return &Agent{
		ID:       id,
		Role:     role,
		Cfg:      cfg,
		ETM:      etm.New(etm.DefaultConfig()),
		Observer: observer.New(observer.DefaultConfig()),
		rng:      rand.New(rand.NewPCG(uint64(configSeed), uint64(id)|1)),
	}
}

// RequestTakeoff arms the IDLE -> TAKEOFF transition's external trigger.
func (a *Agent) RequestTakeoff() {
	a.takeoffCmd = true
}

// SetLeaderTarget assigns which leader ID this follower flies formation
// relative to; irrelevant for LEADER-role agents.
func (a *Agent) SetLeaderTarget(leaderID int) {
	a.leaderID = leaderID
	a.hasLeaderTarget = true
}

// SetRTLThreshold hot-swaps the battery percent below which the RTL
// override fires (spec.md §9 hot-reload of RTL thresholds), without
// disturbing any other agent state.
func (a *Agent) SetRTLThreshold(percent float64) {
	a.Cfg.RTLThresholdPercent = percent
}

// searchState is the non-SUPPRESS cruising state for this agent's role.
func (a *Agent) searchState() world.VehicleState {
	if a.Role == world.RoleFollower && a.hasLeaderTarget {
		return world.StateFormation
	}
	return world.StateSearch
}

// Step runs one tick of sense -> decide -> intend for the current drone
// record d (a value, never a pointer into engine state) and dt.
func (a *Agent) Step(view WorldView, d world.Drone, dockPose world.Vector3, dt float64) Intent {
	rtlThreshold := a.Cfg.RTLThresholdPercent
	state := d.State

	// RTL override: hard precondition, any state but RTL/LAND/IDLE can be
	// interrupted immediately (spec.md §4.6 "RTL override").
	if state != world.StateReturnToLaunch && state != world.StateLand && state != world.StateIdle {
		if d.BatteryPercent <= rtlThreshold || d.PayloadRemaining <= 0 {
			return Intent{NextState: world.StateReturnToLaunch, DesiredVelocity: towardVelocity(d.Pose, dockPose, a.Cfg.CruiseSpeedMps)}
		}
	}

	switch state {
	case world.StateIdle:
		return a.stepIdle(d)
	case world.StateTakeoff:
		return a.stepTakeoff(d, dt)
	case world.StateSearch, world.StateFormation:
		return a.stepSearchOrFormation(view, d, state, dt)
	case world.StateSuppress:
		return a.stepSuppress(view, d)
	case world.StateReturnToLaunch:
		return a.stepRTL(d, dockPose, dt)
	case world.StateLand:
		return a.stepLand(d, dt)
	default:
		return Intent{NextState: state}
	}
}

func (a *Agent) stepIdle(d world.Drone) Intent {
	if a.takeoffCmd && d.BatteryPercent > a.Cfg.RTLThresholdPercent {
		return Intent{NextState: world.StateTakeoff, DesiredVelocity: world.Vector3{}}
	}
	return Intent{NextState: world.StateIdle}
}

func (a *Agent) stepTakeoff(d world.Drone, dt float64) Intent {
	next := world.StateTakeoff
	vz := a.Cfg.ClimbRateMps
	if d.Pose.Z+vz*dt >= a.Cfg.TakeoffAltitudeM {
		next = a.searchState()
		vz = 0
	}
	return Intent{NextState: next, DesiredVelocity: world.Vector3{Z: vz}}
}

func (a *Agent) stepSearchOrFormation(view WorldView, d world.Drone, state world.VehicleState, dt float64) Intent {
	intensity := view.SampleIntensity(d.Pose.X, d.Pose.Y)

	if intensity > a.Cfg.DetectionThreshold && a.rng.Float64() < minF(1, intensity) {
		detect := Intent{
			NextState:     state,
			WantDetection: true,
			Detection: world.FireDetectionPayload{
				Position:  d.Pose.XY(),
				Intensity: intensity,
			},
		}
		if intensity > 0 {
			detect.NextState = world.StateSuppress
			detect.DesiredVelocity = world.Vector3{}
			return detect
		}
	}

	if state == world.StateFormation {
		return Intent{NextState: state, DesiredVelocity: a.formationVelocity(view, d)}
	}
	return Intent{NextState: state, DesiredVelocity: a.searchVelocity(view, d, dt)}
}

func (a *Agent) formationVelocity(view WorldView, d world.Drone) world.Vector3 {
	leaderPose, conf, ok := a.Observer.Predict(a.leaderID, view.Now)
	if !ok || conf <= 0 {
		return world.Vector3{}
	}
	target := leaderPose.Add(a.Cfg.FormationOffset)
	return towardVelocity(d.Pose, target, a.Cfg.CruiseSpeedMps)
}

func (a *Agent) searchVelocity(view WorldView, d world.Drone, dt float64) world.Vector3 {
	heading := a.rng.Float64() * 2 * math.Pi
	step := levyStep(a.rng, a.Cfg.LevyAlpha) * a.Cfg.LevyStepScaleM
	if step < 0 {
		step = -step
	}

	targetX := d.Pose.X + step*math.Cos(heading)
	targetY := d.Pose.Y + step*math.Sin(heading)
	targetX = world.Clamp(targetX, 0, view.BoundsWidthM)
	targetY = world.Clamp(targetY, 0, view.BoundsHeightM)

	target := world.Vector3{X: targetX, Y: targetY, Z: d.Pose.Z}
	return towardVelocity(d.Pose, target, a.Cfg.CruiseSpeedMps)
}

func (a *Agent) stepSuppress(view WorldView, d world.Drone) Intent {
	intensity := view.SampleIntensity(d.Pose.X, d.Pose.Y)
	next := world.StateSuppress
	if intensity < world.IgnitionEpsilon || d.PayloadRemaining <= 0 {
		next = a.searchState()
	}
	return Intent{
		NextState:        next,
		DesiredVelocity:  world.Vector3{},
		WantSuppression:  next == world.StateSuppress,
		SuppressPosition: d.Pose.XY(),
		SuppressStrength: a.Cfg.SuppressionStrength,
	}
}

func (a *Agent) stepRTL(d world.Drone, dockPose world.Vector3, dt float64) Intent {
	next := world.StateReturnToLaunch
	if world.Distance2D(d.Pose.XY(), dockPose.XY()) < a.Cfg.LandingRadiusM {
		next = world.StateLand
		return Intent{NextState: next, DesiredVelocity: world.Vector3{}}
	}
	return Intent{NextState: next, DesiredVelocity: towardVelocity(d.Pose, dockPose, a.Cfg.CruiseSpeedMps)}
}

func (a *Agent) stepLand(d world.Drone, dt float64) Intent {
	next := world.StateLand
	vz := -a.Cfg.ClimbRateMps
	if d.Pose.Z+vz*dt <= 0 {
		next = world.StateIdle
		vz = 0
	}
	return Intent{NextState: next, DesiredVelocity: world.Vector3{Z: vz}}
}

func towardVelocity(from, to world.Vector3, speed float64) world.Vector3 {
	d := to.Sub(from)
	dist := d.L2()
	if dist < 1e-9 {
		return world.Vector3{}
	}
	return d.Scale(speed / dist)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
