// Package engine implements the authoritative physics engine and tick
// orchestrator of spec.md §4.1 and §2: the single source of truth for
// fire grid, RF links, vehicle energy and pose, driving the six-step
// tick order every dt.
//
// Grounded on the teacher's SimulationEngine lifecycle
// (idqam-fleet-sim-ms/.../simulation-engine/simulation-engine.go:
// Start/Stop/AddVehicle/RunVehicleGoroutine), collapsed from a
// goroutine-per-vehicle model to the single-threaded fixed-step loop
// spec.md §5 requires; the teacher's goroutine-per-entity pattern is
// kept instead for the external I/O boundary (see internal/api).
package engine

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/idqam/swarmsim/internal/agent"
	"github.com/idqam/swarmsim/internal/bus"
	"github.com/idqam/swarmsim/internal/channel"
	"github.com/idqam/swarmsim/internal/config"
	"github.com/idqam/swarmsim/internal/etm"
	"github.com/idqam/swarmsim/internal/fire"
	"github.com/idqam/swarmsim/internal/metrics"
	"github.com/idqam/swarmsim/internal/world"
	"github.com/rs/zerolog"
)

type vehicleRecord struct {
	drone *world.Drone
	agent *agent.Agent
	dock  world.Vector3
}

// Engine is the authoritative world container and tick orchestrator.
type Engine struct {
	cfg    config.Config
	logger zerolog.Logger

	grid  *fire.Grid
	rf    *channel.Model
	msgs  *bus.Bus
	docks dockLayout
	reg   *metrics.Registry

	deliveryRNG    *rand.Rand
	broadcastDrops int

	mu        sync.RWMutex
	vehicles  map[int]*vehicleRecord
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	now  float64
	tick int64

	inbox  chan Command
	outbox atomic.Pointer[Snapshot]

	onSnapshot func(Snapshot)
	fatal      chan error
}

// OnSnapshot registers a callback invoked with every tick's published
// snapshot, in addition to the outbox. Used to feed the streaming hub
// without coupling the engine to any transport package.
func (e *Engine) OnSnapshot(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSnapshot = fn
}

// New builds an Engine from cfg. The caller registers vehicles with
// RegisterDrone before calling Start.
func New(cfg config.Config, logger zerolog.Logger) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "engine").Logger(),
		grid: fire.New(fire.Params{
			Width:                    cfg.Fire.Width,
			Height:                   cfg.Fire.Height,
			CellSizeM:                cfg.Fire.CellSizeM,
			Seed:                     cfg.Sim.Seed,
			SpreadRateMpm:            cfg.Fire.SpreadRateMpm,
			SuppressionEffectiveness: cfg.Fire.SuppressionEffectiveness,
			InitialFuelDensity:       1.0,
		}),
		rf: channel.New(channel.Params{
			PathLossExponent:   cfg.Channel.PathLossExponent,
			RiceKFactor:        cfg.Channel.RiceKFactor,
			MaxBroadcastRangeM: cfg.Channel.MaxBroadcastRangeM,
			Seed:               cfg.Sim.Seed,
		}),
		msgs:        bus.New(),
		docks:       newDockLayout(float64(cfg.Fire.Width)*cfg.Fire.CellSizeM, float64(cfg.Fire.Height)*cfg.Fire.CellSizeM, 4, cfg.Sim.Seed),
		reg:         metrics.NewRegistry(nil),
		deliveryRNG: rand.New(rand.NewPCG(uint64(cfg.Sim.Seed)+13, uint64(cfg.Sim.Seed)>>5|1)),
		vehicles:    make(map[int]*vehicleRecord),
		inbox:       make(chan Command, 256),
		fatal:       make(chan error, 1),
	}
	return e
}

// Fatal returns a channel that receives the error exactly once if the
// background tick loop halts due to a kernel invariant violation
// (spec.md §7: exit code 2). Callers running the loop via Start should
// select on this alongside their own shutdown signal so the violation
// can be propagated to the process exit code instead of being silently
// swallowed.
func (e *Engine) Fatal() <-chan error {
	return e.fatal
}

// WithMetricsRegistry swaps in a Registry wired to a caller-owned
// Prometheus registerer. New builds its Registry with no registerer,
// and cmd/swarmsim does not call this or mount a /metrics route.
func (e *Engine) WithMetricsRegistry(reg *metrics.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reg = reg
}

// Inbox returns the command channel external surfaces send requests on.
func (e *Engine) Inbox() chan<- Command {
	return e.inbox
}

// RegisterDrone creates a vehicle record with full battery/payload,
// zero velocity, state IDLE. Returns world.ErrDuplicateID if id already
// exists.
func (e *Engine) RegisterDrone(id int, pose world.Vector3, role world.Role, payloadMax float64, configSeed int64) error {
	if !pose.Finite() {
		return fmt.Errorf("engine: non-finite pose for drone %d", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.vehicles[id]; exists {
		return world.ErrDuplicateID
	}

	d := &world.Drone{
		ID:               id,
		Pose:             pose,
		Role:             role,
		State:            world.StateIdle,
		BatteryPercent:   100,
		PayloadRemaining: payloadMax,
		PayloadMax:       payloadMax,
		DockPose:         e.docks.Nearest(pose),
	}

	ag := agent.New(id, role, agentConfigFrom(e.cfg), configSeed)
	ag.ETM.SetConfig(etmConfigFrom(e.cfg))
	e.vehicles[id] = &vehicleRecord{drone: d, agent: ag, dock: d.DockPose}
	return nil
}

func agentConfigFrom(cfg config.Config) agent.Config {
	ac := agent.DefaultConfig()
	ac.RTLThresholdPercent = cfg.Battery.RTLThresholdPercent
	return ac
}

// RequestTakeoff arms a registered vehicle's IDLE->TAKEOFF transition.
func (e *Engine) RequestTakeoff(id int) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.vehicles[id]
	if !ok {
		return world.ErrUnknownDrone
	}
	rec.agent.RequestTakeoff()
	return nil
}

// AssignFollowerLeader wires a follower's formation target.
func (e *Engine) AssignFollowerLeader(followerID, leaderID int) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.vehicles[followerID]
	if !ok {
		return world.ErrUnknownDrone
	}
	rec.agent.SetLeaderTarget(leaderID)
	return nil
}

// Ignite sets the target cell's intensity (spec.md §4.1 operation
// table). Safe to call concurrently with the tick loop; prefer routing
// through Inbox() when the tick loop is running so the change lands on
// a tick boundary.
func (e *Engine) Ignite(xM, yM, intensity float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Ignite(xM, yM, intensity)
}

// ApplySuppression queues a suppression application for this tick.
func (e *Engine) ApplySuppression(xM, yM, strength float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.ApplySuppression(xM, yM, strength)
}

// RSSI returns the latest link snapshot for drones i->j, lazily
// computed at the drones' current separation if unseen.
func (e *Engine) RSSI(i, j int) (world.RFLink, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ri, ok := e.vehicles[i]
	if !ok {
		return world.RFLink{}, world.ErrUnknownDrone
	}
	rj, ok := e.vehicles[j]
	if !ok {
		return world.RFLink{}, world.ErrUnknownDrone
	}
	if i == j {
		return e.rf.Update(i, j, 0, e.now), nil
	}
	d := world.Distance2D(ri.drone.Pose.XY(), rj.drone.Pose.XY())
	return e.rf.RSSI(i, j, d, e.now), nil
}

// Battery returns drone i's battery percent.
func (e *Engine) Battery(id int) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.vehicles[id]
	if !ok {
		return 0, world.ErrUnknownDrone
	}
	return rec.drone.BatteryPercent, nil
}

// Pose returns drone i's canonical pose.
func (e *Engine) Pose(id int) (world.Vector3, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.vehicles[id]
	if !ok {
		return world.Vector3{}, world.ErrUnknownDrone
	}
	return rec.drone.Pose, nil
}

// Config returns the engine's current (possibly hot-reloaded) configuration.
func (e *Engine) Config() config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SampleIntensity reads the fire grid at the given world coordinates.
func (e *Engine) SampleIntensity(xM, yM float64) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grid.SampleIntensity(xM, yM)
}

// Step advances every subsystem one tick in the order fixed by spec.md
// §2: fire, vehicle control, channel, messaging, energy, metrics.
func (e *Engine) Step(dt float64) error {
	if dt <= 0 {
		return world.ErrNegativeDt
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.grid.Step(dt)

	sample := metrics.TickSample{Tick: e.tick, SimTimeSec: e.now}

	e.stepVehicleControl(dt, &sample)
	e.stepChannel()
	e.stepMessaging(dt, &sample)
	e.stepEnergy(dt)

	if err := e.checkInvariants(); err != nil {
		e.logger.Error().Err(err).Msg("kernel invariant violation")
		return err
	}

	fs := e.grid.Summary()
	sample.BurningCellCount = fs.BurningCount
	e.reg.Record(sample)

	e.now += dt
	e.tick++

	snap := e.exportStateLocked()
	e.outbox.Store(&snap)
	if e.onSnapshot != nil {
		e.onSnapshot(snap)
	}

	return nil
}

func (e *Engine) orderedIDs() []int {
	ids := make([]int, 0, len(e.vehicles))
	for id := range e.vehicles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (e *Engine) stepVehicleControl(dt float64, sample *metrics.TickSample) {
	widthM := float64(e.cfg.Fire.Width) * e.cfg.Fire.CellSizeM
	heightM := float64(e.cfg.Fire.Height) * e.cfg.Fire.CellSizeM

	view := agent.WorldView{
		Now:             e.now,
		SampleIntensity: e.grid.SampleIntensity,
		BoundsWidthM:    widthM,
		BoundsHeightM:   heightM,
	}

	for _, id := range e.orderedIDs() {
		rec := e.vehicles[id]
		d := rec.drone

		intent := rec.agent.Step(view, *d, rec.dock, dt)

		d.Velocity = intent.DesiredVelocity
		newPose := d.Pose.Add(intent.DesiredVelocity.Scale(dt))
		newPose.X = world.Clamp(newPose.X, 0, widthM)
		newPose.Y = world.Clamp(newPose.Y, 0, heightM)
		if newPose.Z < 0 {
			newPose.Z = 0
		}
		d.DistanceTraveledM += world.Distance2D(d.Pose.XY(), newPose.XY())
		d.Pose = newPose

		if d.State != world.StateReturnToLaunch && intent.NextState == world.StateReturnToLaunch {
			sample.RTLEvents++
		}
		d.State = intent.NextState

		if intent.WantSuppression {
			cells, err := e.grid.ApplySuppression(intent.SuppressPosition.X, intent.SuppressPosition.Y, intent.SuppressStrength)
			if err == nil {
				sample.SuppressionsApplied += cells
				if d.PayloadRemaining > 0 {
					d.PayloadRemaining--
				}
			}
		}

		if intent.WantDetection {
			e.broadcast(id, world.KindFireDetection, &world.Message{
				Detection: &world.FireDetectionPayload{
					Position:  intent.Detection.Position,
					Intensity: intent.Detection.Intensity,
				},
			})
		}
	}
}

func (e *Engine) stepChannel() {
	ids := e.orderedIDs()
	for _, i := range ids {
		for _, j := range ids {
			if i == j {
				continue
			}
			d := world.Distance2D(e.vehicles[i].drone.Pose.XY(), e.vehicles[j].drone.Pose.XY())
			e.rf.Update(i, j, d, e.now)
		}
	}
}

func (e *Engine) stepMessaging(dt float64, sample *metrics.TickSample) {
	due := e.msgs.Drain(e.now)
	for _, msg := range due {
		sample.PacketsDelivered++
		if msg.ReceiverID == 0 {
			for _, id := range e.orderedIDs() {
				if id == msg.SenderID {
					continue
				}
				e.applyMessage(id, msg)
			}
		} else {
			e.applyMessage(msg.ReceiverID, msg)
		}
	}

	for _, id := range e.orderedIDs() {
		rec := e.vehicles[id]
		if rec.agent.ETM.ShouldTransmit(e.now, rec.drone.Pose) {
			rec.agent.ETM.Commit(e.now, rec.drone.Pose)
			sample.Transmissions++
			e.broadcast(id, world.KindTelemetry, &world.Message{
				Telemetry: &world.TelemetryPayload{Pose: rec.drone.Pose, Velocity: rec.drone.Velocity},
			})
			rec.drone.LastBroadcastPose = rec.drone.Pose
		} else {
			rec.agent.ETM.Suppress()
			sample.Suppressed++
		}
	}

	sample.PacketsDropped += e.broadcastDrops
	e.broadcastDrops = 0
}

// broadcastDrops accumulates packet-loss drops between calls to
// stepMessaging, which resets and folds it into the tick sample.
// (declared on Engine because broadcast() is also called from the
// vehicle-control step for detection messages.)

func (e *Engine) applyMessage(receiverID int, msg world.Message) {
	rec, ok := e.vehicles[receiverID]
	if !ok {
		return
	}
	switch msg.Kind {
	case world.KindTelemetry:
		if msg.Telemetry != nil {
			rec.agent.Observer.Update(msg.SenderID, msg.Telemetry.Pose, msg.Telemetry.Velocity, msg.DeliverTime, msg.SendTime)
		}
	case world.KindFireDetection:
		// Detection messages currently inform metrics/telemetry only;
		// a future suppression-dispatch policy could route vehicles
		// toward msg.Detection.Position.
	}
}

func (e *Engine) broadcast(senderID int, kind world.MessageKind, tmpl *world.Message) {
	sender, ok := e.vehicles[senderID]
	if !ok {
		return
	}
	for _, id := range e.orderedIDs() {
		if id == senderID {
			continue
		}
		d := world.Distance2D(sender.drone.Pose.XY(), e.vehicles[id].drone.Pose.XY())
		link := e.rf.RSSI(senderID, id, d, e.now)

		if e.deliveryRNG.Float64() < link.PacketLossProb {
			e.broadcastDrops++
			continue
		}

		msg := *tmpl
		msg.ID = uuid.NewString()
		msg.SenderID = senderID
		msg.ReceiverID = id
		msg.Kind = kind
		msg.SendTime = e.now
		msg.DeliverTime = e.now + link.LatencySec
		e.msgs.Enqueue(msg)
	}
}

func (e *Engine) stepEnergy(dt float64) {
	const hoverDrainPercentPerSec = 0.05

	for _, id := range e.orderedIDs() {
		rec := e.vehicles[id]
		d := rec.drone
		if d.State == world.StateIdle {
			continue
		}

		distanceDrainPercent := 0.0
		if e.cfg.Battery.CapacityMah > 0 {
			distanceDrainPercent = (e.cfg.Battery.EnergyDrainPerMeter * d.Velocity.L2() * dt) / e.cfg.Battery.CapacityMah * 100
		}
		hoverDrainPercent := hoverDrainPercentPerSec * dt

		d.BatteryPercent = world.Clamp(d.BatteryPercent-distanceDrainPercent-hoverDrainPercent, 0, 100)
	}
}

// ResetDrone resets a landed vehicle's battery and payload to full,
// the only explicit operation allowed to increase them (spec.md §3).
func (e *Engine) ResetDrone(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.vehicles[id]
	if !ok {
		return world.ErrUnknownDrone
	}
	rec.drone.BatteryPercent = 100
	rec.drone.PayloadRemaining = rec.drone.PayloadMax
	return nil
}

func (e *Engine) checkInvariants() error {
	for _, id := range e.orderedIDs() {
		d := e.vehicles[id].drone
		if d.BatteryPercent < 0 || d.BatteryPercent > 100 {
			return invariantViolation("drone %d battery_percent out of range: %f", id, d.BatteryPercent)
		}
		if d.PayloadRemaining < 0 {
			return invariantViolation("drone %d payload_remaining negative: %f", id, d.PayloadRemaining)
		}
	}
	return nil
}

// ExportState returns a deep-copied snapshot of the world.
func (e *Engine) ExportState() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.exportStateLocked()
}

func (e *Engine) exportStateLocked() Snapshot {
	ids := e.orderedIDs()
	vehicles := make([]world.Drone, 0, len(ids))
	for _, id := range ids {
		vehicles = append(vehicles, *e.vehicles[id].drone)
	}

	return Snapshot{
		Tick:        e.tick,
		SimTimeSec:  e.now,
		Grid:        e.grid.Snapshot(),
		FireSummary: e.grid.Summary(),
		Vehicles:    vehicles,
		Links:       e.rf.Links(),
		Metrics:     e.reg.Snapshot(),
	}
}

// LatestSnapshot returns the most recently published outbox snapshot
// without touching the tick-owned mutex; readers never block the
// kernel (spec.md §5 "latest-only" outbox).
func (e *Engine) LatestSnapshot() (Snapshot, bool) {
	p := e.outbox.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// Start begins the background tick loop, pacing Step(dt) calls with a
// wall-clock ticker at the configured rate; dt itself is always the
// fixed configured value, never measured elapsed wall time, to keep the
// kernel deterministic in simulated time only (spec.md §1 Non-goals).
func (e *Engine) Start() {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()
}

func (e *Engine) run() {
	defer e.wg.Done()

	dt := e.cfg.Sim.DtS
	ticker := time.NewTicker(e.cfg.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case cmd := <-e.inbox:
			e.handleCommand(cmd)
		case <-ticker.C:
			for drained := false; !drained; {
				select {
				case cmd := <-e.inbox:
					e.handleCommand(cmd)
				default:
					drained = true
				}
			}
			if err := e.Step(dt); err != nil {
				if _, fatal := err.(*InvariantViolation); fatal {
					e.logger.Error().Err(err).Msg("fatal kernel invariant violation, halting tick loop")
					e.mu.Lock()
					if e.isRunning {
						e.isRunning = false
						close(e.stopChan)
					}
					e.mu.Unlock()
					select {
					case e.fatal <- err:
					default:
					}
					return
				}
			}
		}
	}
}

func (e *Engine) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case IgniteCommand:
		err := e.Ignite(c.X, c.Y, c.Intensity)
		if c.Result != nil {
			c.Result <- err
		}
	case SuppressCommand:
		cells, err := e.ApplySuppression(c.X, c.Y, c.Strength)
		if c.Result != nil {
			c.Result <- SuppressResult{CellsAffected: cells, Err: err}
		}
	case ConfigUpdateCommand:
		e.applyHotReload(c.HotReload)
		if c.Result != nil {
			c.Result <- nil
		}
	}
}

func (e *Engine) applyHotReload(h config.HotReload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = e.cfg.Apply(h)
	cfg := etmConfigFrom(e.cfg)
	for _, rec := range e.vehicles {
		rec.agent.ETM.SetConfig(cfg)
		rec.agent.SetRTLThreshold(e.cfg.Battery.RTLThresholdPercent)
	}
}

func etmConfigFrom(cfg config.Config) etm.Config {
	ec := etm.DefaultConfig()
	ec.Eta0 = cfg.Swarm.DETMEta0
	ec.Lambda = cfg.Swarm.DETMLambda
	return ec
}

// IsRunning reports whether the tick loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

// Stop halts the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = false
	close(e.stopChan)
	e.mu.Unlock()

	e.wg.Wait()
}
