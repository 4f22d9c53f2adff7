// Package observer implements the distributed per-vehicle neighbor
// estimator of spec.md §4.5, grounded on the teacher's
// VehiclePosition/NearbyVehiclesResponse query shape in
// idqam-fleet-sim-ms/.../entities/messages.go, generalized from a
// spatial-index broadcast query to a per-vehicle table with
// constant-velocity prediction and decaying confidence.
package observer

import (
	"github.com/idqam/swarmsim/internal/world"
)

// Config holds the observer's prediction/confidence parameters.
type Config struct {
	MaxAge          float64 // seconds, default 0.5
	MinConfidence   float64 // floor at or below which a collision-risk entry is dropped
	MinSeparationM  float64 // s_min, default 10
}

func DefaultConfig() Config {
	return Config{MaxAge: 0.5, MinConfidence: 0, MinSeparationM: 10}
}

type entry struct {
	estimate world.NeighborEstimate
	sendTime float64
}

// Observer maintains one vehicle's belief table over its neighbors.
type Observer struct {
	cfg   Config
	table map[int]entry
}

func New(cfg Config) *Observer {
	return &Observer{cfg: cfg, table: make(map[int]entry)}
}

// Update stores (pose, vel, tRecv) for neighborID, overwriting any prior
// entry — except that a message with an earlier SendTime never
// overwrites an estimate set by a later SendTime (spec.md §8
// "Observer-update precedence").
func (o *Observer) Update(neighborID int, pose, vel world.Vector3, tRecv, sendTime float64) {
	if existing, ok := o.table[neighborID]; ok && existing.sendTime > sendTime {
		return
	}
	o.table[neighborID] = entry{
		estimate: world.NeighborEstimate{
			NeighborID:     neighborID,
			LastKnownPose:  pose,
			LastKnownVel:   vel,
			LastUpdateTime: tRecv,
		},
		sendTime: sendTime,
	}
}

// Predict returns the constant-velocity extrapolated pose and
// confidence for neighborID at tQuery. A missing neighbor returns the
// zero pose and zero confidence, never an error (spec.md §4.5 failure
// semantics).
func (o *Observer) Predict(neighborID int, tQuery float64) (pose world.Vector3, confidence float64, ok bool) {
	e, found := o.table[neighborID]
	if !found {
		return world.Vector3{}, 0, false
	}
	age := tQuery - e.estimate.LastUpdateTime
	if age > o.cfg.MaxAge {
		return e.estimate.LastKnownPose, 0, true
	}
	predicted := e.estimate.LastKnownPose.Add(e.estimate.LastKnownVel.Scale(age))
	conf := 1 - 0.8*world.Clamp(age/o.cfg.MaxAge, 0, 1)
	return predicted, conf, true
}

// CollisionRisks returns every neighbor predicted within sMin of pSelf
// at tQuery with confidence above the observer's floor.
func (o *Observer) CollisionRisks(pSelf world.Vector3, tQuery float64) []world.CollisionRisk {
	var risks []world.CollisionRisk
	for id := range o.table {
		predicted, conf, ok := o.Predict(id, tQuery)
		if !ok || conf <= o.cfg.MinConfidence {
			continue
		}
		if world.Distance2D(pSelf.XY(), predicted.XY()) < o.cfg.MinSeparationM {
			risks = append(risks, world.CollisionRisk{NeighborID: id, PredictedPose: predicted, Confidence: conf})
		}
	}
	return risks
}

// Forget removes a neighbor's estimate, e.g. on vehicle removal.
func (o *Observer) Forget(neighborID int) {
	delete(o.table, neighborID)
}
