// Package etm implements the dynamic-threshold event-triggered
// messaging controller of spec.md §4.4, grounded on the teacher's
// AgentConfig/AgentState split in
// idqam-fleet-sim-ms/.../entities/agent.go.
package etm

import (
	"math"

	"github.com/idqam/swarmsim/internal/world"
)

// Norm selects the distance metric used for the trigger error e.
type Norm int

const (
	NormL2 Norm = iota
	NormLInf
)

// Config holds the ETM threshold-law parameters.
type Config struct {
	Eta0   float64 // eta0, initial threshold (m)
	Lambda float64 // decay rate (1/s)
	EtaMin float64 // floor, default 0.01 m
	Norm   Norm
}

// DefaultConfig matches spec.md §4.4's defaults.
func DefaultConfig() Config {
	return Config{Eta0: 1.0, Lambda: 0.5, EtaMin: 0.01, Norm: NormL2}
}

// Controller is the per-vehicle ETM state machine.
type Controller struct {
	cfg Config

	hasTransmitted    bool
	poseAtLastTx      world.Vector3
	lastTxTime        float64
	totalTransmissions int64
	totalSuppressed    int64
}

func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// SetConfig hot-swaps the threshold-law parameters without resetting
// transmission history (spec.md §9 hot-reload of eta0/lambda).
func (c *Controller) SetConfig(cfg Config) {
	c.cfg = cfg
}

// Threshold returns eta(t) = max(etaMin, eta0 * exp(-lambda * dtSinceLastTx)).
func (c *Controller) Threshold(dtSinceLastTx float64) float64 {
	eta := c.cfg.Eta0 * math.Exp(-c.cfg.Lambda*dtSinceLastTx)
	if eta < c.cfg.EtaMin {
		return c.cfg.EtaMin
	}
	return eta
}

// ShouldTransmit decides, for the given current time and pose, whether
// to emit telemetry this tick. On a true decision the caller must call
// Commit to record the transmission; ShouldTransmit itself performs no
// mutation so repeated calls at the same (now, pose) are idempotent.
func (c *Controller) ShouldTransmit(now float64, pose world.Vector3) bool {
	if !c.hasTransmitted {
		return true
	}
	dt := now - c.lastTxTime
	e := errorNorm(pose.Sub(c.poseAtLastTx), c.cfg.Norm)
	return e > c.Threshold(dt)
}

// Commit records a transmission at (now, pose) and increments the
// transmission counter; call this only after ShouldTransmit returned
// true and the message was actually enqueued.
func (c *Controller) Commit(now float64, pose world.Vector3) {
	c.poseAtLastTx = pose
	c.lastTxTime = now
	c.hasTransmitted = true
	c.totalTransmissions++
}

// Suppress increments the suppression counter for a tick where
// ShouldTransmit returned false.
func (c *Controller) Suppress() {
	c.totalSuppressed++
}

func (c *Controller) TotalTransmissions() int64 { return c.totalTransmissions }
func (c *Controller) TotalSuppressed() int64    { return c.totalSuppressed }
func (c *Controller) HasTransmitted() bool      { return c.hasTransmitted }

func errorNorm(d world.Vector3, n Norm) float64 {
	if n == NormLInf {
		return d.LInf()
	}
	return d.L2()
}
