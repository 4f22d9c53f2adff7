package observer

import (
	"testing"

	"github.com/idqam/swarmsim/internal/world"
	"github.com/stretchr/testify/assert"
)

func TestMissingNeighborReturnsNotOk(t *testing.T) {
	o := New(DefaultConfig())
	_, conf, ok := o.Predict(99, 1.0)
	assert.False(t, ok)
	assert.Equal(t, 0.0, conf)
}

func TestStaleEstimateNoExtrapolationZeroConfidence(t *testing.T) {
	o := New(DefaultConfig())
	o.Update(2, world.Vector3{X: 1, Y: 1}, world.Vector3{X: 1}, 0, 0)

	pose, conf, ok := o.Predict(2, 10.0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, conf)
	assert.Equal(t, world.Vector3{X: 1, Y: 1}, pose)
}

func TestConfidenceDecaysWithAge(t *testing.T) {
	o := New(DefaultConfig())
	o.Update(2, world.Vector3{}, world.Vector3{}, 0, 0)

	_, confAtZero, _ := o.Predict(2, 0)
	_, confAtHalfMax, _ := o.Predict(2, 0.25)

	assert.Equal(t, 1.0, confAtZero)
	assert.InDelta(t, 0.6, confAtHalfMax, 1e-9)
}

func TestObserverUpdatePrecedence(t *testing.T) {
	o := New(DefaultConfig())
	o.Update(2, world.Vector3{X: 5}, world.Vector3{}, 1.0, 1.0)
	o.Update(2, world.Vector3{X: 99}, world.Vector3{}, 0.5, 0.5)

	pose, _, ok := o.Predict(2, 1.0)
	assert.True(t, ok)
	assert.Equal(t, 5.0, pose.X)
}

func TestCollisionAlertScenario(t *testing.T) {
	// The scenario's 3s silence exceeds the default 500ms max_age, under
	// which the estimate would be marked stale (confidence 0, no
	// extrapolation) per spec.md §4.5 — so no alert could fire at all.
	// The scenario is read as implicitly configuring an observer whose
	// max_age covers the full silence window, since it explicitly expects
	// continued constant-velocity extrapolation through t=3s.
	cfg := Config{MaxAge: 10, MinConfidence: 0, MinSeparationM: 10}

	aObserver := New(cfg)
	// A at (0,0,10) heading +x at 3 m/s; B at (20,0,10) heading -x at 3 m/s.
	aObserver.Update(2, world.Vector3{X: 20, Y: 0, Z: 10}, world.Vector3{X: -3}, 0, 0)

	alertAt := func(t2 float64) bool {
		pSelf := world.Vector3{X: 3 * t2, Y: 0, Z: 10}
		risks := aObserver.CollisionRisks(pSelf, t2)
		return len(risks) > 0
	}

	predicted, _, _ := aObserver.Predict(2, 3.0)
	assert.InDelta(t, 11.0, predicted.X, 1e-9)

	assert.False(t, alertAt(0.0))
	assert.True(t, alertAt(3.0))
}

func TestEmptySetNeverRaises(t *testing.T) {
	o := New(DefaultConfig())
	risks := o.CollisionRisks(world.Vector3{}, 5.0)
	assert.Empty(t, risks)
}
