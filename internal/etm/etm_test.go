package etm

import (
	"testing"

	"github.com/idqam/swarmsim/internal/world"
	"github.com/stretchr/testify/assert"
)

func TestFirstCallAlwaysTransmits(t *testing.T) {
	c := New(DefaultConfig())
	assert.True(t, c.ShouldTransmit(0, world.Vector3{}))
}

func TestIdempotentAtSameTime(t *testing.T) {
	c := New(DefaultConfig())
	c.Commit(0, world.Vector3{})

	first := c.ShouldTransmit(0, world.Vector3{X: 0.005})
	second := c.ShouldTransmit(0, world.Vector3{X: 0.005})
	assert.Equal(t, first, second)
}

func TestEtaFloorsAtEtaMin(t *testing.T) {
	c := New(DefaultConfig())
	eta := c.Threshold(1000)
	assert.Equal(t, 0.01, eta)
}

func TestEtaZeroAlwaysTriggers(t *testing.T) {
	c := New(Config{Eta0: 0, Lambda: 0.5, EtaMin: 0, Norm: NormL2})
	c.Commit(0, world.Vector3{})
	assert.True(t, c.ShouldTransmit(0.001, world.Vector3{X: 0.0001}))
}

func TestMessageReductionOnStraightLineTraverse(t *testing.T) {
	c := New(DefaultConfig())
	const dt = 0.1
	const speed = 2.0
	pose := world.Vector3{}
	now := 0.0

	c.Commit(now, pose)

	for i := 0; i < 600; i++ {
		now += dt
		pose.X += speed * dt
		if c.ShouldTransmit(now, pose) {
			c.Commit(now, pose)
		} else {
			c.Suppress()
		}
	}

	assert.GreaterOrEqual(t, c.TotalTransmissions(), int64(25))
	assert.LessOrEqual(t, c.TotalTransmissions(), int64(45))
}
