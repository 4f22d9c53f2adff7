package api

import (
	"testing"
	"time"

	"github.com/idqam/swarmsim/internal/engine"
	"github.com/idqam/swarmsim/internal/world"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestHubPublishDeliversToSubscribedClient(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.Publish(engine.Snapshot{Tick: 7})

	select {
	case snap := <-ch:
		assert.Equal(t, int64(7), snap.Tick)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive published snapshot")
	}
}

func TestHubPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.Publish(engine.Snapshot{Tick: 1, FireSummary: world.FireSummary{BurningCount: 1}})
	h.Publish(engine.Snapshot{Tick: 2, FireSummary: world.FireSummary{BurningCount: 2}}) // buffer cap 1, this must not block

	snap := <-ch
	assert.Equal(t, int64(1), snap.Tick)
}

func TestHubPublishSkipsWhenNothingObservableChanged(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	same := world.FireSummary{BurningCount: 5}
	h.Publish(engine.Snapshot{Tick: 1, SimTimeSec: 0.1, FireSummary: same})
	h.Publish(engine.Snapshot{Tick: 2, SimTimeSec: 0.2, FireSummary: same})

	select {
	case snap := <-ch:
		assert.Equal(t, int64(1), snap.Tick)
	default:
		t.Fatal("expected the first snapshot to have been published")
	}

	select {
	case snap := <-ch:
		t.Fatalf("unexpected second publish with unchanged observable state: %+v", snap)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ch := h.subscribe()
	h.unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
}
