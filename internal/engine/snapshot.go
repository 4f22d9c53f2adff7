package engine

import (
	"github.com/idqam/swarmsim/internal/metrics"
	"github.com/idqam/swarmsim/internal/world"
)

// Snapshot is the immutable, deep-copied world view published to the
// outbox each tick (spec.md §4.1 export_state, §5 "published by value,
// copy-on-publish").
type Snapshot struct {
	Tick       int64              `json:"tick"`
	SimTimeSec float64            `json:"sim_time_sec"`
	Grid       world.FireGrid     `json:"fire_grid"`
	FireSummary world.FireSummary `json:"fire_summary"`
	Vehicles   []world.Drone      `json:"vehicles"`
	Links      []world.RFLink     `json:"links"`
	Metrics    metrics.Snapshot   `json:"metrics"`
}
