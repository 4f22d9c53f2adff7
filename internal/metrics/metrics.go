// Package metrics folds per-tick counters into rolling aggregates
// (spec.md §2 step 6), grounded on the teacher's
// CoordinatorMetrics/FleetMetrics/TelemetryMetrics structs in
// idqam-fleet-sim-ms/.../entities/{coordinator,fleet,telemetry}.go,
// unified here into one bounded-history ring buffer. A parallel set of
// Prometheus collectors (github.com/prometheus/client_golang, the idiom
// 99souls-ariadne uses for its own metrics) mirrors the same counters;
// they are registered only when NewRegistry is given a Registerer, and
// no /metrics scrape endpoint is served by this module.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// TickSample is the per-tick counters folded into the rolling history.
type TickSample struct {
	Tick                int64   `json:"tick"`
	SimTimeSec          float64 `json:"sim_time_sec"`
	Transmissions       int     `json:"transmissions"`
	Suppressed          int     `json:"suppressed"`
	PacketsDropped       int    `json:"packets_dropped"`
	PacketsDelivered     int    `json:"packets_delivered"`
	RTLEvents            int    `json:"rtl_events"`
	BurningCellCount      int   `json:"burning_cell_count"`
	SuppressionsApplied   int   `json:"suppressions_applied"`
}

// Snapshot is the rolling-aggregate view returned by /api/v1/metrics.
type Snapshot struct {
	TotalTicks             int64   `json:"total_ticks"`
	TotalTransmissions     int64   `json:"total_transmissions"`
	TotalSuppressedTx      int64   `json:"total_suppressed_tx"`
	TotalPacketsDropped    int64   `json:"total_packets_dropped"`
	TotalPacketsDelivered  int64   `json:"total_packets_delivered"`
	TotalRTLEvents         int64   `json:"total_rtl_events"`
	MeanBurningCellCount   float64 `json:"mean_burning_cell_count"`
	History                []TickSample `json:"recent_history"`
}

const historyCapacity = 600 // 60s at dt=0.1s

// Registry accumulates tick samples into bounded history plus
// cumulative counters, and mirrors them onto Prometheus collectors.
type Registry struct {
	mu      sync.Mutex
	history []TickSample
	head    int
	filled  bool

	totalTicks            int64
	totalTransmissions    int64
	totalSuppressedTx     int64
	totalPacketsDropped   int64
	totalPacketsDelivered int64
	totalRTLEvents        int64
	sumBurningCells       int64

	promTicks         prometheus.Counter
	promTransmissions prometheus.Counter
	promSuppressed    prometheus.Counter
	promDropped       prometheus.Counter
	promDelivered     prometheus.Counter
	promRTL           prometheus.Counter
	promBurning       prometheus.Gauge
}

// NewRegistry builds a Registry and registers its collectors on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		history: make([]TickSample, historyCapacity),
		promTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarmsim_ticks_total", Help: "Total simulation ticks processed.",
		}),
		promTransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarmsim_telemetry_transmissions_total", Help: "Total ETM-gated telemetry transmissions.",
		}),
		promSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarmsim_telemetry_suppressed_total", Help: "Total telemetry emissions suppressed by the ETM.",
		}),
		promDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarmsim_packets_dropped_total", Help: "Total messages dropped by the channel model.",
		}),
		promDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarmsim_packets_delivered_total", Help: "Total messages delivered by the bus.",
		}),
		promRTL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarmsim_rtl_events_total", Help: "Total return-to-launch transitions.",
		}),
		promBurning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarmsim_burning_cells", Help: "Current burning cell count.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.promTicks, r.promTransmissions, r.promSuppressed, r.promDropped, r.promDelivered, r.promRTL, r.promBurning)
	}
	return r
}

// Record folds one tick's counters into the rolling aggregates.
func (r *Registry) Record(s TickSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[r.head] = s
	r.head = (r.head + 1) % historyCapacity
	if r.head == 0 {
		r.filled = true
	}

	r.totalTicks++
	r.totalTransmissions += int64(s.Transmissions)
	r.totalSuppressedTx += int64(s.Suppressed)
	r.totalPacketsDropped += int64(s.PacketsDropped)
	r.totalPacketsDelivered += int64(s.PacketsDelivered)
	r.totalRTLEvents += int64(s.RTLEvents)
	r.sumBurningCells += int64(s.BurningCellCount)

	r.promTicks.Inc()
	r.promTransmissions.Add(float64(s.Transmissions))
	r.promSuppressed.Add(float64(s.Suppressed))
	r.promDropped.Add(float64(s.PacketsDropped))
	r.promDelivered.Add(float64(s.PacketsDelivered))
	r.promRTL.Add(float64(s.RTLEvents))
	r.promBurning.Set(float64(s.BurningCellCount))
}

// Snapshot returns a deep copy of the current rolling aggregates.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var mean float64
	if r.totalTicks > 0 {
		mean = float64(r.sumBurningCells) / float64(r.totalTicks)
	}

	out := Snapshot{
		TotalTicks:            r.totalTicks,
		TotalTransmissions:    r.totalTransmissions,
		TotalSuppressedTx:     r.totalSuppressedTx,
		TotalPacketsDropped:   r.totalPacketsDropped,
		TotalPacketsDelivered: r.totalPacketsDelivered,
		TotalRTLEvents:        r.totalRTLEvents,
		MeanBurningCellCount:  mean,
	}

	if r.filled {
		out.History = append(out.History, r.history[r.head:]...)
		out.History = append(out.History, r.history[:r.head]...)
	} else {
		out.History = append(out.History, r.history[:r.head]...)
	}
	return out
}
