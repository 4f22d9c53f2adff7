// Package config loads the hierarchical simulation configuration
// described in spec.md §6: a plain, immutable value threaded through
// constructors, loaded once at startup and overridable per field via
// environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Swarm holds vehicle-count and ETM defaults.
type Swarm struct {
	NumLeaders   int     `mapstructure:"num_leaders"`
	NumFollowers int     `mapstructure:"num_followers"`
	DETMEta0     float64 `mapstructure:"detm_eta0"`
	DETMLambda   float64 `mapstructure:"detm_lambda"`
}

// Battery holds per-vehicle energy model parameters.
type Battery struct {
	CapacityMah           float64 `mapstructure:"capacity_mah"`
	EnergyDrainPerMeter   float64 `mapstructure:"energy_drain_per_meter"`
	RTLThresholdPercent   float64 `mapstructure:"rtl_threshold_percent"`
}

// Fire holds the cellular-automaton propagation parameters.
type Fire struct {
	Width                  int     `mapstructure:"width"`
	Height                 int     `mapstructure:"height"`
	CellSizeM              float64 `mapstructure:"cell_size_m"`
	SpreadRateMpm          float64 `mapstructure:"spread_rate_mpm"`
	SuppressionEffectiveness float64 `mapstructure:"suppression_effectiveness"`
}

// Channel holds the RF propagation model parameters.
type Channel struct {
	PathLossExponent   float64 `mapstructure:"path_loss_exponent"`
	RiceKFactor        float64 `mapstructure:"rice_k_factor"`
	MaxBroadcastRangeM float64 `mapstructure:"max_broadcast_range_m"`
}

// Sim holds tick-loop parameters.
type Sim struct {
	DtS  float64 `mapstructure:"dt_s"`
	Seed int64   `mapstructure:"seed"`
}

// API holds the REST/streaming listener addresses.
type API struct {
	RESTAddr   string `mapstructure:"rest_addr"`
	StreamAddr string `mapstructure:"stream_addr"`
}

// Config is the full, immutable simulation configuration value.
type Config struct {
	Swarm   Swarm   `mapstructure:"swarm"`
	Battery Battery `mapstructure:"battery"`
	Fire    Fire    `mapstructure:"fire"`
	Channel Channel `mapstructure:"channel"`
	Sim     Sim     `mapstructure:"sim"`
	API     API     `mapstructure:"api"`
}

// Defaults returns the configuration defaults enumerated in spec.md §6.
func Defaults() Config {
	return Config{
		Swarm: Swarm{
			NumLeaders:   3,
			NumFollowers: 10,
			DETMEta0:     1.0,
			DETMLambda:   0.5,
		},
		Battery: Battery{
			CapacityMah:         5000,
			EnergyDrainPerMeter: 0.08,
			RTLThresholdPercent: 20,
		},
		Fire: Fire{
			Width:                    100,
			Height:                   100,
			CellSizeM:                10,
			SpreadRateMpm:            30,
			SuppressionEffectiveness: 0.9,
		},
		Channel: Channel{
			PathLossExponent:   3.0,
			RiceKFactor:        8.0,
			MaxBroadcastRangeM: 100,
		},
		Sim: Sim{
			DtS:  0.1,
			Seed: 0,
		},
		API: API{
			RESTAddr:   ":8080",
			StreamAddr: ":8081",
		},
	}
}

// Load reads a YAML config file layered over the defaults, with
// environment-variable overrides (SWARMSIM_<SECTION>_<KEY>). An empty
// path loads only defaults plus environment overrides.
func Load(path string) (Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix("SWARMSIM")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	cfg := Defaults()
	setDefaults(vp, cfg)

	if path != "" {
		vp.SetConfigFile(path)
		vp.SetConfigType("yaml")
		vp.AddConfigPath(filepath.Dir(path))
		if err := vp.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var out Config
	if err := vp.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

func setDefaults(vp *viper.Viper, cfg Config) {
	vp.SetDefault("swarm.num_leaders", cfg.Swarm.NumLeaders)
	vp.SetDefault("swarm.num_followers", cfg.Swarm.NumFollowers)
	vp.SetDefault("swarm.detm_eta0", cfg.Swarm.DETMEta0)
	vp.SetDefault("swarm.detm_lambda", cfg.Swarm.DETMLambda)
	vp.SetDefault("battery.capacity_mah", cfg.Battery.CapacityMah)
	vp.SetDefault("battery.energy_drain_per_meter", cfg.Battery.EnergyDrainPerMeter)
	vp.SetDefault("battery.rtl_threshold_percent", cfg.Battery.RTLThresholdPercent)
	vp.SetDefault("fire.width", cfg.Fire.Width)
	vp.SetDefault("fire.height", cfg.Fire.Height)
	vp.SetDefault("fire.cell_size_m", cfg.Fire.CellSizeM)
	vp.SetDefault("fire.spread_rate_mpm", cfg.Fire.SpreadRateMpm)
	vp.SetDefault("fire.suppression_effectiveness", cfg.Fire.SuppressionEffectiveness)
	vp.SetDefault("channel.path_loss_exponent", cfg.Channel.PathLossExponent)
	vp.SetDefault("channel.rice_k_factor", cfg.Channel.RiceKFactor)
	vp.SetDefault("channel.max_broadcast_range_m", cfg.Channel.MaxBroadcastRangeM)
	vp.SetDefault("sim.dt_s", cfg.Sim.DtS)
	vp.SetDefault("sim.seed", cfg.Sim.Seed)
	vp.SetDefault("api.rest_addr", cfg.API.RESTAddr)
	vp.SetDefault("api.stream_addr", cfg.API.StreamAddr)
}

// Validate checks the configuration errors spec.md §7 classifies as
// startup-fatal (exit 1).
func (c Config) Validate() error {
	if c.Swarm.NumLeaders < 0 || c.Swarm.NumFollowers < 0 {
		return fmt.Errorf("config: vehicle counts must be non-negative")
	}
	if c.Battery.RTLThresholdPercent < 0 || c.Battery.RTLThresholdPercent > 100 {
		return fmt.Errorf("config: battery.rtl_threshold_percent must be in [0,100]")
	}
	if c.Fire.Width <= 0 || c.Fire.Height <= 0 {
		return fmt.Errorf("config: fire grid dimensions must be positive")
	}
	if c.Fire.CellSizeM <= 0 {
		return fmt.Errorf("config: fire.cell_size_m must be positive")
	}
	if c.Sim.DtS <= 0 {
		return fmt.Errorf("config: sim.dt_s must be positive")
	}
	if c.Channel.MaxBroadcastRangeM <= 0 {
		return fmt.Errorf("config: channel.max_broadcast_range_m must be positive")
	}
	return nil
}

// HotReload is the subset of fields spec.md §9 allows to be updated at
// runtime via the inbox, applied at the top of the next tick.
type HotReload struct {
	DETMEta0            *float64 `json:"detm_eta0,omitempty"`
	DETMLambda          *float64 `json:"detm_lambda,omitempty"`
	RTLThresholdPercent *float64 `json:"rtl_threshold_percent,omitempty"`
}

// Apply merges a hot-reload fragment into a copy of c.
func (c Config) Apply(h HotReload) Config {
	out := c
	if h.DETMEta0 != nil {
		out.Swarm.DETMEta0 = *h.DETMEta0
	}
	if h.DETMLambda != nil {
		out.Swarm.DETMLambda = *h.DETMLambda
	}
	if h.RTLThresholdPercent != nil {
		out.Battery.RTLThresholdPercent = *h.RTLThresholdPercent
	}
	return out
}

// TickDuration returns Sim.DtS as a time.Duration, for components that
// need it in that form (e.g. the engine's tick-loop ticker).
func (c Config) TickDuration() time.Duration {
	return time.Duration(c.Sim.DtS * float64(time.Second))
}
