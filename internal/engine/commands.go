package engine

import "github.com/idqam/swarmsim/internal/config"

// Command is the closed set of external requests drained from the
// inbox at the top of each tick (spec.md §5). Each carries its own
// typed payload and, where the caller needs a result, a response
// channel — never a shared mutable return value.
type Command interface {
	isCommand()
}

// IgniteCommand requests world.FireGrid.Ignite at (X,Y).
type IgniteCommand struct {
	X, Y, Intensity float64
	Result          chan<- error
}

func (IgniteCommand) isCommand() {}

// SuppressCommand requests a suppression application at (X,Y).
type SuppressCommand struct {
	X, Y, Strength float64
	Result         chan<- SuppressResult
}

func (SuppressCommand) isCommand() {}

// SuppressResult is the receipt returned for a SuppressCommand.
type SuppressResult struct {
	CellsAffected int
	Err           error
}

// ConfigUpdateCommand hot-reloads the ETM/RTL fields spec.md §9 allows
// at runtime, applied atomically at the top of the next tick.
type ConfigUpdateCommand struct {
	HotReload config.HotReload
	Result    chan<- error
}

func (ConfigUpdateCommand) isCommand() {}
