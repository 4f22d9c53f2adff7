// Package fire implements the wind-biased cellular-automaton fire
// propagation model of spec.md §4.2, grounded on the grid/geometry
// helpers of the teacher's map generator
// (idqam-fleet-sim-ms/.../simulation-engine/map-generator.go and
// utils.go), generalized from a road-network point generator to a
// regular grid automaton.
package fire

import (
	"math"
	"math/rand/v2"

	"github.com/idqam/swarmsim/internal/world"
)

const ignitionThreshold = 0.1

// Grid is the deterministic fire propagation model. A single PRNG,
// seeded from configuration, drives every spread draw; iteration is
// row-major so draw consumption is stable across runs (spec.md §4.2
// "Determinism").
type Grid struct {
	state *world.FireGrid
	rng   *rand.Rand

	spreadRateMps            float64
	suppressionEffectiveness float64

	pending []pendingSuppression
}

type pendingSuppression struct {
	gx, gy   int
	strength float64
}

// Params configures a new Grid.
type Params struct {
	Width, Height            int
	CellSizeM                float64
	Wind                     world.Wind
	Seed                     int64
	SpreadRateMpm            float64
	SuppressionEffectiveness float64
	InitialFuelDensity       float64
}

// New builds a grid of uniform fuel density (InitialFuelDensity) and no
// active ignitions.
func New(p Params) *Grid {
	cells := make([]world.Cell, p.Width*p.Height)
	for i := range cells {
		cells[i] = world.Cell{FuelDensity: p.InitialFuelDensity}
	}
	return &Grid{
		state: &world.FireGrid{
			Width:     p.Width,
			Height:    p.Height,
			CellSizeM: p.CellSizeM,
			Cells:     cells,
			Wind:      p.Wind,
		},
		rng:                      rand.New(rand.NewPCG(uint64(p.Seed), uint64(p.Seed)>>1|1)),
		spreadRateMps:            p.SpreadRateMpm / 60.0,
		suppressionEffectiveness: p.SuppressionEffectiveness,
	}
}

// SetWind mutates the uniform wind vector applied to subsequent steps.
func (g *Grid) SetWind(w world.Wind) {
	g.state.Wind = w
}

// Ignite sets the target cell's intensity to max(current, intensity).
// A no-op on zero-fuel cells. Returns world.ErrOutOfBounds if the
// coordinate is off-grid.
func (g *Grid) Ignite(xM, yM float64, intensity float64) error {
	gx, gy := g.state.ToGrid(xM, yM)
	if !g.state.InBounds(gx, gy) {
		return world.ErrOutOfBounds
	}
	c := g.state.At(gx, gy)
	if c.FuelDensity == 0 {
		return nil
	}
	if intensity > c.Intensity {
		c.Intensity = intensity
	}
	if !c.Ignited {
		c.Ignited = true
		c.IgnitionTime = g.state.SimTimeSec
	}
	g.state.Set(gx, gy, c)
	return nil
}

// ApplySuppression queues a suppression for application between spread
// and burndown this step; returns the number of cells affected (1 if
// the coordinate is in-bounds, 0 otherwise alongside an error).
func (g *Grid) ApplySuppression(xM, yM float64, strength float64) (int, error) {
	gx, gy := g.state.ToGrid(xM, yM)
	if !g.state.InBounds(gx, gy) {
		return 0, world.ErrOutOfBounds
	}
	g.pending = append(g.pending, pendingSuppression{gx: gx, gy: gy, strength: strength})
	return 1, nil
}

// SampleIntensity returns the intensity of the cell containing (xM,yM),
// or 0 if out of bounds.
func (g *Grid) SampleIntensity(xM, yM float64) float64 {
	gx, gy := g.state.ToGrid(xM, yM)
	if !g.state.InBounds(gx, gy) {
		return 0
	}
	return g.state.At(gx, gy).Intensity
}

// IterBurning returns every currently-burning cell, row-major.
func (g *Grid) IterBurning() []world.BurningCell {
	var out []world.BurningCell
	for gy := 0; gy < g.state.Height; gy++ {
		for gx := 0; gx < g.state.Width; gx++ {
			c := g.state.At(gx, gy)
			if c.Burning() {
				out = append(out, world.BurningCell{GX: gx, GY: gy, Intensity: c.Intensity})
			}
		}
	}
	return out
}

// Summary reports coarse burning statistics: total burning cells,
// perimeter cells (burning with at least one non-burning 4-neighbor),
// and max intensity.
func (g *Grid) Summary() world.FireSummary {
	var s world.FireSummary
	for gy := 0; gy < g.state.Height; gy++ {
		for gx := 0; gx < g.state.Width; gx++ {
			c := g.state.At(gx, gy)
			if !c.Burning() {
				continue
			}
			s.BurningCount++
			if c.Intensity > s.MaxIntensity {
				s.MaxIntensity = c.Intensity
			}
			if g.isPerimeter(gx, gy) {
				s.PerimeterCount++
			}
		}
	}
	return s
}

func (g *Grid) isPerimeter(gx, gy int) bool {
	deltas := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for _, d := range deltas {
		nx, ny := gx+d[0], gy+d[1]
		if !g.state.InBounds(nx, ny) {
			return true
		}
		if !g.state.At(nx, ny).Burning() {
			return true
		}
	}
	return false
}

// Step advances the automaton one tick: spread, then pending
// suppressions, then burndown, in that order per spec.md §4.2.
func (g *Grid) Step(dt float64) {
	g.spread(dt)
	g.applyPendingSuppressions()
	g.burndown(dt)
	g.state.SimTimeSec += dt
}

var neighborOffsets = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

func (g *Grid) spread(dt float64) {
	type ignition struct {
		gx, gy    int
		intensity float64
	}
	var toIgnite []ignition

	for gy := 0; gy < g.state.Height; gy++ {
		for gx := 0; gx < g.state.Width; gx++ {
			c := g.state.At(gx, gy)
			if !c.Burning() {
				continue
			}
			for _, d := range neighborOffsets {
				nx, ny := gx+d[0], gy+d[1]
				if !g.state.InBounds(nx, ny) {
					continue
				}
				n := g.state.At(nx, ny)
				if n.FuelDensity <= 0 || n.Intensity >= ignitionThreshold {
					continue
				}

				windFactor := g.windFactor(gx, gy, nx, ny)
				spreadCellsPerStep := g.spreadRateMps * windFactor * dt / g.state.CellSizeM
				dist := chebyshev(d[0], d[1])
				distanceFactor := world.Clamp(spreadCellsPerStep-float64(dist)+1, 0, 1)
				pIgnite := c.Intensity * distanceFactor * n.FuelDensity * 0.3

				if g.rng.Float64() < pIgnite {
					toIgnite = append(toIgnite, ignition{gx: nx, gy: ny, intensity: math.Min(1.0, c.Intensity*0.8)})
				}
			}
		}
	}

	for _, ig := range toIgnite {
		c := g.state.At(ig.gx, ig.gy)
		if ig.intensity > c.Intensity {
			c.Intensity = ig.intensity
		}
		if !c.Ignited {
			c.Ignited = true
			c.IgnitionTime = g.state.SimTimeSec
		}
		g.state.Set(ig.gx, ig.gy, c)
	}
}

func chebyshev(dx, dy int) int {
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// windFactor computes 1 + k*cos(theta_nc - theta_wind) clamped to
// [0.25, 2.0], where theta_nc is the direction from cell c to neighbor n.
func (g *Grid) windFactor(cx, cy, nx, ny int) float64 {
	const k = 1.0
	thetaNC := math.Atan2(float64(ny-cy), float64(nx-cx))
	f := 1 + k*math.Cos(thetaNC-g.state.Wind.HeadingRd)
	return world.Clamp(f, 0.25, 2.0)
}

func (g *Grid) applyPendingSuppressions() {
	for _, p := range g.pending {
		c := g.state.At(p.gx, p.gy)
		c.Intensity *= 1 - g.suppressionEffectiveness*p.strength
		g.state.Set(p.gx, p.gy, c)
	}
	g.pending = g.pending[:0]
}

func (g *Grid) burndown(dt float64) {
	decay := math.Pow(0.95, dt)
	for gy := 0; gy < g.state.Height; gy++ {
		for gx := 0; gx < g.state.Width; gx++ {
			c := g.state.At(gx, gy)
			if !c.Burning() {
				continue
			}
			c.Intensity *= decay
			c.FuelDensity = math.Max(0, c.FuelDensity-0.01*c.Intensity*dt)
			if c.Intensity < world.IgnitionEpsilon {
				c.Intensity = 0
			}
			g.state.Set(gx, gy, c)
		}
	}
}

// Snapshot returns a deep copy of the underlying grid state.
func (g *Grid) Snapshot() world.FireGrid {
	out := *g.state
	out.Cells = append([]world.Cell(nil), g.state.Cells...)
	return out
}
