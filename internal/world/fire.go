package world

// IgnitionEpsilon is the intensity floor below which a cell is considered
// extinguished (burning == false).
const IgnitionEpsilon = 0.01

// Cell is one grid square of the fire model.
//
// Invariant: Intensity never increases except via Ignite or spread; once
// FuelDensity reaches 0, Intensity is monotonically non-increasing.
type Cell struct {
	Intensity    float64 `json:"intensity"`
	FuelDensity  float64 `json:"fuel_density"`
	TemperatureK float64 `json:"temperature_k"`
	IgnitionTime float64 `json:"ignition_time"`
	Ignited      bool    `json:"ignited"`
}

func (c Cell) Burning() bool {
	return c.Intensity > IgnitionEpsilon
}

// Wind is a uniform 2-D vector applied across the grid.
type Wind struct {
	SpeedMps  float64 `json:"speed_mps"`
	HeadingRd float64 `json:"heading_rad"`
}

// FireGrid is the rectangular fire propagation world, in row-major cell
// order. Owned exclusively by the physics engine.
type FireGrid struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	CellSizeM  float64 `json:"cell_size_m"`
	Cells      []Cell  `json:"cells"`
	Wind       Wind    `json:"wind"`
	SimTimeSec float64 `json:"sim_time_sec"`
}

func (g *FireGrid) Index(gx, gy int) int {
	return gy*g.Width + gx
}

func (g *FireGrid) InBounds(gx, gy int) bool {
	return gx >= 0 && gx < g.Width && gy >= 0 && gy < g.Height
}

func (g *FireGrid) At(gx, gy int) Cell {
	return g.Cells[g.Index(gx, gy)]
}

func (g *FireGrid) Set(gx, gy int, c Cell) {
	g.Cells[g.Index(gx, gy)] = c
}

// ToGrid maps world meters to grid cell coordinates.
func (g *FireGrid) ToGrid(xM, yM float64) (int, int) {
	gx := int(xM / g.CellSizeM)
	gy := int(yM / g.CellSizeM)
	return gx, gy
}

// BurningCell is one cell reported by a burning-set iteration.
type BurningCell struct {
	GX        int
	GY        int
	Intensity float64
}

// FireSummary is the coarse, queryable state of the fire grid.
type FireSummary struct {
	BurningCount  int     `json:"burning_count"`
	PerimeterCount int    `json:"perimeter_count"`
	MaxIntensity  float64 `json:"max_intensity"`
}
