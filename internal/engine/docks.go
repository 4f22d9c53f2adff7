package engine

import (
	"math"
	"math/rand/v2"

	"github.com/fogleman/delaunay"
	"github.com/idqam/swarmsim/internal/world"
)

// dockLayout places a handful of launch/recovery dock sites over the
// grid and triangulates them with Delaunay, grounded on the teacher's
// DelaunayGraph in idqam-fleet-sim-ms/.../simulation-engine/
// map-generator.go. Only the triangulation's triangle count is kept
// (in edges, for diagnostics); it is not logged and does not drive
// routing — spec.md keeps a single
// canonical dock per vehicle, so this is an enrichment: multiple docks
// let RETURN_TO_LAUNCH target the nearest one instead of one shared
// point.
type dockLayout struct {
	sites []world.Vector3
	edges int
}

func newDockLayout(widthM, heightM float64, numSites int, seed int64) dockLayout {
	if numSites < 1 {
		numSites = 1
	}
	rng := rand.New(rand.NewPCG(uint64(seed)+7, uint64(seed)>>3|1))

	points := make([]delaunay.Point, numSites)
	sites := make([]world.Vector3, numSites)
	for i := 0; i < numSites; i++ {
		x := rng.Float64() * widthM
		y := rng.Float64() * heightM
		points[i] = delaunay.Point{X: x, Y: y}
		sites[i] = world.Vector3{X: x, Y: y, Z: 0}
	}

	layout := dockLayout{sites: sites}
	if numSites >= 3 {
		if tri, err := delaunay.Triangulate(points); err == nil {
			layout.edges = len(tri.Triangles) / 3
		}
	}
	return layout
}

// Nearest returns the dock site closest to p.
func (d dockLayout) Nearest(p world.Vector3) world.Vector3 {
	best := d.sites[0]
	bestDist := math.MaxFloat64
	for _, s := range d.sites {
		dist := world.Distance2D(p.XY(), s.XY())
		if dist < bestDist {
			bestDist = dist
			best = s
		}
	}
	return best
}
