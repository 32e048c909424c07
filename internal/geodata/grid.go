package geodata

import (
	"fmt"
	"math"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

const maxGridPoints = 150

var (
	gridLatAliases = []string{"lat", "latitude"}
	gridLonAliases = []string{"lon", "longitude"}
)

// GridAxes holds the subsampled coordinate arrays and the resulting shape.
type GridAxes struct {
	Lats  []float64 `json:"lats"`
	Lons  []float64 `json:"lons"`
	Shape [2]int    `json:"shape"`
}

// GridMetadata describes the grid values.
type GridMetadata struct {
	Units string `json:"units"`
}

// Grid is a downsampled vector field for client-side animation.
type Grid struct {
	Grid     GridAxes     `json:"grid"`
	U        [][]float64  `json:"u_component"`
	V        [][]float64  `json:"v_component"`
	Speed    [][]float64  `json:"speed"`
	Metadata GridMetadata `json:"metadata"`
}

// ExtractClientGrid takes the first time step of both components, subsamples
// each axis with stride max(1, n/150), maps NaN to zero and computes speed.
func ExtractClientGrid(ds Dataset, comps VectorComponents) (*Grid, error) {
	latName, ok := firstCoordinate(ds, gridLatAliases)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "latitude coordinate not found")
	}
	lonName, ok := firstCoordinate(ds, gridLonAliases)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "longitude coordinate not found")
	}
	lats, err := ds.ReadFloat64s(latName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "read latitude")
	}
	lons, err := ds.ReadFloat64s(lonName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "read longitude")
	}

	u, rows, cols, err := slice2D(ds, comps.U)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "read u component")
	}
	v, vRows, vCols, err := slice2D(ds, comps.V)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "read v component")
	}
	if rows != vRows || cols != vCols {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction,
			fmt.Sprintf("component shapes differ: %dx%d vs %dx%d", rows, cols, vRows, vCols))
	}

	latStep := gridStride(len(lats))
	lonStep := gridStride(len(lons))

	grid := &Grid{
		Grid: GridAxes{
			Lats: subsample(lats, latStep),
			Lons: subsample(lons, lonStep),
		},
		Metadata: GridMetadata{Units: unitsOf(ds, comps.U, "m/s")},
	}
	for r := 0; r < rows; r += latStep {
		uRow := make([]float64, 0, cols/lonStep+1)
		vRow := make([]float64, 0, cols/lonStep+1)
		speedRow := make([]float64, 0, cols/lonStep+1)
		for c := 0; c < cols; c += lonStep {
			uv := zeroNaN(u[r*cols+c])
			vv := zeroNaN(v[r*cols+c])
			uRow = append(uRow, uv)
			vRow = append(vRow, vv)
			speedRow = append(speedRow, math.Hypot(uv, vv))
		}
		grid.U = append(grid.U, uRow)
		grid.V = append(grid.V, vRow)
		grid.Speed = append(grid.Speed, speedRow)
	}
	grid.Grid.Shape = [2]int{len(grid.U), 0}
	if len(grid.U) > 0 {
		grid.Grid.Shape[1] = len(grid.U[0])
	}
	return grid, nil
}

func gridStride(n int) int {
	step := n / maxGridPoints
	if step < 1 {
		return 1
	}
	return step
}

func subsample(values []float64, step int) []float64 {
	out := make([]float64, 0, len(values)/step+1)
	for i := 0; i < len(values); i += step {
		out = append(out, values[i])
	}
	return out
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func unitsOf(ds Dataset, name, fallback string) string {
	if units, ok := ds.VariableAttributes(name)["units"].(string); ok && units != "" {
		return units
	}
	return fallback
}
