package geodata

import (
	"github.com/angelmondragon/wxviz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

// Options controls which optional products Extract builds.
type Options struct {
	VisualizationType enums.VisualizationType
	PreviewVars       int
}

// Result is everything ingestion needs from one dataset.
type Result struct {
	Metadata       Metadata
	WindComponents *VectorComponents
	ScalarVars     []string
	VectorPairs    []VectorPair
	Bounds         *Bounds
	Center         *Center
	Zoom           *int
	Previews       map[string]Preview
	WindStats      *WindStatistics
	Grid           *Grid
	// Warnings lists optional products that failed to extract.
	Warnings []string
}

// Extract runs the full pipeline over ds. Absent fields stay nil; read
// failures of optional products are reported in Warnings instead of failing.
func Extract(ds Dataset, opts Options) (*Result, error) {
	if ds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "dataset is nil")
	}

	res := &Result{
		Metadata:    DescribeDataset(ds),
		VectorPairs: []VectorPair{},
	}

	if comps, ok := FindVectorComponents(ds); ok {
		res.WindComponents = comps
		res.VectorPairs = append(res.VectorPairs, VectorPair{Name: "wind", U: comps.U, V: comps.V})
		stats := ComputeWindStatistics(ds, *comps)
		res.WindStats = &stats
	}
	res.ScalarVars = ScalarVariables(ds, res.WindComponents)

	bounds, err := ComputeBounds(ds)
	switch {
	case err != nil:
		res.Warnings = append(res.Warnings, err.Error())
	case bounds != nil:
		center, zoom := OptimalView(*bounds)
		res.Bounds = bounds
		res.Center = &center
		res.Zoom = &zoom
	}

	res.Previews = Previews(ds, opts.PreviewVars)

	if res.WindComponents != nil && opts.VisualizationType.WantsGrid() {
		grid, err := ExtractClientGrid(ds, *res.WindComponents)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			res.Grid = grid
		}
	}
	return res, nil
}
