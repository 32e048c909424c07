package geodata

import (
	"math"
	"strconv"
)

const defaultFeatureLimit = 5000

// Feature is a point sample carrying every 2-D scalar value at that cell.
type Feature struct {
	ID         string
	Lon        float64
	Lat        float64
	Properties map[string]any
}

// Features samples the grid into point features. The stride grows until the
// feature count fits under limit. Cells where every value is NaN are skipped.
func Features(ds Dataset, limit int) ([]Feature, error) {
	if limit <= 0 {
		limit = defaultFeatureLimit
	}
	latName, ok := firstCoordinate(ds, boundsLatAliases)
	if !ok {
		return nil, nil
	}
	lonName, ok := firstCoordinate(ds, boundsLonAliases)
	if !ok {
		return nil, nil
	}
	lats, err := ds.ReadFloat64s(latName)
	if err != nil {
		return nil, err
	}
	lons, err := ds.ReadFloat64s(lonName)
	if err != nil {
		return nil, err
	}

	type layer struct {
		name   string
		values []float64
	}
	layers := []layer{}
	for _, name := range ds.DataVariables() {
		values, rows, cols, err := slice2D(ds, name)
		if err != nil || rows != len(lats) || cols != len(lons) {
			continue
		}
		layers = append(layers, layer{name: name, values: values})
	}
	if len(layers) == 0 {
		return nil, nil
	}

	step := 1
	for (len(lats)/step+1)*(len(lons)/step+1) > limit {
		step++
	}

	features := []Feature{}
	for r := 0; r < len(lats); r += step {
		for c := 0; c < len(lons); c += step {
			props := map[string]any{}
			for _, l := range layers {
				v := l.values[r*len(lons)+c]
				if math.IsNaN(v) {
					continue
				}
				props[l.name] = math.Round(v*1000) / 1000
			}
			if len(props) == 0 {
				continue
			}
			features = append(features, Feature{
				ID:         strconv.Itoa(r) + "-" + strconv.Itoa(c),
				Lon:        lons[c],
				Lat:        lats[r],
				Properties: props,
			})
			if len(features) >= limit {
				return features, nil
			}
		}
	}
	return features, nil
}
