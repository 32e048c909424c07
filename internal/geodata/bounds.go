package geodata

import (
	"math"

	pkgerrors "github.com/angelmondragon/wxviz-backend/pkg/errors"
)

var (
	boundsLatAliases = []string{"lat", "latitude", "y", "Y"}
	boundsLonAliases = []string{"lon", "longitude", "x", "X"}
)

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center is a [lon, lat] pair.
type Center [2]float64

func (c Center) Lon() float64 { return c[0] }
func (c Center) Lat() float64 { return c[1] }

// ComputeBounds returns the min/max of the latitude and longitude coordinates.
// It returns nil, nil when either axis is absent and an EXTRACTION_ERROR when a
// coordinate exists but holds no readable values.
func ComputeBounds(ds Dataset) (*Bounds, error) {
	latName, ok := firstCoordinate(ds, boundsLatAliases)
	if !ok {
		return nil, nil
	}
	lonName, ok := firstCoordinate(ds, boundsLonAliases)
	if !ok {
		return nil, nil
	}

	south, north, err := coordinateRange(ds, latName)
	if err != nil {
		return nil, err
	}
	west, east, err := coordinateRange(ds, lonName)
	if err != nil {
		return nil, err
	}
	return &Bounds{North: north, South: south, East: east, West: west}, nil
}

func coordinateRange(ds Dataset, name string) (float64, float64, error) {
	values, err := ds.ReadFloat64s(name)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "read coordinate "+name)
	}
	values = finite(values)
	if len(values) == 0 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeExtraction, "coordinate "+name+" has no finite values")
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, nil
}

// OptimalView returns the midpoint of b and a zoom level picked from a fixed
// ladder over the larger of the two spans. A span of a full half-globe (180)
// or more is world scale.
func OptimalView(b Bounds) (Center, int) {
	center := Center{(b.East + b.West) / 2, (b.North + b.South) / 2}
	span := math.Max(b.North-b.South, b.East-b.West)

	var zoom int
	switch {
	case span >= 180:
		zoom = 1
	case span > 90:
		zoom = 2
	case span > 45:
		zoom = 3
	case span > 22:
		zoom = 4
	case span > 11:
		zoom = 5
	case span > 5.5:
		zoom = 6
	case span > 2.8:
		zoom = 7
	case span > 1.4:
		zoom = 8
	default:
		zoom = 9
	}
	return center, zoom
}
