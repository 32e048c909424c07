package mapbox

// Feature is a GeoJSON point feature uploaded to tileset sources and datasets.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// NewPointFeature builds a point feature at lon/lat.
func NewPointFeature(id string, lon, lat float64, props map[string]any) Feature {
	if props == nil {
		props = map[string]any{}
	}
	return Feature{
		Type:       "Feature",
		ID:         id,
		Geometry:   Geometry{Type: "Point", Coordinates: []float64{lon, lat}},
		Properties: props,
	}
}
