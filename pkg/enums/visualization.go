package enums

import (
	"fmt"
	"strings"
)

// VisualizationType is the rendering mode requested for an upload.
type VisualizationType string

const (
	VisualizationTypeVector      VisualizationType = "vector"
	VisualizationTypeRasterArray VisualizationType = "raster-array"
	VisualizationTypeClientSide  VisualizationType = "client-side"
)

var validVisualizationTypes = []VisualizationType{
	VisualizationTypeVector,
	VisualizationTypeRasterArray,
	VisualizationTypeClientSide,
}

func (v VisualizationType) String() string {
	return string(v)
}

func (v VisualizationType) IsValid() bool {
	for _, candidate := range validVisualizationTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// WantsGrid reports whether the mode animates wind on the client and needs a session grid.
func (v VisualizationType) WantsGrid() bool {
	return v == VisualizationTypeRasterArray || v == VisualizationTypeClientSide
}

// RequestedFormat maps the visualization mode to the tileset format asked of the remote service.
func (v VisualizationType) RequestedFormat() TilesetFormat {
	if v == VisualizationTypeRasterArray {
		return TilesetFormatRasterArray
	}
	return TilesetFormatVector
}

// ParseVisualizationType converts raw input into a VisualizationType. Empty input means vector.
func ParseVisualizationType(value string) (VisualizationType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return VisualizationTypeVector, nil
	}
	for _, candidate := range validVisualizationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid visualization type %q", value)
}

// TilesetFormat is the encoding of a published tileset.
type TilesetFormat string

const (
	TilesetFormatVector      TilesetFormat = "vector"
	TilesetFormatRasterArray TilesetFormat = "raster-array"
)

func (f TilesetFormat) String() string {
	return string(f)
}

func (f TilesetFormat) IsValid() bool {
	return f == TilesetFormatVector || f == TilesetFormatRasterArray
}
