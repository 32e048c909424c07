package geodata

import (
	"fmt"
	"strings"
)

// Metadata is the structural summary stored on visualization and file records.
type Metadata struct {
	Dimensions  map[string]int `json:"dimensions"`
	Variables   []string       `json:"variables"`
	Coordinates []string       `json:"coordinates"`
	Attributes  map[string]any `json:"attributes"`
}

// DescribeDataset captures dimension sizes, variable and coordinate names and global attributes.
func DescribeDataset(ds Dataset) Metadata {
	return Metadata{
		Dimensions:  ds.Dimensions(),
		Variables:   ds.DataVariables(),
		Coordinates: ds.Coordinates(),
		Attributes:  ds.Attributes(),
	}
}

// Summary renders "Dimensions: k=v, ... | Variables: N".
func (m *Metadata) Summary() string {
	if m == nil || (len(m.Dimensions) == 0 && len(m.Variables) == 0) {
		return "No metadata available"
	}
	parts := []string{}
	if len(m.Dimensions) > 0 {
		dims := make([]string, 0, len(m.Dimensions))
		for _, k := range sortedKeys(m.Dimensions) {
			dims = append(dims, fmt.Sprintf("%s=%d", k, m.Dimensions[k]))
		}
		parts = append(parts, "Dimensions: "+strings.Join(dims, ", "))
	}
	if len(m.Variables) > 0 {
		parts = append(parts, fmt.Sprintf("Variables: %d", len(m.Variables)))
	}
	return strings.Join(parts, " | ")
}
