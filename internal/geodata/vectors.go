package geodata

import "strings"

var (
	eastwardPatterns  = []string{"u", "u10", "u_wind", "u_component", "eastward", "ugrd", "u-component", "uas"}
	northwardPatterns = []string{"v", "v10", "v_wind", "v_component", "northward", "vgrd", "v-component", "vas"}
)

// VectorComponents names the eastward (U) and northward (V) variables of a vector field.
type VectorComponents struct {
	U string `json:"u"`
	V string `json:"v"`
}

// VectorPair is a named vector field made of two component variables.
type VectorPair struct {
	Name string `json:"name"`
	U    string `json:"u"`
	V    string `json:"v"`
}

// FindVectorComponents scans data variables in declaration order and returns the
// first U and V candidates. A variable taken for U is not considered for V.
func FindVectorComponents(ds Dataset) (*VectorComponents, bool) {
	var u, v string
	for _, name := range ds.DataVariables() {
		lower := strings.ToLower(name)
		switch {
		case u == "" && containsAny(lower, eastwardPatterns):
			u = name
		case v == "" && containsAny(lower, northwardPatterns):
			v = name
		}
	}
	if u == "" || v == "" {
		return nil, false
	}
	return &VectorComponents{U: u, V: v}, true
}

// ScalarVariables returns the data variables not used as vector components.
func ScalarVariables(ds Dataset, comps *VectorComponents) []string {
	out := []string{}
	for _, name := range ds.DataVariables() {
		if comps != nil && (name == comps.U || name == comps.V) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
