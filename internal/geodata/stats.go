package geodata

import "math"

const defaultPreviewVars = 5

// Preview summarizes one variable at the first time step.
type Preview struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Units string  `json:"units"`
}

// WindStatistics summarizes wind speed over the first time step.
type WindStatistics struct {
	MinSpeed  float64 `json:"min_speed"`
	MaxSpeed  float64 `json:"max_speed"`
	MeanSpeed float64 `json:"mean_speed"`
	StdSpeed  float64 `json:"std_speed"`
}

// Previews computes min/max/mean of the first maxVars data variables, skipping
// NaN. Variables that cannot be read or hold no finite value are left out.
func Previews(ds Dataset, maxVars int) map[string]Preview {
	if maxVars <= 0 {
		maxVars = defaultPreviewVars
	}
	out := map[string]Preview{}
	vars := ds.DataVariables()
	if len(vars) > maxVars {
		vars = vars[:maxVars]
	}
	for _, name := range vars {
		values, err := firstStep(ds, name)
		if err != nil {
			continue
		}
		values = finite(values)
		if len(values) == 0 {
			continue
		}
		lo, hi, mean, _ := describe(values)
		out[name] = Preview{Min: lo, Max: hi, Mean: mean, Units: unitsOf(ds, name, "unknown")}
	}
	return out
}

// ComputeWindStatistics returns zeroed statistics when the components cannot be read.
func ComputeWindStatistics(ds Dataset, comps VectorComponents) WindStatistics {
	u, err := firstStep(ds, comps.U)
	if err != nil {
		return WindStatistics{}
	}
	v, err := firstStep(ds, comps.V)
	if err != nil || len(u) != len(v) {
		return WindStatistics{}
	}
	speeds := make([]float64, 0, len(u))
	for i := range u {
		s := math.Hypot(u[i], v[i])
		if !math.IsNaN(s) && !math.IsInf(s, 0) {
			speeds = append(speeds, s)
		}
	}
	if len(speeds) == 0 {
		return WindStatistics{}
	}
	lo, hi, mean, std := describe(speeds)
	return WindStatistics{MinSpeed: lo, MaxSpeed: hi, MeanSpeed: mean, StdSpeed: std}
}

// describe returns min, max, mean and population standard deviation of a non-empty slice.
func describe(values []float64) (float64, float64, float64, float64) {
	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return lo, hi, mean, math.Sqrt(variance / float64(len(values)))
}
