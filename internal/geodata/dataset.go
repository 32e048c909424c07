package geodata

import (
	"fmt"
	"math"
	"sort"
)

// Dataset is a read-only view over a gridded scientific file.
// ReadFloat64s returns the full variable flattened in row-major order with
// fill values mapped to NaN and packing attributes applied. ReadSlice does the
// same for the hyperslab that pins each named axis in index to one position;
// axes not named are read whole and axes the variable lacks are ignored.
type Dataset interface {
	Dimensions() map[string]int
	DataVariables() []string
	Coordinates() []string
	Attributes() map[string]any
	VariableDims(name string) ([]string, bool)
	VariableAttributes(name string) map[string]any
	ReadFloat64s(name string) ([]float64, error)
	ReadSlice(name string, index map[string]int) ([]float64, error)
	Close() error
}

// Opener opens a dataset stored on disk.
type Opener interface {
	Open(path string) (Dataset, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Dataset, error)

func (f OpenerFunc) Open(path string) (Dataset, error) {
	return f(path)
}

// MemVariable is one variable of a MemDataset.
type MemVariable struct {
	Name       string
	Dims       []string
	Values     []float64
	Attributes map[string]any
}

// MemDataset is an in-memory Dataset. Variables named like their single
// dimension are treated as coordinates, mirroring the NetCDF convention.
type MemDataset struct {
	dims      map[string]int
	order     []string
	vars      map[string]MemVariable
	attrs     map[string]any
	readError map[string]error
}

// NewMemDataset builds an empty dataset with the given dimension sizes.
func NewMemDataset(dims map[string]int) *MemDataset {
	copied := make(map[string]int, len(dims))
	for k, v := range dims {
		copied[k] = v
	}
	return &MemDataset{
		dims:      copied,
		vars:      map[string]MemVariable{},
		attrs:     map[string]any{},
		readError: map[string]error{},
	}
}

// AddVariable appends a variable in declaration order. Values must match the dimension product.
func (m *MemDataset) AddVariable(v MemVariable) *MemDataset {
	if _, exists := m.vars[v.Name]; !exists {
		m.order = append(m.order, v.Name)
	}
	m.vars[v.Name] = v
	return m
}

// SetAttribute sets a global attribute.
func (m *MemDataset) SetAttribute(key string, value any) *MemDataset {
	m.attrs[key] = value
	return m
}

// FailReads makes ReadFloat64s and ReadSlice on name return err.
func (m *MemDataset) FailReads(name string, err error) *MemDataset {
	m.readError[name] = err
	return m
}

func (m *MemDataset) Dimensions() map[string]int {
	out := make(map[string]int, len(m.dims))
	for k, v := range m.dims {
		out[k] = v
	}
	return out
}

func (m *MemDataset) DataVariables() []string {
	out := []string{}
	for _, name := range m.order {
		if !m.isCoordinate(name) {
			out = append(out, name)
		}
	}
	return out
}

func (m *MemDataset) Coordinates() []string {
	out := []string{}
	for _, name := range m.order {
		if m.isCoordinate(name) {
			out = append(out, name)
		}
	}
	return out
}

func (m *MemDataset) Attributes() map[string]any {
	out := make(map[string]any, len(m.attrs))
	for k, v := range m.attrs {
		out[k] = v
	}
	return out
}

func (m *MemDataset) VariableDims(name string) ([]string, bool) {
	v, ok := m.vars[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), v.Dims...), true
}

func (m *MemDataset) VariableAttributes(name string) map[string]any {
	v, ok := m.vars[name]
	if !ok || v.Attributes == nil {
		return map[string]any{}
	}
	return v.Attributes
}

func (m *MemDataset) ReadFloat64s(name string) ([]float64, error) {
	if err := m.readError[name]; err != nil {
		return nil, err
	}
	v, ok := m.vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	want := 1
	for _, d := range v.Dims {
		want *= m.dims[d]
	}
	if len(v.Values) != want {
		return nil, fmt.Errorf("variable %q has %d values, dimensions require %d", name, len(v.Values), want)
	}
	return append([]float64(nil), v.Values...), nil
}

func (m *MemDataset) ReadSlice(name string, index map[string]int) ([]float64, error) {
	values, err := m.ReadFloat64s(name)
	if err != nil {
		return nil, err
	}
	v := m.vars[name]
	shape := make([]int, len(v.Dims))
	for i, d := range v.Dims {
		shape[i] = m.dims[d]
	}
	start, count, err := hyperslab(v.Dims, shape, index)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	n := 1
	for _, c := range count {
		n *= c
	}
	out := make([]float64, 0, n)
	pos := make([]int, len(count))
	for k := 0; k < n; k++ {
		offset := 0
		for i := range pos {
			offset += (start[i] + pos[i]) * strides[i]
		}
		out = append(out, values[offset])
		for i := len(pos) - 1; i >= 0; i-- {
			pos[i]++
			if pos[i] < count[i] {
				break
			}
			pos[i] = 0
		}
	}
	return out, nil
}

func (m *MemDataset) Close() error {
	return nil
}

func (m *MemDataset) isCoordinate(name string) bool {
	v := m.vars[name]
	return len(v.Dims) == 1 && v.Dims[0] == name
}

// hasCoordinate reports whether name is a coordinate variable of ds.
func hasCoordinate(ds Dataset, name string) bool {
	for _, c := range ds.Coordinates() {
		if c == name {
			return true
		}
	}
	return false
}

// firstCoordinate returns the first alias present as a coordinate.
func firstCoordinate(ds Dataset, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if hasCoordinate(ds, alias) {
			return alias, true
		}
	}
	return "", false
}

// hyperslab turns an axis-name index into NetCDF-style start/count vectors
// for a variable with the given dims and shape.
func hyperslab(dims []string, shape []int, index map[string]int) ([]int, []int, error) {
	if len(dims) != len(shape) {
		return nil, nil, fmt.Errorf("%d dimensions but %d sizes", len(dims), len(shape))
	}
	start := make([]int, len(dims))
	count := append([]int(nil), shape...)
	for i, d := range dims {
		at, ok := index[d]
		if !ok {
			continue
		}
		if at < 0 || at >= shape[i] {
			return nil, nil, fmt.Errorf("index %d out of range for axis %s of size %d", at, d, shape[i])
		}
		start[i] = at
		count[i] = 1
	}
	return start, count, nil
}

// slice2D pins every leading dimension at index 0 and returns the trailing
// two axes as a rows x cols row-major block.
func slice2D(ds Dataset, name string) ([]float64, int, int, error) {
	dims, ok := ds.VariableDims(name)
	if !ok {
		return nil, 0, 0, fmt.Errorf("variable %q not found", name)
	}
	if len(dims) < 2 {
		return nil, 0, 0, fmt.Errorf("variable %q has %d dimensions, need at least 2", name, len(dims))
	}
	sizes := ds.Dimensions()
	rows, cols := sizes[dims[len(dims)-2]], sizes[dims[len(dims)-1]]
	index := make(map[string]int, len(dims)-2)
	for _, d := range dims[:len(dims)-2] {
		index[d] = 0
	}
	values, err := ds.ReadSlice(name, index)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(values) != rows*cols {
		return nil, 0, 0, fmt.Errorf("variable %q returned %d values for a %dx%d slice", name, len(values), rows, cols)
	}
	return values, rows, cols, nil
}

// firstStep reads a variable of any rank at index 0 of its time axis.
func firstStep(ds Dataset, name string) ([]float64, error) {
	dims, ok := ds.VariableDims(name)
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	if len(dims) > 1 {
		return ds.ReadSlice(name, map[string]int{"time": 0})
	}
	return ds.ReadFloat64s(name)
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
