// Package netcdf reads NetCDF files through the netCDF C library.
package netcdf

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"
)

type variable struct {
	handle netcdf.Var
	dims   []string
	shape  []uint64
	typ    netcdf.Type
	attrs  map[string]any
}

// File is an open NetCDF dataset. The schema is read eagerly on Open; values
// are read on demand.
type File struct {
	nc      netcdf.Dataset
	dims    map[string]int
	order   []string
	vars    map[string]*variable
	globals map[string]any
}

// Open opens path read-only and loads its schema.
func Open(path string) (*File, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	f := &File{
		nc:   nc,
		dims: map[string]int{},
		vars: map[string]*variable{},
	}
	if err := f.loadSchema(); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return f, nil
}

func (f *File) loadSchema() error {
	nvars, err := f.nc.NVars()
	if err != nil {
		return fmt.Errorf("count variables: %w", err)
	}
	for i := 0; i < nvars; i++ {
		v := f.nc.VarN(i)
		name, err := v.Name()
		if err != nil {
			return fmt.Errorf("variable %d name: %w", i, err)
		}
		dims, err := v.Dims()
		if err != nil {
			return fmt.Errorf("variable %s dims: %w", name, err)
		}
		typ, err := v.Type()
		if err != nil {
			return fmt.Errorf("variable %s type: %w", name, err)
		}
		entry := &variable{handle: v, typ: typ, attrs: readVarAttrs(v)}
		for _, d := range dims {
			dimName, err := d.Name()
			if err != nil {
				return fmt.Errorf("variable %s dim name: %w", name, err)
			}
			n, err := d.Len()
			if err != nil {
				return fmt.Errorf("variable %s dim %s len: %w", name, dimName, err)
			}
			entry.dims = append(entry.dims, dimName)
			entry.shape = append(entry.shape, n)
			f.dims[dimName] = int(n)
		}
		f.vars[name] = entry
		f.order = append(f.order, name)
	}
	f.globals = readGlobalAttrs(f.nc)
	return nil
}

func (f *File) Dimensions() map[string]int {
	out := make(map[string]int, len(f.dims))
	for k, v := range f.dims {
		out[k] = v
	}
	return out
}

func (f *File) DataVariables() []string {
	out := []string{}
	for _, name := range f.order {
		if !f.isCoordinate(name) {
			out = append(out, name)
		}
	}
	return out
}

func (f *File) Coordinates() []string {
	out := []string{}
	for _, name := range f.order {
		if f.isCoordinate(name) {
			out = append(out, name)
		}
	}
	return out
}

func (f *File) Attributes() map[string]any {
	out := make(map[string]any, len(f.globals))
	for k, v := range f.globals {
		out[k] = v
	}
	return out
}

func (f *File) VariableDims(name string) ([]string, bool) {
	v, ok := f.vars[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), v.dims...), true
}

func (f *File) VariableAttributes(name string) map[string]any {
	v, ok := f.vars[name]
	if !ok {
		return map[string]any{}
	}
	return v.attrs
}

// ReadFloat64s reads the whole variable, maps _FillValue/missing_value to NaN
// and applies scale_factor/add_offset.
func (f *File) ReadFloat64s(name string) ([]float64, error) {
	v, ok := f.vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	n := uint64(1)
	for _, s := range v.shape {
		n *= s
	}
	values, err := readAsFloat64(v.handle, v.typ, int(n))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return unpack(values, v.attrs), nil
}

// ReadSlice reads the hyperslab of a variable that pins each axis named in
// index to a single position. Other axes are read whole; index entries for
// axes the variable lacks are ignored.
func (f *File) ReadSlice(name string, index map[string]int) ([]float64, error) {
	v, ok := f.vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	start, count, err := hyperslab(v.dims, v.shape, index)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	values, err := readSliceAsFloat64(v.handle, v.typ, start, count)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return unpack(values, v.attrs), nil
}

func (f *File) Close() error {
	return f.nc.Close()
}

func (f *File) isCoordinate(name string) bool {
	v := f.vars[name]
	return v != nil && len(v.dims) == 1 && v.dims[0] == name
}

func hyperslab(dims []string, shape []uint64, index map[string]int) ([]uint64, []uint64, error) {
	start := make([]uint64, len(dims))
	count := append([]uint64(nil), shape...)
	for i, d := range dims {
		at, ok := index[d]
		if !ok {
			continue
		}
		if at < 0 || uint64(at) >= shape[i] {
			return nil, nil, fmt.Errorf("index %d out of range for axis %s of size %d", at, d, shape[i])
		}
		start[i] = uint64(at)
		count[i] = 1
	}
	return start, count, nil
}

func readSliceAsFloat64(v netcdf.Var, t netcdf.Type, start, count []uint64) ([]float64, error) {
	n := uint64(1)
	for _, c := range count {
		n *= c
	}
	out := make([]float64, n)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64Slice(out, start, count); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32Slice(tmp, start, count); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32Slice(tmp, start, count); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16Slice(tmp, start, count); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.BYTE:
		tmp := make([]int8, n)
		if err := v.ReadInt8Slice(tmp, start, count); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

func readAsFloat64(v netcdf.Var, t netcdf.Type, n int) ([]float64, error) {
	out := make([]float64, n)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.BYTE:
		tmp := make([]int8, n)
		if err := v.ReadInt8s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

func unpack(values []float64, attrs map[string]any) []float64 {
	fills := []float64{}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if fill, ok := numericAttr(attrs, key); ok {
			fills = append(fills, fill)
		}
	}
	scale, hasScale := numericAttr(attrs, "scale_factor")
	offset, hasOffset := numericAttr(attrs, "add_offset")
	for i, v := range values {
		for _, fill := range fills {
			if v == fill {
				v = math.NaN()
				break
			}
		}
		if hasScale {
			v *= scale
		}
		if hasOffset {
			v += offset
		}
		values[i] = v
	}
	return values
}

func numericAttr(attrs map[string]any, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	}
	return 0, false
}

func readVarAttrs(v netcdf.Var) map[string]any {
	out := map[string]any{}
	n, err := v.NAttrs()
	if err != nil {
		return out
	}
	for i := 0; i < n; i++ {
		a, err := v.AttrN(i)
		if err != nil {
			continue
		}
		if value, err := readAttr(a); err == nil {
			out[a.Name()] = value
		}
	}
	return out
}

func readGlobalAttrs(nc netcdf.Dataset) map[string]any {
	out := map[string]any{}
	n, err := nc.NAttrs()
	if err != nil {
		return out
	}
	for i := 0; i < n; i++ {
		a, err := nc.AttrN(i)
		if err != nil {
			continue
		}
		if value, err := readAttr(a); err == nil {
			out[a.Name()] = value
		}
	}
	return out
}

var errUnsupportedAttr = errors.New("unsupported attribute type")

// readAttr returns text attributes as string, single numbers as float64 and
// numeric arrays as []float64.
func readAttr(a netcdf.Attr) (any, error) {
	t, err := a.Type()
	if err != nil {
		return nil, err
	}
	n, err := a.Len()
	if err != nil {
		return nil, err
	}
	if t == netcdf.CHAR {
		buf := make([]byte, n)
		if err := a.ReadBytes(buf); err != nil {
			return nil, err
		}
		return strings.TrimRight(string(buf), "\x00"), nil
	}
	values := make([]float64, n)
	switch t {
	case netcdf.DOUBLE:
		if err := a.ReadFloat64s(values); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := a.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, v := range tmp {
			values[i] = float64(v)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := a.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, v := range tmp {
			values[i] = float64(v)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := a.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, v := range tmp {
			values[i] = float64(v)
		}
	default:
		return nil, errUnsupportedAttr
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}
