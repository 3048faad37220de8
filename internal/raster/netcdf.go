package raster

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
)

// NetCDF is a read-only view over a classic-format NetCDF file as the
// CGLS archive distributes them: 1-D lat/lon center axes, a grid
// mapping variable carrying a GDAL-style GeoTransform attribute, and
// data variables with scale/offset/fill/valid_range attributes.
type NetCDF struct {
	path string
	f    *os.File
	cf   *cdf.File
}

func OpenNetCDF(path string) (*NetCDF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse netcdf %s: %w", path, err)
	}
	return &NetCDF{path: path, f: f, cf: cf}, nil
}

func (n *NetCDF) Close() error { return n.f.Close() }

func (n *NetCDF) Path() string { return n.path }

func (n *NetCDF) HasVariable(name string) bool {
	for _, v := range n.cf.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// Axis reads a 1-D coordinate variable as float64 values.
func (n *NetCDF) Axis(name string) ([]float64, error) {
	if !n.HasVariable(name) {
		return nil, fmt.Errorf("no %s axis in %s", name, n.path)
	}
	lens := n.cf.Header.Lengths(name)
	if len(lens) != 1 {
		return nil, fmt.Errorf("variable %s of %s is not a 1-D axis", name, n.path)
	}
	r := n.cf.Reader(name, nil, nil)
	buf := r.Zero(lens[0])
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read axis %s of %s: %w", name, n.path, err)
	}
	vals := toFloat64s(buf, false)
	if vals == nil {
		return nil, fmt.Errorf("axis %s of %s has unsupported type %T", name, n.path, buf)
	}
	return vals, nil
}

// GeoTransform returns the GDAL-convention affine transform. CGLS files
// carry it as a space-separated string attribute on the crs variable;
// when that is absent the transform is derived from the first two axis
// centers, shifted out half a pixel from center to corner.
func (n *NetCDF) GeoTransform() ([6]float64, error) {
	var gt [6]float64
	if n.HasVariable("crs") {
		if s, ok := n.cf.Header.GetAttribute("crs", "GeoTransform").(string); ok && s != "" {
			fields := strings.Fields(s)
			if len(fields) != 6 {
				return gt, fmt.Errorf("malformed GeoTransform %q in %s", s, n.path)
			}
			for i, field := range fields {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return gt, fmt.Errorf("malformed GeoTransform %q in %s: %w", s, n.path, err)
				}
				gt[i] = v
			}
			return gt, nil
		}
	}
	lats, err := n.Axis("lat")
	if err != nil {
		return gt, err
	}
	lons, err := n.Axis("lon")
	if err != nil {
		return gt, err
	}
	if len(lats) < 2 || len(lons) < 2 {
		return gt, fmt.Errorf("axes of %s too short to derive a geotransform", n.path)
	}
	dx := lons[1] - lons[0]
	dy := lats[1] - lats[0]
	return [6]float64{lons[0] - dx/2, dx, 0, lats[0] - dy/2, 0, dy}, nil
}

// VarShape returns the dimension lengths of a variable, nil when the
// variable does not exist.
func (n *NetCDF) VarShape(name string) []int {
	return n.cf.Header.Lengths(name)
}

// VarType reports the pixel encoding of a variable. Byte data follows
// the NetCDF _Unsigned convention: classic files store bytes signed and
// flag unsigned intent through the attribute.
func (n *NetCDF) VarType(name string) (DataType, error) {
	if !n.HasVariable(name) {
		return Unknown, fmt.Errorf("variable %s not in %s", name, n.path)
	}
	switch n.cf.Reader(name, nil, nil).Zero(1).(type) {
	case []int8, []uint8:
		return Byte, nil
	case []int16:
		return Int16, nil
	case []int32:
		return Int32, nil
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	}
	return Unknown, fmt.Errorf("variable %s of %s has an unsupported encoding", name, n.path)
}

// AttrFloat reads the first element of a numeric attribute.
func (n *NetCDF) AttrFloat(varName, attr string) (float64, error) {
	vals, err := n.AttrFloats(varName, attr)
	if err != nil {
		return math.NaN(), err
	}
	return vals[0], nil
}

// AttrFloats reads a numeric attribute, coercing whatever integer or
// floating width the file uses to float64.
func (n *NetCDF) AttrFloats(varName, attr string) ([]float64, error) {
	raw := n.cf.Header.GetAttribute(varName, attr)
	if raw == nil {
		return nil, fmt.Errorf("attribute %s:%s missing in %s", varName, attr, n.path)
	}
	unsigned := strings.EqualFold(n.AttrString(varName, "_Unsigned"), "true")
	vals := toFloat64s(raw, unsigned)
	if len(vals) == 0 {
		return nil, fmt.Errorf("attribute %s:%s of %s has unsupported type %T", varName, attr, n.path, raw)
	}
	return vals, nil
}

// AttrString reads a text attribute, empty when absent.
func (n *NetCDF) AttrString(varName, attr string) string {
	s, _ := n.cf.Header.GetAttribute(varName, attr).(string)
	return s
}

// ReadWindow reads a rows x cols window of a variable starting at
// (row0, col0), pinning any leading time dimension to its first index.
// Values come back as digital numbers in float64, reinterpreted
// unsigned when the variable is flagged _Unsigned.
func (n *NetCDF) ReadWindow(name string, row0, col0, rows, cols int) ([]float64, error) {
	if row0 < 0 || col0 < 0 || rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid %dx%d window at (%d,%d) of %s", rows, cols, row0, col0, name)
	}
	dims := n.cf.Header.Dimensions(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s not in %s", name, n.path)
	}
	lens := n.cf.Header.Lengths(name)
	begin := make([]int, len(dims))
	end := make([]int, len(dims))
	latDim, lonDim := -1, -1
	for i, d := range dims {
		switch d {
		case "lat", "latitude", "y":
			begin[i], end[i] = row0, row0+rows
			latDim = i
		case "lon", "longitude", "x":
			begin[i], end[i] = col0, col0+cols
			lonDim = i
		default:
			begin[i], end[i] = 0, 1
		}
	}
	if latDim < 0 || lonDim < 0 {
		return nil, fmt.Errorf("variable %s of %s has no lat/lon dimensions", name, n.path)
	}
	if lonDim < latDim {
		return nil, fmt.Errorf("variable %s of %s stores lon before lat, which is not supported", name, n.path)
	}
	if end[latDim] > lens[latDim] || end[lonDim] > lens[lonDim] {
		return nil, fmt.Errorf("window %dx%d at (%d,%d) outside variable %s of %s",
			rows, cols, row0, col0, name, n.path)
	}
	r := n.cf.Reader(name, begin, end)
	buf := r.Zero(rows * cols)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read %s window of %s: %w", name, n.path, err)
	}
	unsigned := strings.EqualFold(n.AttrString(name, "_Unsigned"), "true")
	vals := toFloat64s(buf, unsigned)
	if vals == nil {
		return nil, fmt.Errorf("variable %s of %s has unsupported type %T", name, n.path, buf)
	}
	return vals, nil
}

// toFloat64s widens any numeric slice the cdf reader can hand back.
// Signed bytes are reinterpreted as unsigned when asked, per the
// _Unsigned convention.
func toFloat64s(raw interface{}, unsigned bool) []float64 {
	switch v := raw.(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	case []int16:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	case []int8:
		out := make([]float64, len(v))
		for i, x := range v {
			if unsigned {
				out[i] = float64(uint8(x))
			} else {
				out[i] = float64(x)
			}
		}
		return out
	case []uint8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out
	}
	return nil
}
