package raster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixture builds a small classic-format file shaped like a CGLS
// distribution: lat/lon center axes, a crs variable carrying the
// geotransform, and an int16 NDVI variable with encoding attributes.
func writeFixture(t *testing.T, path string, lats, lons []float64, data []int16, withCRS bool) {
	t.Helper()
	h := cdf.NewHeader([]string{"time", "lat", "lon", "nv"}, []int{1, len(lats), len(lons), 1})
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	if withCRS {
		h.AddVariable("crs", []string{"nv"}, []int32{0})
		h.AddAttribute("crs", "GeoTransform", "10.0 0.25 0.0 50.0 0.0 -0.25")
	}
	h.AddVariable("NDVI", []string{"time", "lat", "lon"}, []int16{0})
	h.AddAttribute("NDVI", "scale_factor", []float64{0.004})
	h.AddAttribute("NDVI", "add_offset", []float64{-0.08})
	h.AddAttribute("NDVI", "_FillValue", []int16{255})
	h.AddAttribute("NDVI", "valid_range", []int16{0, 250})
	h.Define()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	cf, err := cdf.Create(f, h)
	require.NoError(t, err)

	w := cf.Writer("lat", nil, nil)
	_, err = w.Write(lats)
	require.NoError(t, err)
	w = cf.Writer("lon", nil, nil)
	_, err = w.Write(lons)
	require.NoError(t, err)
	if withCRS {
		w = cf.Writer("crs", nil, nil)
		_, err = w.Write([]int32{0})
		require.NoError(t, err)
	}
	w = cf.Writer("NDVI", nil, nil)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, cdf.UpdateNumRecs(f))
}

func axisValues(start, step float64, count int) []float64 {
	vals := make([]float64, count)
	for i := range vals {
		vals[i] = start + float64(i)*step
	}
	return vals
}

func TestOpenNetCDFAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.nc")
	lats := axisValues(49.875, -0.25, 4)
	lons := axisValues(10.125, 0.25, 4)
	writeFixture(t, path, lats, lons, make([]int16, 16), true)

	n, err := OpenNetCDF(path)
	require.NoError(t, err)
	defer n.Close()

	gotLats, err := n.Axis("lat")
	require.NoError(t, err)
	assert.Equal(t, lats, gotLats)

	gotLons, err := n.Axis("lon")
	require.NoError(t, err)
	assert.Equal(t, lons, gotLons)

	_, err = n.Axis("elevation")
	assert.Error(t, err)
}

func TestGeoTransformFromCRS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.nc")
	writeFixture(t, path, axisValues(49.875, -0.25, 4), axisValues(10.125, 0.25, 4), make([]int16, 16), true)

	n, err := OpenNetCDF(path)
	require.NoError(t, err)
	defer n.Close()

	gt, err := n.GeoTransform()
	require.NoError(t, err)
	assert.Equal(t, [6]float64{10.0, 0.25, 0.0, 50.0, 0.0, -0.25}, gt)
}

func TestGeoTransformDerivedFromAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.nc")
	writeFixture(t, path, axisValues(49.875, -0.25, 4), axisValues(10.125, 0.25, 4), make([]int16, 16), false)

	n, err := OpenNetCDF(path)
	require.NoError(t, err)
	defer n.Close()

	gt, err := n.GeoTransform()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, gt[0], 1e-12)
	assert.InDelta(t, 0.25, gt[1], 1e-12)
	assert.InDelta(t, 50.0, gt[3], 1e-12)
	assert.InDelta(t, -0.25, gt[5], 1e-12)
}

func TestVariableAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.nc")
	writeFixture(t, path, axisValues(49.875, -0.25, 4), axisValues(10.125, 0.25, 4), make([]int16, 16), true)

	n, err := OpenNetCDF(path)
	require.NoError(t, err)
	defer n.Close()

	scale, err := n.AttrFloat("NDVI", "scale_factor")
	require.NoError(t, err)
	assert.InDelta(t, 0.004, scale, 1e-12)

	vr, err := n.AttrFloats("NDVI", "valid_range")
	require.NoError(t, err)
	require.Len(t, vr, 2)
	assert.Equal(t, 0.0, vr[0])
	assert.Equal(t, 250.0, vr[1])

	_, err = n.AttrFloat("NDVI", "no_such_attribute")
	assert.Error(t, err)

	dt, err := n.VarType("NDVI")
	require.NoError(t, err)
	assert.Equal(t, Int16, dt)
}

func TestReadWindowPinsTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.nc")
	data := make([]int16, 16)
	for i := range data {
		data[i] = int16(i)
	}
	writeFixture(t, path, axisValues(49.875, -0.25, 4), axisValues(10.125, 0.25, 4), data, true)

	n, err := OpenNetCDF(path)
	require.NoError(t, err)
	defer n.Close()

	vals, err := n.ReadWindow("NDVI", 1, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 9, 10}, vals)

	vals, err = n.ReadWindow("NDVI", 0, 0, 4, 4)
	require.NoError(t, err)
	assert.Len(t, vals, 16)
	assert.Equal(t, 0.0, vals[0])
	assert.Equal(t, 15.0, vals[15])

	_, err = n.ReadWindow("NDVI", 3, 3, 2, 2)
	assert.Error(t, err, "window past the edge must be rejected")

	_, err = n.ReadWindow("NDVI", 0, 0, 0, 1)
	assert.Error(t, err)
}

func TestToFloat64sUnsignedBytes(t *testing.T) {
	vals := toFloat64s([]int8{0, 1, -1, -6}, true)
	assert.Equal(t, []float64{0, 1, 255, 250}, vals)

	vals = toFloat64s([]int8{0, 1, -1, -6}, false)
	assert.Equal(t, []float64{0, 1, -1, -6}, vals)

	assert.Nil(t, toFloat64s("text", false))
}
