package cgls

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interob/coardas/internal/raster"
	"github.com/interob/coardas/internal/report"
	"github.com/interob/coardas/internal/timeslice"
)

func stageDatafile(t *testing.T, dir string, p *Product, d timeslice.Dekad, originLon, originLat float64, ppd, rows, cols int, shift float64, data []int16) {
	t.Helper()
	path := filepath.Join(dir, p.DatafileName(d))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	writeDatafile(t, path, "lat", "lon", gtString(originLon, originLat, ppd),
		latCenters(originLat, ppd, rows, shift), lonCenters(originLon, ppd, cols, shift), data)
}

func testConfig(t *testing.T, begin, end timeslice.Dekad, sink raster.Sink) Config {
	t.Helper()
	return Config{
		TargetResolution: "1km",
		TargetAOI:        AOI{ULLon: 10.012, ULLat: 49.987, LRLon: 10.033, LRLat: 49.967},
		OutputDir:        t.TempDir(),
		NamingPattern:    "c_gls_COMPOSITE_$(yyyy)$(mm)$(dd)",
		Begin:            begin,
		End:              end,
		Scratch:          t.TempDir(),
		Sink:             sink,
	}
}

func TestAssimilateFirstComeFirstServed(t *testing.T) {
	ctx := context.Background()
	d1, d2, d3 := timeslice.New(2020, 1), timeslice.New(2020, 2), timeslice.New(2020, 3)

	archA := newFakeArchive(t, "TESTA", "1km", d1, d2)
	archB := newFakeArchive(t, "TESTB", "1km", d2, d3)
	mirrorA, mirrorB := t.TempDir(), t.TempDir()
	for _, d := range []timeslice.Dekad{d1, d2} {
		stageDatafile(t, mirrorA, archA.product, d, 10, 50, 112, 8, 8, 0.5, flatData(8, 8, 10))
	}
	for _, d := range []timeslice.Dekad{d2, d3} {
		stageDatafile(t, mirrorB, archB.product, d, 10, 50, 112, 8, 8, 0.5, flatData(8, 8, 20))
	}

	sink := &captureSink{}
	cfg := testConfig(t, d1, d3, sink)
	cfg.FootprintPath = filepath.Join(cfg.OutputDir, "aoi.geojson")

	asm := NewAssimilator(ctx, cfg)
	require.NoError(t, asm.Register(ctx, archA.product, &Mirror{Product: archA.product.Name, Path: mirrorA, Readonly: true}))
	require.NoError(t, asm.Register(ctx, archB.product, &Mirror{Product: archB.product.Name, Path: mirrorB, Readonly: true}))

	require.NoError(t, asm.Prepare(ctx))
	aligned, ok := asm.AlignedAOI()
	require.True(t, ok)
	lats := latCenters(50, 112, 8, 0.5)
	lons := lonCenters(10, 112, 8, 0.5)
	assert.Equal(t, AOI{ULLon: lons[1], ULLat: lats[1], LRLon: lons[3], LRLat: lats[3]}, aligned)

	footprint, err := os.ReadFile(cfg.FootprintPath)
	require.NoError(t, err)
	assert.Contains(t, string(footprint), "TESTA")
	assert.Contains(t, string(footprint), "TESTB")

	// an output left behind by an earlier run is kept
	skipPath := filepath.Join(cfg.OutputDir, "c_gls_COMPOSITE_20200101.tif")
	require.NoError(t, os.WriteFile(skipPath, []byte("previous run"), 0o644))

	require.NoError(t, asm.Ingest(ctx))

	require.Len(t, sink.writes, 2)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "c_gls_COMPOSITE_20200111.tif"), sink.writes[0].path)
	// both products advertise the second dekad, the first registered wins
	assert.Equal(t, []float64{10, 10, 10, 10}, sink.writes[0].dn)
	assert.Equal(t, map[string]string{
		"PRODUCT":      "TESTA",
		"PERIOD_START": "2020-01-11",
		"PERIOD_END":   "2020-01-20",
		"SOURCE":       "c_gls_TESTA_202001110000.nc",
	}, sink.writes[0].opts.Tags)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "c_gls_COMPOSITE_20200121.tif"), sink.writes[1].path)
	assert.Equal(t, []float64{20, 20, 20, 20}, sink.writes[1].dn)
	assert.Equal(t, "TESTB", sink.writes[1].opts.Tags["PRODUCT"])

	rows := asm.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, report.StatusSkipped, rows[0].Status)
	assert.Equal(t, "20200101", rows[0].Dekad)
	assert.Equal(t, report.StatusWritten, rows[1].Status)
	assert.Equal(t, "TESTA", rows[1].Product)
	assert.Equal(t, report.StatusWritten, rows[2].Status)
	assert.Equal(t, "TESTB", rows[2].Product)
}

func TestPrepareFailsOnUncoveredStep(t *testing.T) {
	ctx := context.Background()
	d1, d3 := timeslice.New(2020, 1), timeslice.New(2020, 3)

	archA := newFakeArchive(t, "TESTA", "1km", d1)
	archB := newFakeArchive(t, "TESTB", "1km", d3)

	asm := NewAssimilator(ctx, testConfig(t, d1, d3, &captureSink{}))
	require.NoError(t, asm.Register(ctx, archA.product, nil))
	require.NoError(t, asm.Register(ctx, archB.product, nil))

	err := asm.Prepare(ctx)
	assert.ErrorContains(t, err, "no product found for 20200111")
}

func TestPrepareRequiresProducts(t *testing.T) {
	ctx := context.Background()
	asm := NewAssimilator(ctx, testConfig(t, timeslice.New(2020, 1), timeslice.New(2020, 3), &captureSink{}))
	assert.ErrorContains(t, asm.Prepare(ctx), "no products registered")
}

func TestIngestRequiresPrepare(t *testing.T) {
	ctx := context.Background()
	asm := NewAssimilator(ctx, testConfig(t, timeslice.New(2020, 1), timeslice.New(2020, 3), &captureSink{}))
	assert.ErrorContains(t, asm.Ingest(ctx), "run Prepare first")
}

func TestAssimilateResamples(t *testing.T) {
	ctx := context.Background()
	d1 := timeslice.New(2020, 1)

	arch := newFakeArchive(t, "TESTC", "300m", d1)
	mirror := t.TempDir()
	data := flatData(336, 336, 100)
	for r := 102; r <= 104; r++ {
		for c := 102; c <= 104; c++ {
			data[r*336+c] = 251
		}
	}
	stageDatafile(t, mirror, arch.product, d1, 10, 50, 336, 336, 336, 0.25, data)

	sink := &captureSink{}
	cfg := testConfig(t, d1, d1, sink)
	cfg.TargetAOI = AOI{ULLon: 10.3, ULLat: 49.7, LRLon: 10.6, LRLat: 49.4}

	asm := NewAssimilator(ctx, cfg)
	require.NoError(t, asm.Register(ctx, arch.product, &Mirror{Product: arch.product.Name, Path: mirror, Readonly: true}))
	require.NoError(t, asm.Prepare(ctx))
	require.NoError(t, asm.Ingest(ctx))

	require.Len(t, sink.writes, 1)
	w := sink.writes[0]
	assert.Equal(t, 33, w.width)
	assert.Equal(t, 33, w.height)
	assert.Equal(t, raster.Byte, w.opts.DType)
	assert.Equal(t, 255.0, w.dn[0])
	assert.Equal(t, 100.0, w.dn[1])
	assert.InDelta(t, 10.29985119, w.opts.Transform[0], 1e-9)
	assert.InDelta(t, 49.70014881, w.opts.Transform[3], 1e-9)

	rows := asm.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, report.StatusWritten, rows[0].Status)
	assert.Equal(t, "TESTC", rows[0].Product)
}

func TestIngestAbortsOnCoverageGap(t *testing.T) {
	ctx := context.Background()
	d1, d2 := timeslice.New(2020, 1), timeslice.New(2020, 2)
	d4 := timeslice.New(2020, 4)

	archA := newFakeArchive(t, "TESTA", "1km", d1)
	archB := newFakeArchive(t, "TESTB", "1km", d2, d4)
	mirrorA, mirrorB := t.TempDir(), t.TempDir()
	stageDatafile(t, mirrorA, archA.product, d1, 10, 50, 112, 8, 8, 0.5, flatData(8, 8, 10))
	stageDatafile(t, mirrorB, archB.product, d2, 10, 50, 112, 8, 8, 0.5, flatData(8, 8, 20))

	sink := &captureSink{}
	asm := NewAssimilator(ctx, testConfig(t, d1, d4, sink))
	require.NoError(t, asm.Register(ctx, archA.product, &Mirror{Product: archA.product.Name, Path: mirrorA, Readonly: true}))
	require.NoError(t, asm.Register(ctx, archB.product, &Mirror{Product: archB.product.Name, Path: mirrorB, Readonly: true}))

	// both products show a first hit before the gap, so Prepare passes
	require.NoError(t, asm.Prepare(ctx))

	err := asm.Ingest(ctx)
	assert.ErrorContains(t, err, "no product advertises 20200121")

	require.Len(t, sink.writes, 2)
	rows := asm.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, report.StatusWritten, rows[0].Status)
	assert.Equal(t, report.StatusWritten, rows[1].Status)
	assert.Equal(t, report.StatusFailed, rows[2].Status)
	assert.Contains(t, rows[2].Detail, "no product advertises")
}

func TestIngestAbortsWhenRegistrationDrifts(t *testing.T) {
	ctx := context.Background()
	d1, d2 := timeslice.New(2020, 1), timeslice.New(2020, 2)

	arch := newFakeArchive(t, "TESTD", "1km", d1, d2)
	mirror := t.TempDir()
	stageDatafile(t, mirror, arch.product, d1, 10, 50, 112, 8, 8, 0.5, flatData(8, 8, 10))
	// the second dekad was published on a drifted grid
	stageDatafile(t, mirror, arch.product, d2, 10, 50, 112, 8, 8, 0.9, flatData(8, 8, 10))

	sink := &captureSink{}
	asm := NewAssimilator(ctx, testConfig(t, d1, d2, sink))
	require.NoError(t, asm.Register(ctx, arch.product, &Mirror{Product: arch.product.Name, Path: mirror, Readonly: true}))
	require.NoError(t, asm.Prepare(ctx))

	err := asm.Ingest(ctx)
	assert.ErrorContains(t, err, "no longer aligns")

	require.Len(t, sink.writes, 1)
	rows := asm.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, report.StatusWritten, rows[0].Status)
	assert.Equal(t, report.StatusFailed, rows[1].Status)
	assert.Contains(t, rows[1].Detail, "no longer aligns")
}
