package cgls

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"github.com/interob/coardas/internal/raster"
)

// A resampled cell is only trusted when at least this many of the finer
// pixels under it carried a valid observation.
const minValidPixels = 5

// Translator cuts an AOI out of a product datafile and writes it to the
// composite series grid. Implementations snap requested boxes onto
// pixel centers so that repeated cuts from drifting archives land on
// the exact same raster.
type Translator interface {
	// AlignedAOI snaps the requested box onto the translator's output
	// grid and reports the box of pixel centers it would cut.
	AlignedAOI(box AOI) (AOI, error)
	// Translate cuts box out of datafile and writes outputPath. The box
	// must already be aligned, see AlignedAOI.
	Translate(datafile, variable string, box AOI, outputPath string) error
}

// translatorBase carries the grid registration read from a product
// datafile: the geotransform, the axes of pixel centers and the
// variable's packing attributes.
type translatorBase struct {
	gt         [6]float64
	rows, cols int
	lats, lons []float64
	nativePpd  int
	scale      float64
	offset     float64
	fill       float64
	validRange [2]float64
	dtype      raster.DataType
	sink       raster.Sink
}

func (t *translatorBase) checkWithin(box AOI) error {
	if err := box.Validate(); err != nil {
		return err
	}
	coverage := orb.Bound{
		Min: orb.Point{t.lons[0], t.lats[len(t.lats)-1]},
		Max: orb.Point{t.lons[len(t.lons)-1], t.lats[0]},
	}
	if !coverage.Contains(orb.Point{box.ULLon, box.ULLat}) || !coverage.Contains(orb.Point{box.LRLon, box.LRLat}) {
		return fmt.Errorf("aoi %s exceeds the dataset coverage lon [%v, %v] lat [%v, %v]",
			box, coverage.Min[0], coverage.Max[0], coverage.Min[1], coverage.Max[1])
	}
	return nil
}

func (t *translatorBase) maskInvalid(dn []float64) {
	for i, v := range dn {
		if v < t.validRange[0] || v > t.validRange[1] {
			dn[i] = t.fill
		}
	}
}

// outputTransform builds the geotransform of a translated raster: box
// holds pixel centers, so the origin backs off half a pixel, and the
// pixel steps derive from the nominal resolution rather than the
// source registration. Coefficients are quantized to 8 decimals.
func (t *translatorBase) outputTransform(box AOI, ppd int) [6]float64 {
	px := 1.0 / float64(ppd)
	return [6]float64{
		round8(box.ULLon - px/2),
		round8(signOf(t.gt[1]) * px),
		0,
		round8(box.ULLat + px/2),
		0,
		round8(signOf(t.gt[5]) * px),
	}
}

func signOf(v float64) float64 {
	if v >= 0 {
		return 1
	}
	return -1
}

// SubsetTranslator serves products already on the composite grid: it
// cuts the window of nearest pixel centers without resampling.
type SubsetTranslator struct {
	translatorBase
}

func (t *SubsetTranslator) AlignedAOI(box AOI) (AOI, error) {
	if err := t.checkWithin(box); err != nil {
		return AOI{}, err
	}
	return AOI{
		ULLon: nearestValue(t.lons, box.ULLon),
		ULLat: nearestValue(t.lats, box.ULLat),
		LRLon: nearestValue(t.lons, box.LRLon),
		LRLat: nearestValue(t.lats, box.LRLat),
	}, nil
}

func (t *SubsetTranslator) Translate(datafile, variable string, box AOI, outputPath string) error {
	w0 := nearestIndex(t.lons, box.ULLon)
	w1 := nearestIndex(t.lats, box.ULLat)
	w2 := nearestIndex(t.lons, box.LRLon)
	w3 := nearestIndex(t.lats, box.LRLat)
	width, height := w2-w0, w3-w1
	if width <= 0 || height <= 0 {
		return fmt.Errorf("aoi %s maps to an empty %dx%d window of %s", box, width, height, datafile)
	}

	nc, err := raster.OpenNetCDF(datafile)
	if err != nil {
		return fmt.Errorf("failed to open datafile %s: %w", datafile, err)
	}
	defer nc.Close()

	dn, err := nc.ReadWindow(variable, w1, w0, height, width)
	if err != nil {
		return err
	}
	t.maskInvalid(dn)

	log.Info().Msgf("Writing: %s...", outputPath)
	return t.sink.WriteRaster(outputPath, dn, width, height, raster.WriteOptions{
		Transform: t.outputTransform(box, t.nativePpd),
		DType:     t.dtype,
		NoData:    t.fill,
		Scale:     t.scale,
		Offset:    t.offset,
	})
}

// ResampleTranslator serves products on a finer grid than the
// composite: it aggregates blocks of finer pixels into composite cells
// by averaging the valid observations under each cell.
type ResampleTranslator struct {
	translatorBase
	targetPpd int
}

// AlignedAOI snaps in two stages. The requested box first lands on a
// virtual axis laid out at the target resolution over the source
// registration, then on the nearest source pixel centers. Snapping via
// the virtual axis keeps coarse and fine archives agreeing on where a
// composite cell starts.
func (t *ResampleTranslator) AlignedAOI(box AOI) (AOI, error) {
	if err := t.checkWithin(box); err != nil {
		return AOI{}, err
	}
	latTarget, lonTarget := t.virtualAxes()
	return AOI{
		ULLon: nearestValue(t.lons, nearestValue(lonTarget, box.ULLon)),
		ULLat: nearestValue(t.lats, nearestValue(latTarget, box.ULLat)),
		LRLon: nearestValue(t.lons, nearestValue(lonTarget, box.LRLon)),
		LRLat: nearestValue(t.lats, nearestValue(latTarget, box.LRLat)),
	}, nil
}

func (t *ResampleTranslator) virtualAxes() (latTarget, lonTarget []float64) {
	dy := math.Round(float64(t.rows) * signOf(t.gt[5]) / float64(t.nativePpd))
	dx := math.Round(float64(t.cols) * signOf(t.gt[1]) / float64(t.nativePpd))
	latTarget = axisPoints(t.gt[3], int(math.Abs(dy))*t.targetPpd, signOf(t.gt[5])/float64(t.targetPpd))
	lonTarget = axisPoints(t.gt[0], int(math.Abs(dx))*t.targetPpd, signOf(t.gt[1])/float64(t.targetPpd))
	return latTarget, lonTarget
}

func axisPoints(origin float64, count int, step float64) []float64 {
	pts := make([]float64, count)
	for i := range pts {
		pts[i] = origin + float64(i)*step
	}
	return pts
}

func (t *ResampleTranslator) Translate(datafile, variable string, box AOI, outputPath string) error {
	log.Info().Msgf("Translating: %s...", datafile)

	aoi, err := t.AlignedAOI(box)
	if err != nil {
		return err
	}
	i0 := nearestIndex(t.lats, aoi.ULLat)
	i1 := nearestIndex(t.lats, aoi.LRLat)
	j0 := nearestIndex(t.lons, aoi.ULLon)
	j1 := nearestIndex(t.lons, aoi.LRLon)
	// both end centers belong to the cut
	width, height := j1-j0+1, i1-i0+1
	if width <= 0 || height <= 0 {
		return fmt.Errorf("aoi %s maps to an empty %dx%d window of %s", box, width, height, datafile)
	}

	nc, err := raster.OpenNetCDF(datafile)
	if err != nil {
		return fmt.Errorf("failed to open datafile %s: %w", datafile, err)
	}
	defer nc.Close()

	dn, err := nc.ReadWindow(variable, i0, j0, height, width)
	if err != nil {
		return err
	}

	factor := t.nativePpd / t.targetPpd
	out, outW, outH := t.coarsenMean(dn, width, height, factor)

	log.Info().Msgf("Writing: %s...", outputPath)
	return t.sink.WriteRaster(outputPath, out, outW, outH, raster.WriteOptions{
		Transform: t.outputTransform(box, t.targetPpd),
		DType:     raster.Byte,
		NoData:    t.fill,
		Scale:     t.scale,
		Offset:    t.offset,
	})
}

// coarsenMean aggregates factor x factor blocks into single cells,
// trimming trailing pixels that do not fill a whole block. A cell is
// the mean of the valid observations under it, rounded ties to even,
// or the fill value when fewer than minValidPixels are valid.
func (t *ResampleTranslator) coarsenMean(dn []float64, width, height, factor int) ([]float64, int, int) {
	outW, outH := width/factor, height/factor
	out := make([]float64, outW*outH)
	for r := 0; r < outH; r++ {
		for c := 0; c < outW; c++ {
			var sum float64
			var count int
			for i := 0; i < factor; i++ {
				row := (r*factor + i) * width
				for j := 0; j < factor; j++ {
					v := dn[row+c*factor+j]
					if v >= t.validRange[0] && v <= t.validRange[1] {
						sum += v
						count++
					}
				}
			}
			if count >= minValidPixels {
				out[r*outW+c] = math.RoundToEven(sum / float64(count))
			} else {
				out[r*outW+c] = t.fill
			}
		}
	}
	return out, outW, outH
}
