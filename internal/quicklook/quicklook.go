package quicklook

import (
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/rs/zerolog/log"

	"github.com/interob/coardas/internal/raster"
)

// Sink decorates a raster sink with a PNG quicklook per written file:
// the same grid the sink received, rendered as a grayscale ramp over
// the values present, nodata transparent. The quicklook sits next to
// the raster, extension swapped for .png.
type Sink struct {
	inner raster.Sink
}

func New(inner raster.Sink) *Sink {
	return &Sink{inner: inner}
}

func (s *Sink) WriteRaster(path string, dn []float64, width, height int, o raster.WriteOptions) error {
	if err := s.inner.WriteRaster(path, dn, width, height, o); err != nil {
		return err
	}
	png := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
	if err := render(png, dn, width, height, o.NoData); err != nil {
		// a missing quicklook never spoils the raster that was written
		log.Warn().Msgf("Failed to write quicklook %s: %v", png, err)
	}
	return nil
}

func render(path string, dn []float64, width, height int, nodata float64) error {
	lo, hi := dataRange(dn, nodata)
	dc := gg.NewContext(width, height)
	for i := 0; i < height; i++ {
		for j := 0; j < width; j++ {
			value := dn[i*width+j]
			if value == nodata {
				continue
			}
			gray := 0.5
			if hi > lo {
				gray = (value - lo) / (hi - lo)
			}
			dc.SetRGB(gray, gray, gray)
			dc.SetPixel(j, i)
		}
	}
	return dc.SavePNG(path)
}

func dataRange(dn []float64, nodata float64) (lo, hi float64) {
	first := true
	for _, v := range dn {
		if v == nodata {
			continue
		}
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
