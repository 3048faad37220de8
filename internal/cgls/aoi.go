package cgls

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// AOI is a geodetic box in decimal degrees: upper-left lon/lat,
// lower-right lon/lat. Latitude runs north to south, so ULLat is the
// larger latitude on a valid box.
type AOI struct {
	ULLon, ULLat, LRLon, LRLat float64
}

func (a AOI) Validate() error {
	if a.ULLon > a.LRLon {
		return fmt.Errorf("aoi west edge %v lies east of the east edge %v", a.ULLon, a.LRLon)
	}
	if a.ULLat < a.LRLat {
		return fmt.Errorf("aoi north edge %v lies south of the south edge %v", a.ULLat, a.LRLat)
	}
	return nil
}

// Bound converts to an orb bound (min = SW corner, max = NE corner).
func (a AOI) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{a.ULLon, a.LRLat}, Max: orb.Point{a.LRLon, a.ULLat}}
}

// Round8 returns the box quantized to 8 decimals, ties to even.
func (a AOI) Round8() AOI {
	return AOI{round8(a.ULLon), round8(a.ULLat), round8(a.LRLon), round8(a.LRLat)}
}

func (a AOI) String() string {
	return fmt.Sprintf("(%v, %v, %v, %v)", a.ULLon, a.ULLat, a.LRLon, a.LRLat)
}

func round8(v float64) float64 {
	return math.RoundToEven(v*1e8) / 1e8
}

// aoisEqual compares two boxes at 8-decimal precision.
func aoisEqual(a, b AOI) bool {
	return a.Round8() == b.Round8()
}

// nearestIndex finds the index of the axis value closest to x by
// absolute difference. On an exact midpoint the lower index wins.
func nearestIndex(axis []float64, x float64) int {
	best := 0
	bestDist := math.Abs(axis[0] - x)
	for i := 1; i < len(axis); i++ {
		if d := math.Abs(axis[i] - x); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func nearestValue(axis []float64, x float64) float64 {
	return axis[nearestIndex(axis, x)]
}
