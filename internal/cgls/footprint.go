package cgls

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// WriteFootprint stores a GeoJSON sidecar describing the session
// footprint: the box all products agreed on, with the requested box and
// the participating products as feature properties.
func WriteFootprint(path string, requested, aligned AOI, products []string, resolution string) error {
	feature := geojson.NewFeature(aligned.Bound().ToPolygon())
	feature.Properties = geojson.Properties{
		"products":      products,
		"resolution":    resolution,
		"requested_aoi": []float64{requested.ULLon, requested.ULLat, requested.LRLon, requested.LRLat},
		"aligned_aoi":   []float64{aligned.ULLon, aligned.ULLat, aligned.LRLon, aligned.LRLat},
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(feature)
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode footprint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write footprint %s: %w", path, err)
	}
	return nil
}
