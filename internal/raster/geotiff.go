package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// GeoTIFF is the production Sink: single-band LZW-compressed GeoTIFFs
// tiled 256x256, georeferenced in EPSG:4326.
type GeoTIFF struct{}

func NewGeoTIFF() *GeoTIFF {
	registerOnce.Do(godal.RegisterAll)
	return &GeoTIFF{}
}

func (*GeoTIFF) WriteRaster(path string, dn []float64, width, height int, o WriteOptions) error {
	if len(dn) != width*height {
		return fmt.Errorf("raster buffer holds %d values for a %dx%d grid", len(dn), width, height)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	gdt, err := gdalType(o.DType)
	if err != nil {
		return err
	}
	ds, err := godal.Create(godal.GTiff, path, 1, gdt, width, height,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES", "BLOCKXSIZE=256", "BLOCKYSIZE=256"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(o.Transform); err != nil {
		return fmt.Errorf("failed to set geotransform on %s: %w", path, err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("failed to build the EPSG:4326 reference: %w", err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference on %s: %w", path, err)
	}
	for k, v := range o.Tags {
		if err := ds.SetMetadata(k, v); err != nil {
			return fmt.Errorf("failed to tag %s on %s: %w", k, path, err)
		}
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(o.NoData); err != nil {
		return fmt.Errorf("failed to set nodata on %s: %w", path, err)
	}
	if o.Scale != 0 {
		if err := band.SetScaleOffset(o.Scale, o.Offset); err != nil {
			return fmt.Errorf("failed to set scale/offset on %s: %w", path, err)
		}
	}
	if err := writeBand(band, dn, width, height, o.DType); err != nil {
		return fmt.Errorf("failed to write pixels to %s: %w", path, err)
	}
	return nil
}

func writeBand(band godal.Band, dn []float64, width, height int, t DataType) error {
	switch t {
	case Byte:
		buf := make([]uint8, len(dn))
		for i, v := range dn {
			buf[i] = uint8(clamp(v, 0, math.MaxUint8))
		}
		return band.Write(0, 0, buf, width, height)
	case Int16:
		buf := make([]int16, len(dn))
		for i, v := range dn {
			buf[i] = int16(clamp(v, math.MinInt16, math.MaxInt16))
		}
		return band.Write(0, 0, buf, width, height)
	case UInt16:
		buf := make([]uint16, len(dn))
		for i, v := range dn {
			buf[i] = uint16(clamp(v, 0, math.MaxUint16))
		}
		return band.Write(0, 0, buf, width, height)
	case Int32:
		buf := make([]int32, len(dn))
		for i, v := range dn {
			buf[i] = int32(clamp(v, math.MinInt32, math.MaxInt32))
		}
		return band.Write(0, 0, buf, width, height)
	case Float32:
		buf := make([]float32, len(dn))
		for i, v := range dn {
			buf[i] = float32(v)
		}
		return band.Write(0, 0, buf, width, height)
	case Float64:
		return band.Write(0, 0, dn, width, height)
	}
	return fmt.Errorf("unsupported output type %s", t)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func gdalType(t DataType) (godal.DataType, error) {
	switch t {
	case Byte:
		return godal.Byte, nil
	case Int16:
		return godal.Int16, nil
	case UInt16:
		return godal.UInt16, nil
	case Int32:
		return godal.Int32, nil
	case Float32:
		return godal.Float32, nil
	case Float64:
		return godal.Float64, nil
	}
	return godal.Unknown, fmt.Errorf("unsupported output type %s", t)
}
