package cgls

import (
	"fmt"

	"github.com/interob/coardas/internal/raster"
	"github.com/interob/coardas/internal/timeslice"
)

// Nominal resolution labels mapped to actual pixels per degree on the
// CGLS global grids.
var resolutionPixelsPerDegree = map[string]int{"1km": 112, "300m": 336}

// PixelsPerDegree translates a nominal resolution label ("1km", "300m")
// into pixels per degree. Unknown labels are an error.
func PixelsPerDegree(resolution string) (int, error) {
	ppd, ok := resolutionPixelsPerDegree[resolution]
	if !ok {
		return 0, fmt.Errorf("unknown resolution label %q", resolution)
	}
	return ppd, nil
}

// Resolutions lists the supported nominal resolution labels.
func Resolutions() []string {
	return []string{"1km", "300m"}
}

// Product describes one dataset in the Copernicus Global Land Service
// (CGLS) programme: where its manifest lives, how advertised datafiles
// are laid out remotely and locally, and the grid it is published on.
type Product struct {
	// Name is the catalog identifier, e.g. CGLS_NDVI300_GLOBE_OLCI_V201.
	Name string
	// Variable is the dataset variable holding the index values.
	Variable string
	// ManifestURL locates the manifest listing all advertised datafiles.
	ManifestURL string
	// ManifestPattern is the datafile path pattern as it appears in
	// manifest entries, relative to the datapool root.
	ManifestPattern string
	// DatafilePattern is the local (mirror/scratch) layout for datafiles.
	DatafilePattern string
	// MetadataPattern locates the product description XML alongside a
	// datafile.
	MetadataPattern string
	// Resolution is the nominal resolution label of the product grid.
	Resolution string
}

func (p *Product) String() string {
	return p.Name
}

// DatafileName resolves the local datafile path for a dekad.
func (p *Product) DatafileName(d timeslice.Dekad) string {
	return d.Resolve(p.DatafilePattern, nil)
}

// GetTranslator builds the translator that assimilates one of the
// product's datafiles into a composite series at targetResolution. The
// datafile provides the grid registration: axes, geotransform and the
// variable's packing attributes. A product already at the target
// resolution translates by subsetting; a finer product resamples.
func (p *Product) GetTranslator(datafile, targetResolution string, sink raster.Sink) (Translator, error) {
	nativePpd, err := PixelsPerDegree(p.Resolution)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", p.Name, err)
	}
	targetPpd, err := PixelsPerDegree(targetResolution)
	if err != nil {
		return nil, err
	}
	if nativePpd%targetPpd != 0 {
		return nil, fmt.Errorf("cannot assimilate %s pixels into a %s composite: %d ppd is not a multiple of %d ppd",
			p.Resolution, targetResolution, nativePpd, targetPpd)
	}

	nc, err := raster.OpenNetCDF(datafile)
	if err != nil {
		return nil, fmt.Errorf("failed to open datafile %s: %w", datafile, err)
	}
	defer nc.Close()

	gt, err := nc.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to read grid registration from %s: %w", datafile, err)
	}
	lats, err := axisValues(nc, "lat", "latitude", "y")
	if err != nil {
		return nil, err
	}
	lons, err := axisValues(nc, "lon", "longitude", "x")
	if err != nil {
		return nil, err
	}
	scale, err := nc.AttrFloat(p.Variable, "scale_factor")
	if err != nil {
		return nil, err
	}
	offset, err := nc.AttrFloat(p.Variable, "add_offset")
	if err != nil {
		return nil, err
	}
	fill, err := nc.AttrFloat(p.Variable, "_FillValue")
	if err != nil {
		return nil, err
	}
	validRange, err := nc.AttrFloats(p.Variable, "valid_range")
	if err != nil {
		return nil, err
	}
	if len(validRange) != 2 {
		return nil, fmt.Errorf("variable %s: valid_range holds %d values, want 2", p.Variable, len(validRange))
	}
	dtype, err := nc.VarType(p.Variable)
	if err != nil {
		return nil, err
	}
	shape := nc.VarShape(p.Variable)
	if len(shape) < 2 {
		return nil, fmt.Errorf("variable %s: expected at least 2 dimensions, got %d", p.Variable, len(shape))
	}

	base := translatorBase{
		gt:         gt,
		rows:       shape[len(shape)-2],
		cols:       shape[len(shape)-1],
		lats:       lats,
		lons:       lons,
		nativePpd:  nativePpd,
		scale:      scale,
		offset:     offset,
		fill:       fill,
		validRange: [2]float64{validRange[0], validRange[1]},
		dtype:      dtype,
		sink:       sink,
	}
	if nativePpd == targetPpd {
		return &SubsetTranslator{base}, nil
	}
	return &ResampleTranslator{translatorBase: base, targetPpd: targetPpd}, nil
}

func axisValues(nc *raster.NetCDF, names ...string) ([]float64, error) {
	for _, name := range names {
		if nc.HasVariable(name) {
			return nc.Axis(name)
		}
	}
	return nil, fmt.Errorf("%s declares no axis variable among %v", nc.Path(), names)
}

const manifestBaseURL = "https://land.copernicus.vgt.vito.be/manifest"

// Catalog holds the CGLS products this tool knows how to assimilate, in
// archive order: recent sensors first, predecessors after.
var Catalog = []*Product{
	{
		Name:            "CGLS_NDVI300_GLOBE_OLCI_V201",
		Variable:        "NDVI",
		ManifestURL:     manifestBaseURL + "/ndvi300_v2_333m/manifest_cgls_ndvi300_v2_333m_latest.txt",
		ManifestPattern: "$(yyyy)/$(mm)/$(dd)/NDVI300_$(yyyy)$(mm)$(dd)0000_GLOBE_OLCI_V2.0.1/c_gls_NDVI300_$(yyyy)$(mm)$(dd)0000_GLOBE_OLCI_V2.0.1.nc",
		DatafilePattern: "$(yyyy)/$(yyyy)$(mm)$(dd)/c_gls_NDVI300_$(yyyy)$(mm)$(dd)0000_GLOBE_OLCI_V2.0.1.nc",
		MetadataPattern: "$(yyyy)/$(mm)/$(dd)/NDVI300_$(yyyy)$(mm)$(dd)0000_GLOBE_OLCI_V2.0.1/c_gls_NDVI300_PROD-DESC_$(yyyy)$(mm)$(dd)0000_GLOBE_OLCI_V2.0.1.xml",
		Resolution:      "300m",
	},
	{
		Name:            "CGLS_NDVI1K_GLOBE_PROBAV_V301",
		Variable:        "NDVI",
		ManifestURL:     manifestBaseURL + "/ndvi_v3_1km/manifest_cgls_ndvi_v3_1km_latest.txt",
		ManifestPattern: "$(yyyy)/$(mm)/$(dd)/NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_PROBAV_V3.0.1/c_gls_NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_PROBAV_V3.0.1.nc",
		DatafilePattern: "$(yyyy)/$(yyyy)$(mm)$(dd)/c_gls_NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_PROBAV_V3.0.1.nc",
		MetadataPattern: "$(yyyy)/$(mm)/$(dd)/NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_PROBAV_V3.0.1/c_gls_NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_PROBAV_V3.0.1.xml",
		Resolution:      "1km",
	},
	{
		Name:            "CGLS_NDVI1K_GLOBE_VGT_V301",
		Variable:        "NDVI",
		ManifestURL:     manifestBaseURL + "/ndvi_v3_1km/manifest_cgls_ndvi_v3_1km_latest.txt",
		ManifestPattern: "$(yyyy)/$(mm)/$(dd)/NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_VGT_V3.0.1/c_gls_NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_VGT_V3.0.1.nc",
		DatafilePattern: "$(yyyy)/$(yyyy)$(mm)$(dd)/c_gls_NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_VGT_V3.0.1.nc",
		MetadataPattern: "$(yyyy)/$(mm)/$(dd)/NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_VGT_V3.0.1/c_gls_NDVI_$(yyyy)$(mm)$(dd)0000_GLOBE_VGT_V3.0.1.xml",
		Resolution:      "1km",
	},
}

// ProductByName finds a catalog product by its identifier.
func ProductByName(name string) (*Product, error) {
	for _, p := range Catalog {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown product %q", name)
}

// ProductNames lists the catalog identifiers in archive order.
func ProductNames() []string {
	names := make([]string, len(Catalog))
	for i, p := range Catalog {
		names[i] = p.Name
	}
	return names
}
