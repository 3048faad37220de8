package raster

import "fmt"

// DataType enumerates the pixel encodings this tool reads and writes.
type DataType int

const (
	Unknown DataType = iota
	Byte
	Int16
	UInt16
	Int32
	Float32
	Float64
)

func (t DataType) String() string {
	switch t {
	case Byte:
		return "Byte"
	case Int16:
		return "Int16"
	case UInt16:
		return "UInt16"
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// WriteOptions carries the georeferencing and encoding metadata of a
// single-band raster write. Scale and Offset describe how digital
// numbers map to physical values; they are recorded as metadata, never
// applied to the pixels.
type WriteOptions struct {
	Transform [6]float64
	DType     DataType
	NoData    float64
	Scale     float64
	Offset    float64
	Tags      map[string]string
}

// Sink writes one single-band 2D grid of digital numbers to a
// geo-referenced file. dn is row-major with len(dn) == width*height.
type Sink interface {
	WriteRaster(path string, dn []float64, width, height int, o WriteOptions) error
}
