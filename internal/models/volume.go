package models

// ScalarVolume represents a 3D scalar measurement field, one value per voxel.
// Values may be NaN or infinite where a sample is invalid or missing.
type ScalarVolume struct {
	// Data is the 3D volume data as a 1D array in row-major order
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NumVoxels returns the total number of voxels in the volume.
func (v *ScalarVolume) NumVoxels() int {
	return v.Width * v.Height * v.Depth
}

// LabelVolume represents a 3D anatomical label field on the same grid as a
// ScalarVolume. Label 0 denotes background.
type LabelVolume struct {
	// Data is the 3D label data as a 1D array in row-major order
	Data []int32

	// Width, Height, Depth are the dimensions of the volume in voxels
	Width, Height, Depth int
}

// NumVoxels returns the total number of voxels in the volume.
func (v *LabelVolume) NumVoxels() int {
	return v.Width * v.Height * v.Depth
}

// SameShape reports whether the scalar and label volumes share an identical
// index space.
func SameShape(md *ScalarVolume, atlas *LabelVolume) bool {
	return md.Width == atlas.Width &&
		md.Height == atlas.Height &&
		md.Depth == atlas.Depth
}

// RegionStats is one output row of the aggregation: robust summary statistics
// for a single anatomical region.
type RegionStats struct {
	// RegionLabel is the region identifier from the label volume (never 0)
	RegionLabel int32

	// NVox is the number of finite voxels that contributed to the statistics,
	// counted before winsorization
	NVox int

	// MeanMD and MedianMD are the winsorized mean and median in rescaled units
	MeanMD   float64
	MedianMD float64

	// Q1 and Q3 are the 25th and 75th percentiles, IQR is Q3 minus Q1,
	// all in rescaled units
	Q1  float64
	Q3  float64
	IQR float64
}

// ResultTable is the ordered output of the aggregation, sorted by MedianMD
// descending with RegionLabel ascending as the tie-break. An empty table is a
// valid result, represented as a zero-length (never nil) slice.
type ResultTable []RegionStats

// Top returns the first n rows, or the whole table if it has fewer rows.
func (t ResultTable) Top(n int) ResultTable {
	if n > len(t) {
		n = len(t)
	}
	return t[:n]
}

// Bottom returns the last n rows, or the whole table if it has fewer rows.
func (t ResultTable) Bottom(n int) ResultTable {
	if n > len(t) {
		n = len(t)
	}
	return t[len(t)-n:]
}

// Medians returns the MedianMD column as a slice, in table order.
func (t ResultTable) Medians() []float64 {
	medians := make([]float64, len(t))
	for i, row := range t {
		medians[i] = row.MedianMD
	}
	return medians
}
