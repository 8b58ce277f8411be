// Package roistats computes robust per-region summary statistics of a scalar
// volumetric measurement against a co-registered anatomical label volume.
//
// Given a measurement volume (for example a mean diffusivity map) and an
// integer atlas volume on the same voxel grid, the analyzer produces one row
// of winsorized summary statistics per qualifying region:
//
//  1. Enumerate the distinct non-background labels in the atlas
//  2. Gather the finite measurement values for each label
//  3. Drop regions with fewer finite voxels than the minimum sample size
//  4. Winsorize each region's values and compute mean, median, Q1, Q3 and IQR
//  5. Rescale the statistics for readability and sort the table by median
//
// Regions are independent of each other, so steps 2-4 run in parallel across
// the configured number of cores; the final sort is the only serialization
// point and makes the output deterministic regardless of core count.
package roistats

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"roistats/internal/models"
)

// Params holds the analysis parameters.
type Params struct {
	// MinVoxels is the minimum number of finite voxels a region must have to
	// appear in the result table. Regions below the threshold are dropped
	// entirely.
	MinVoxels int

	// Trim is the fraction of the sample winsorized on each side, in [0, 0.5).
	// A value of 0 disables winsorization.
	Trim float64

	// Scale is the factor applied to the computed statistics for readability.
	// The default of 1000 converts diffusivity from mm^2/s to 10^-3 mm^2/s.
	Scale float64

	// NumCores specifies how many CPU cores to use for parallel region
	// processing.
	NumCores int
}

// DefaultParams returns the analysis parameters used by the reference
// pipeline.
func DefaultParams() *Params {
	return &Params{
		MinVoxels: 30,
		Trim:      0.025,
		Scale:     1000,
		NumCores:  runtime.NumCPU(),
	}
}

// Analyzer computes per-region robust statistics tables.
type Analyzer struct {
	params *Params
}

// NewAnalyzer creates a new analyzer with the provided parameters. Passing
// nil uses DefaultParams.
func NewAnalyzer(params *Params) *Analyzer {
	if params == nil {
		params = DefaultParams()
	}
	return &Analyzer{params: params}
}

// validateParams checks the parameter domains before any computation so that
// malformed configuration fails fast instead of degrading the statistics.
func (a *Analyzer) validateParams() error {
	if a.params.MinVoxels < 1 {
		return fmt.Errorf("%w: min voxels must be >= 1, got %d",
			ErrInvalidParameter, a.params.MinVoxels)
	}
	if a.params.Trim < 0 || a.params.Trim >= 0.5 {
		return fmt.Errorf("%w: trim fraction must be in [0, 0.5), got %g",
			ErrInvalidParameter, a.params.Trim)
	}
	if a.params.Scale <= 0 {
		return fmt.Errorf("%w: scale must be positive, got %g",
			ErrInvalidParameter, a.params.Scale)
	}
	return nil
}

// ComputeTable builds the per-region statistics table for the given
// measurement and label volumes. The two volumes must share an identical
// shape. The input volumes are never modified, and the returned table is
// freshly allocated.
//
// The table contains one row per region whose finite-voxel count reaches
// MinVoxels, sorted by MedianMD descending with RegionLabel ascending as the
// tie-break. An empty (but non-nil) table is returned when no region
// qualifies; this is a valid result, not an error.
func (a *Analyzer) ComputeTable(md *models.ScalarVolume, atlas *models.LabelVolume) (models.ResultTable, error) {
	if err := a.validateParams(); err != nil {
		return nil, err
	}
	if !models.SameShape(md, atlas) {
		return nil, fmt.Errorf("%w: measurement %dx%dx%d vs labels %dx%dx%d",
			ErrShapeMismatch,
			md.Width, md.Height, md.Depth,
			atlas.Width, atlas.Height, atlas.Depth)
	}

	// Gather the finite values of every region in a single pass over the two
	// volumes, instead of rescanning the full volume once per label.
	buckets := bucketByLabel(md, atlas)

	labels := make([]int32, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	rows := a.computeRegionsInParallel(labels, buckets)

	// Sort by median descending; equal medians fall back to the region label
	// so identical inputs always produce an identical table.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MedianMD != rows[j].MedianMD {
			return rows[i].MedianMD > rows[j].MedianMD
		}
		return rows[i].RegionLabel < rows[j].RegionLabel
	})

	return rows, nil
}

// Labels returns the distinct non-background region labels present in the
// atlas, in increasing order. An all-background atlas yields an empty slice.
func Labels(atlas *models.LabelVolume) []int32 {
	seen := make(map[int32]struct{})
	for _, label := range atlas.Data {
		if label != 0 {
			seen[label] = struct{}{}
		}
	}

	labels := make([]int32, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// bucketByLabel groups the finite measurement values by region label in one
// pass over the volumes. Background voxels (label 0) and non-finite
// measurement values are discarded here, so a bucket's length is the region's
// finite-voxel count.
func bucketByLabel(md *models.ScalarVolume, atlas *models.LabelVolume) map[int32][]float64 {
	buckets := make(map[int32][]float64)
	for i, label := range atlas.Data {
		if label == 0 {
			continue
		}
		value := md.Data[i]
		if !isFinite(value) {
			continue
		}
		buckets[label] = append(buckets[label], value)
	}
	return buckets
}

// computeRegionsInParallel computes one statistics row per qualifying region,
// sharding the label list across the configured number of cores. The regions
// are fully independent, so workers only share the read-only buckets and a
// result channel.
func (a *Analyzer) computeRegionsInParallel(labels []int32, buckets map[int32][]float64) models.ResultTable {
	numCores := a.params.NumCores
	if numCores < 1 {
		numCores = 1
	}
	if numCores > len(labels) {
		numCores = len(labels)
	}

	rows := make(models.ResultTable, 0, len(labels))
	if len(labels) == 0 {
		return rows
	}

	rowChan := make(chan models.RegionStats, len(labels))
	var wg sync.WaitGroup

	// Divide the labels among the available cores
	labelsPerCore := (len(labels) + numCores - 1) / numCores
	for c := 0; c < numCores; c++ {
		wg.Add(1)

		go func(coreID int) {
			defer wg.Done()

			start := coreID * labelsPerCore
			end := (coreID + 1) * labelsPerCore
			if end > len(labels) {
				end = len(labels)
			}

			for _, label := range labels[start:end] {
				values := buckets[label]
				if len(values) < a.params.MinVoxels {
					continue
				}
				rowChan <- a.computeRegion(label, values)
			}
		}(c)
	}

	wg.Wait()
	close(rowChan)

	for row := range rowChan {
		rows = append(rows, row)
	}
	return rows
}

// computeRegion computes the winsorized statistics row for a single region
// from its finite measurement values. The input slice is not modified.
func (a *Analyzer) computeRegion(label int32, values []float64) models.RegionStats {
	// Winsorization and the percentile rule both operate on order statistics,
	// so the statistics of the winsorized sample can be computed on a sorted
	// copy: clamping the tails of a sorted sample keeps it sorted.
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	winsorize(sorted, a.params.Trim)

	mean := stat.Mean(sorted, nil)
	median := percentile(sorted, 50)
	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)

	row := models.RegionStats{
		RegionLabel: label,
		NVox:        len(values),
		MeanMD:      mean,
		MedianMD:    median,
		Q1:          q1,
		Q3:          q3,
		IQR:         q3 - q1,
	}
	a.rescale(&row)
	return row
}

// rescale applies the configured unit scale to the statistics of a row. The
// region label and voxel count are left untouched.
func (a *Analyzer) rescale(row *models.RegionStats) {
	row.MeanMD *= a.params.Scale
	row.MedianMD *= a.params.Scale
	row.Q1 *= a.params.Scale
	row.Q3 *= a.params.Scale
	row.IQR *= a.params.Scale
}
