package roistats

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"roistats/internal/models"
)

// makeVolumes builds a pair of co-registered volumes from parallel label and
// value slices, laid out as a flat 3D grid
func makeVolumes(t *testing.T, labels []int32, values []float64) (*models.ScalarVolume, *models.LabelVolume) {
	t.Helper()
	if len(labels) != len(values) {
		t.Fatalf("fixture error: %d labels vs %d values", len(labels), len(values))
	}

	md := &models.ScalarVolume{
		Data:   values,
		Width:  len(values),
		Height: 1,
		Depth:  1,
	}
	atlas := &models.LabelVolume{
		Data:   labels,
		Width:  len(labels),
		Height: 1,
		Depth:  1,
	}
	return md, atlas
}

// repeat builds n copies of value
func repeat(value float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return values
}

// repeatLabel builds n copies of label
func repeatLabel(label int32, n int) []int32 {
	labels := make([]int32, n)
	for i := range labels {
		labels[i] = label
	}
	return labels
}

// TestAllBackgroundVolume verifies that an atlas containing only background
// produces an explicitly empty, non-nil table
func TestAllBackgroundVolume(t *testing.T) {
	md, atlas := makeVolumes(t, repeatLabel(0, 100), repeat(1.5, 100))

	table, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table == nil {
		t.Fatal("expected an empty table, got nil")
	}
	if len(table) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(table))
	}
}

// TestUniformRegion verifies the exact statistics of a constant-valued region:
// 40 voxels of 2.0 with the default trim and scale must yield 2000.0 for every
// location statistic and zero spread
func TestUniformRegion(t *testing.T) {
	md, atlas := makeVolumes(t, repeatLabel(5, 40), repeat(2.0, 40))

	table, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table))
	}

	expected := models.RegionStats{
		RegionLabel: 5,
		NVox:        40,
		MeanMD:      2000.0,
		MedianMD:    2000.0,
		Q1:          2000.0,
		Q3:          2000.0,
		IQR:         0.0,
	}
	if table[0] != expected {
		t.Errorf("expected row %+v, got %+v", expected, table[0])
	}
}

// TestMinVoxelGate verifies that a region one voxel short of the threshold is
// dropped entirely while a region at the threshold is kept
func TestMinVoxelGate(t *testing.T) {
	labels := append(repeatLabel(1, 29), repeatLabel(2, 30)...)
	values := append(repeat(1.0, 29), repeat(2.0, 30)...)
	md, atlas := makeVolumes(t, labels, values)

	table, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table))
	}
	if table[0].RegionLabel != 2 {
		t.Errorf("expected only region 2 to qualify, got region %d", table[0].RegionLabel)
	}
}

// TestNonFiniteValuesExcluded verifies that NaN and infinite voxels neither
// count toward the voxel gate nor bias the statistics
func TestNonFiniteValuesExcluded(t *testing.T) {
	// 29 finite voxels plus enough non-finite ones to cross the gate if they
	// were (incorrectly) counted
	labels := repeatLabel(3, 35)
	values := repeat(1.0, 29)
	values = append(values, math.NaN(), math.NaN(), math.NaN(),
		math.Inf(1), math.Inf(-1), math.NaN())
	md, atlas := makeVolumes(t, labels, values)

	table, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("region with 29 finite voxels should be dropped, got %d rows", len(table))
	}

	// With one more finite voxel the region qualifies, and the non-finite
	// voxels must leave the statistics untouched
	labels = append(labels, 3)
	values = append(values, 1.0)
	md, atlas = makeVolumes(t, labels, values)

	table, err = NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table))
	}
	if table[0].NVox != 30 {
		t.Errorf("expected 30 finite voxels, got %d", table[0].NVox)
	}
	if table[0].MeanMD != 1000.0 || table[0].MedianMD != 1000.0 {
		t.Errorf("non-finite voxels biased the statistics: %+v", table[0])
	}
}

// TestOutlierSuppression verifies that winsorization pulls the mean of a
// contaminated region away from the naive mean and toward the median
func TestOutlierSuppression(t *testing.T) {
	values := append(repeat(1.0, 100), 50.0)
	labels := repeatLabel(7, 101)
	md, atlas := makeVolumes(t, labels, values)

	params := DefaultParams()
	params.Scale = 1 // keep raw units for direct comparison
	table, err := NewAnalyzer(params).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table))
	}
	row := table[0]

	naiveMean := (100*1.0 + 50.0) / 101
	if row.MeanMD == naiveMean {
		t.Error("winsorized mean should differ from the naive mean")
	}
	if math.Abs(row.MeanMD-row.MedianMD) >= math.Abs(naiveMean-row.MedianMD) {
		t.Errorf("winsorized mean %v should lie closer to the median %v than the naive mean %v",
			row.MeanMD, row.MedianMD, naiveMean)
	}
}

// TestTrimZeroReproducesNaiveStatistics verifies that trim = 0 makes
// winsorization the identity: the reported statistics must match the plain
// mean/median/quartiles of the finite values
func TestTrimZeroReproducesNaiveStatistics(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	// pad to pass the default voxel gate
	values = append(values, repeat(5.5, 20)...)
	labels := repeatLabel(4, len(values))
	md, atlas := makeVolumes(t, labels, values)

	params := DefaultParams()
	params.Trim = 0
	params.Scale = 1
	table, err := NewAnalyzer(params).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table))
	}
	row := table[0]

	// Reference values computed by hand for the 30-value sample:
	// ten values 1..10 plus twenty values of 5.5
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	expectedMean := sum / float64(len(values))

	if math.Abs(row.MeanMD-expectedMean) > tolerance {
		t.Errorf("mean: expected %v, got %v", expectedMean, row.MeanMD)
	}
	if math.Abs(row.MedianMD-5.5) > tolerance {
		t.Errorf("median: expected 5.5, got %v", row.MedianMD)
	}
	if row.Q1 > row.MedianMD || row.Q3 < row.MedianMD {
		t.Errorf("quartiles must bracket the median: Q1=%v median=%v Q3=%v",
			row.Q1, row.MedianMD, row.Q3)
	}
}

// TestRescalingLaw verifies that the scale factor multiplies all five
// statistics identically while leaving the label and voxel count alone
func TestRescalingLaw(t *testing.T) {
	values := []float64{0.8, 0.9, 1.0, 1.1, 1.2, 1.3}
	values = append(values, repeat(1.05, 30)...)
	labels := repeatLabel(9, len(values))
	md, atlas := makeVolumes(t, labels, values)

	raw := DefaultParams()
	raw.Scale = 1
	rawTable, err := NewAnalyzer(raw).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scaled := DefaultParams()
	scaled.Scale = 1000
	scaledTable, err := NewAnalyzer(scaled).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rawTable) != 1 || len(scaledTable) != 1 {
		t.Fatalf("expected 1 row in both tables, got %d and %d", len(rawTable), len(scaledTable))
	}

	rawRow, scaledRow := rawTable[0], scaledTable[0]
	if scaledRow.RegionLabel != rawRow.RegionLabel || scaledRow.NVox != rawRow.NVox {
		t.Error("scale must not touch the region label or voxel count")
	}

	pairs := []struct {
		name        string
		raw, scaled float64
	}{
		{"MeanMD", rawRow.MeanMD, scaledRow.MeanMD},
		{"MedianMD", rawRow.MedianMD, scaledRow.MedianMD},
		{"Q1", rawRow.Q1, scaledRow.Q1},
		{"Q3", rawRow.Q3, scaledRow.Q3},
		{"IQR", rawRow.IQR, scaledRow.IQR},
	}
	for _, pair := range pairs {
		if math.Abs(pair.scaled-pair.raw*1000) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", pair.name, pair.raw*1000, pair.scaled)
		}
	}
}

// TestTableOrdering verifies the descending-median sort with the ascending
// region label tie-break
func TestTableOrdering(t *testing.T) {
	var labels []int32
	var values []float64

	// Regions 1..4 with increasing uniform values; regions 6 and 5 share an
	// identical value distribution to exercise the tie-break
	for region := int32(1); region <= 4; region++ {
		labels = append(labels, repeatLabel(region, 30)...)
		values = append(values, repeat(float64(region), 30)...)
	}
	for _, region := range []int32{6, 5} {
		labels = append(labels, repeatLabel(region, 30)...)
		values = append(values, repeat(10.0, 30)...)
	}
	md, atlas := makeVolumes(t, labels, values)

	table, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(table))
	}

	for i := 1; i < len(table); i++ {
		if table[i-1].MedianMD < table[i].MedianMD {
			t.Errorf("rows %d and %d out of order: %v < %v",
				i-1, i, table[i-1].MedianMD, table[i].MedianMD)
		}
		if table[i-1].MedianMD == table[i].MedianMD &&
			table[i-1].RegionLabel >= table[i].RegionLabel {
			t.Errorf("tie at rows %d and %d not broken by ascending label: %d then %d",
				i-1, i, table[i-1].RegionLabel, table[i].RegionLabel)
		}
	}

	// The tied regions must come first (highest median), label 5 before 6
	if table[0].RegionLabel != 5 || table[1].RegionLabel != 6 {
		t.Errorf("expected tied regions 5, 6 at the top, got %d, %d",
			table[0].RegionLabel, table[1].RegionLabel)
	}
}

// TestRowInvariants checks Q1 <= median <= Q3 and IQR = Q3 - Q1 on a
// mixed-value dataset
func TestRowInvariants(t *testing.T) {
	var labels []int32
	var values []float64
	for region := int32(1); region <= 5; region++ {
		for i := 0; i < 50; i++ {
			labels = append(labels, region)
			// deterministic spread of values per region
			values = append(values, float64(region)+0.01*float64(i%17)-0.005*float64(i%7))
		}
	}
	md, atlas := makeVolumes(t, labels, values)

	table, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(table))
	}

	for _, row := range table {
		if row.RegionLabel == 0 {
			t.Error("background label must never appear in the table")
		}
		if row.Q1 > row.MedianMD || row.MedianMD > row.Q3 {
			t.Errorf("region %d: quartiles out of order: Q1=%v median=%v Q3=%v",
				row.RegionLabel, row.Q1, row.MedianMD, row.Q3)
		}
		if math.Abs(row.IQR-(row.Q3-row.Q1)) > 1e-9 {
			t.Errorf("region %d: IQR %v != Q3-Q1 %v", row.RegionLabel, row.IQR, row.Q3-row.Q1)
		}
		if row.IQR < 0 {
			t.Errorf("region %d: negative IQR %v", row.RegionLabel, row.IQR)
		}
	}
}

// TestDeterminismAcrossCores verifies that the table is bit-identical
// regardless of how many workers compute it
func TestDeterminismAcrossCores(t *testing.T) {
	var labels []int32
	var values []float64
	for region := int32(1); region <= 12; region++ {
		for i := 0; i < 40; i++ {
			labels = append(labels, region)
			values = append(values, math.Sin(float64(region)*100+float64(i))+2)
		}
	}
	md, atlas := makeVolumes(t, labels, values)

	var tables []models.ResultTable
	for _, cores := range []int{1, 2, 4, 16} {
		params := DefaultParams()
		params.NumCores = cores
		table, err := NewAnalyzer(params).ComputeTable(md, atlas)
		if err != nil {
			t.Fatalf("unexpected error with %d cores: %v", cores, err)
		}
		tables = append(tables, table)
	}

	for i := 1; i < len(tables); i++ {
		if !reflect.DeepEqual(tables[0], tables[i]) {
			t.Errorf("table computed with different core counts differs:\n%+v\nvs\n%+v",
				tables[0], tables[i])
		}
	}
}

// TestInputVolumesNotModified verifies that the analyzer never mutates its
// read-only inputs
func TestInputVolumesNotModified(t *testing.T) {
	values := append(repeat(1.0, 50), 99.0, math.NaN())
	labels := repeatLabel(1, len(values))
	md, atlas := makeVolumes(t, labels, values)

	originalValues := make([]float64, len(md.Data))
	copy(originalValues, md.Data)
	originalLabels := make([]int32, len(atlas.Data))
	copy(originalLabels, atlas.Data)

	if _, err := NewAnalyzer(nil).ComputeTable(md, atlas); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range originalValues {
		same := md.Data[i] == originalValues[i] ||
			(math.IsNaN(md.Data[i]) && math.IsNaN(originalValues[i]))
		if !same {
			t.Fatalf("measurement volume modified at voxel %d", i)
		}
	}
	for i := range originalLabels {
		if atlas.Data[i] != originalLabels[i] {
			t.Fatalf("label volume modified at voxel %d", i)
		}
	}
}

// TestShapeMismatch verifies the fail-fast behavior for volumes on different
// index spaces
func TestShapeMismatch(t *testing.T) {
	md := &models.ScalarVolume{Data: make([]float64, 8), Width: 2, Height: 2, Depth: 2}
	atlas := &models.LabelVolume{Data: make([]int32, 27), Width: 3, Height: 3, Depth: 3}

	_, err := NewAnalyzer(nil).ComputeTable(md, atlas)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

// TestInvalidParameters verifies the parameter domain checks
func TestInvalidParameters(t *testing.T) {
	md, atlas := makeVolumes(t, repeatLabel(1, 40), repeat(1.0, 40))

	testCases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"NegativeTrim", func(p *Params) { p.Trim = -0.01 }},
		{"TrimAtHalf", func(p *Params) { p.Trim = 0.5 }},
		{"TrimAboveHalf", func(p *Params) { p.Trim = 0.75 }},
		{"ZeroMinVoxels", func(p *Params) { p.MinVoxels = 0 }},
		{"NegativeMinVoxels", func(p *Params) { p.MinVoxels = -3 }},
		{"ZeroScale", func(p *Params) { p.Scale = 0 }},
		{"NegativeScale", func(p *Params) { p.Scale = -1000 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultParams()
			tc.mutate(params)

			_, err := NewAnalyzer(params).ComputeTable(md, atlas)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

// TestLabels verifies the label enumeration component on its own
func TestLabels(t *testing.T) {
	atlas := &models.LabelVolume{
		Data:   []int32{0, 3, 1, 0, 3, 7, 1, 1, 0},
		Width:  9,
		Height: 1,
		Depth:  1,
	}

	labels := Labels(atlas)
	expected := []int32{1, 3, 7}
	if !reflect.DeepEqual(labels, expected) {
		t.Errorf("expected %v, got %v", expected, labels)
	}

	empty := Labels(&models.LabelVolume{Data: []int32{0, 0, 0}, Width: 3, Height: 1, Depth: 1})
	if len(empty) != 0 {
		t.Errorf("all-background atlas should yield no labels, got %v", empty)
	}
}
