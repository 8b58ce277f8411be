// Package charts renders the presentation artifacts of the analysis: bar
// charts of the highest- and lowest-median regions and a histogram of the
// per-region median distribution, all as PNG images.
package charts

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/gonum/stat"

	"roistats/internal/models"
)

// Renderer produces chart images from a result table.
type Renderer struct {
	// table is the per-region statistics table, already sorted by median
	table models.ResultTable

	// topN is how many regions the top and bottom charts show
	topN int
}

// NewRenderer creates a chart renderer for the given table. topN controls how
// many regions appear in the top and bottom charts.
func NewRenderer(table models.ResultTable, topN int) *Renderer {
	return &Renderer{
		table: table,
		topN:  topN,
	}
}

// SaveTopChart renders a bar chart of the topN regions with the highest
// median measurement.
func (r *Renderer) SaveTopChart(path string) error {
	rows := r.table.Top(r.topN)
	title := fmt.Sprintf("Top %d Regions by Median MD", len(rows))
	return r.saveBarChart(rows, title, path)
}

// SaveBottomChart renders a bar chart of the topN regions with the lowest
// median measurement.
func (r *Renderer) SaveBottomChart(path string) error {
	rows := r.table.Bottom(r.topN)
	title := fmt.Sprintf("Bottom %d Regions by Median MD", len(rows))
	return r.saveBarChart(rows, title, path)
}

// saveBarChart renders one bar per region, labeled with the region id and
// sized by its median.
func (r *Renderer) saveBarChart(rows models.ResultTable, title, path string) error {
	if len(rows) == 0 {
		return fmt.Errorf("no regions to plot")
	}

	bars := make([]chart.Value, len(rows))
	for i, row := range rows {
		bars[i] = chart.Value{
			Label: strconv.FormatInt(int64(row.RegionLabel), 10),
			Value: row.MedianMD,
		}
	}

	graph := chart.BarChart{
		Title:    title,
		Height:   512,
		Width:    chartWidth(len(bars)),
		BarWidth: 24,
		XAxis: chart.Style{
			TextRotationDegrees: 90,
		},
		YAxis: chart.YAxis{
			Name: "Median MD (x10^-3 mm^2/s)",
		},
		Bars: bars,
	}

	return renderToFile(graph.Render, path)
}

// SaveHistogram renders the distribution of per-region medians across the
// whole table, using the given number of equal-width bins.
func (r *Renderer) SaveHistogram(path string, bins int) error {
	if len(r.table) == 0 {
		return fmt.Errorf("no regions to plot")
	}
	if bins < 1 {
		return fmt.Errorf("histogram needs at least one bin, got %d", bins)
	}

	medians := r.table.Medians()
	sort.Float64s(medians)

	counts, dividers := binMedians(medians, bins)

	bars := make([]chart.Value, len(counts))
	for i, count := range counts {
		center := (dividers[i] + dividers[i+1]) / 2
		bars[i] = chart.Value{
			Label: strconv.FormatFloat(center, 'f', 2, 64),
			Value: count,
		}
	}

	graph := chart.BarChart{
		Title:    "Distribution of Region Median MD",
		Height:   400,
		Width:    chartWidth(len(bars)),
		BarWidth: 16,
		XAxis: chart.Style{
			TextRotationDegrees: 90,
		},
		YAxis: chart.YAxis{
			Name: "Number of Regions",
		},
		Bars: bars,
	}

	return renderToFile(graph.Render, path)
}

// binMedians counts the sorted medians into equal-width bins spanning their
// range. The upper edge is nudged outward so the maximum falls inside the
// last bin, and a constant distribution is widened to a unit range.
func binMedians(sorted []float64, bins int) (counts, dividers []float64) {
	lo := sorted[0]
	hi := sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	span := hi - lo
	hi += span * 1e-9

	dividers = make([]float64, bins+1)
	for i := range dividers {
		dividers[i] = lo + float64(i)*(hi-lo)/float64(bins)
	}
	dividers[bins] = hi

	counts = stat.Histogram(nil, dividers, sorted, nil)
	return counts, dividers
}

// chartWidth sizes a bar chart so every bar and its spacing fit.
func chartWidth(bars int) int {
	width := bars*40 + 120
	if width < 512 {
		width = 512
	}
	return width
}

// renderToFile renders a chart to a PNG file.
func renderToFile(render func(chart.RendererProvider, io.Writer) error, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()

	if err := render(chart.PNG, f); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
