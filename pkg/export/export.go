// Package export serializes result tables for human and downstream
// consumption: a delimited text file with the fixed seven-column schema, and
// a compact console summary of the highest-median regions.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"roistats/internal/models"
)

// Header is the fixed column schema of the exported table.
var Header = []string{"RegionLabel", "n_vox", "MeanMD", "MedianMD", "Q1", "Q3", "IQR"}

// WriteCSV writes the table to path as comma-separated values with the fixed
// seven-column header. An empty table produces a file containing only the
// header so downstream consumers always see the schema.
func WriteCSV(table models.ResultTable, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("failed to write table header: %w", err)
	}

	for _, row := range table {
		record := []string{
			strconv.FormatInt(int64(row.RegionLabel), 10),
			strconv.Itoa(row.NVox),
			formatStat(row.MeanMD),
			formatStat(row.MedianMD),
			formatStat(row.Q1),
			formatStat(row.Q3),
			formatStat(row.IQR),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write table row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// formatStat renders a statistic as a plain decimal with the shortest
// representation that round-trips.
func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PrintTopN writes a tab-aligned summary of the n highest-median regions,
// mirroring the console output of the reference pipeline.
func PrintTopN(w io.Writer, table models.ResultTable, n int) {
	top := table.Top(n)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RegionLabel\tn_vox\tMedianMD\tIQR")
	for _, row := range top {
		fmt.Fprintf(tw, "%d\t%d\t%.6f\t%.6f\n", row.RegionLabel, row.NVox, row.MedianMD, row.IQR)
	}
	tw.Flush()
}
