package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"roistats/pkg/charts"
	"roistats/pkg/config"
	"roistats/pkg/export"
	"roistats/pkg/nifti"
	"roistats/pkg/roistats"
)

func main() {
	// Parse command line arguments
	mdPath := flag.String("md", "", "NIfTI file with the scalar measurement volume (e.g. mean diffusivity)")
	atlasPath := flag.String("atlas", "", "NIfTI file with the anatomical label volume")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	outputPath := flag.String("output", "", "Output CSV filename")
	chartPrefix := flag.String("charts-prefix", "", "Filename prefix for the rendered charts")
	noCharts := flag.Bool("no-charts", false, "Skip chart rendering")
	topN := flag.Int("topn", 0, "Number of regions in the top/bottom charts and console summary")
	minVoxels := flag.Int("min-voxels", 0, "Minimum finite voxels for a region to be reported")
	trim := flag.Float64("trim", -1, "Winsorization fraction per tail, in [0, 0.5)")
	scale := flag.Float64("scale", 0, "Unit scale applied to the reported statistics")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: all available)")
	debug := flag.Bool("debug", false, "Enable development logging")
	flag.Parse()

	// Set up our logger
	var zapLogger *zap.Logger
	var err error
	if *debug {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Printf("can't initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Command line flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "md":
			cfg.Input.MDPath = *mdPath
		case "atlas":
			cfg.Input.AtlasPath = *atlasPath
		case "output":
			cfg.Output.CSVPath = *outputPath
		case "charts-prefix":
			cfg.Output.ChartPrefix = *chartPrefix
		case "no-charts":
			cfg.Output.RenderCharts = !*noCharts
		case "topn":
			cfg.Output.TopN = *topN
		case "min-voxels":
			cfg.Analysis.MinVoxels = *minVoxels
		case "trim":
			cfg.Analysis.Trim = *trim
		case "scale":
			cfg.Analysis.Scale = *scale
		case "cores":
			cfg.Analysis.NumCores = *numCores
		}
	})

	if cfg.Input.MDPath == "" || cfg.Input.AtlasPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load the two co-registered volumes
	log.Infow("loading volumes", "md", cfg.Input.MDPath, "atlas", cfg.Input.AtlasPath)
	md, err := nifti.LoadScalarVolume(cfg.Input.MDPath)
	if err != nil {
		log.Fatalf("failed to load measurement volume: %v", err)
	}
	atlas, err := nifti.LoadLabelVolume(cfg.Input.AtlasPath)
	if err != nil {
		log.Fatalf("failed to load label volume: %v", err)
	}
	log.Infow("volumes loaded",
		"width", md.Width, "height", md.Height, "depth", md.Depth)

	// Build the per-region table
	params := &roistats.Params{
		MinVoxels: cfg.Analysis.MinVoxels,
		Trim:      cfg.Analysis.Trim,
		Scale:     cfg.Analysis.Scale,
		NumCores:  cfg.Analysis.NumCores,
	}
	analyzer := roistats.NewAnalyzer(params)

	startTime := time.Now()
	table, err := analyzer.ComputeTable(md, atlas)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	log.Infow("analysis completed",
		"regions", len(table),
		"elapsed", time.Since(startTime).String())

	if len(table) == 0 {
		log.Warn("no regions passed QC (check atlas/MD and thresholds)")
		return
	}

	// Save the full table
	if err := export.WriteCSV(table, cfg.Output.CSVPath); err != nil {
		log.Fatalf("failed to write table: %v", err)
	}
	log.Infof("saved table: %s", cfg.Output.CSVPath)

	// Show top rows in console
	fmt.Printf("\nTop %d ROIs by Median MD (x10^-3 mm^2/s):\n", min(cfg.Output.TopN, len(table)))
	export.PrintTopN(os.Stdout, table, cfg.Output.TopN)

	// Render charts (Top/Bottom N + histogram)
	if cfg.Output.RenderCharts {
		renderer := charts.NewRenderer(table, cfg.Output.TopN)

		topPath := fmt.Sprintf("%s_top%d.png", cfg.Output.ChartPrefix, min(cfg.Output.TopN, len(table)))
		if err := renderer.SaveTopChart(topPath); err != nil {
			log.Fatalf("failed to render top chart: %v", err)
		}
		log.Infof("saved: %s", topPath)

		bottomPath := fmt.Sprintf("%s_bottom%d.png", cfg.Output.ChartPrefix, min(cfg.Output.TopN, len(table)))
		if err := renderer.SaveBottomChart(bottomPath); err != nil {
			log.Fatalf("failed to render bottom chart: %v", err)
		}
		log.Infof("saved: %s", bottomPath)

		histPath := fmt.Sprintf("%s_hist.png", cfg.Output.ChartPrefix)
		if err := renderer.SaveHistogram(histPath, cfg.Output.HistogramBins); err != nil {
			log.Fatalf("failed to render histogram: %v", err)
		}
		log.Infof("saved: %s", histPath)
	}
}
