package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"czi2png/pkg/config"
	"czi2png/pkg/export"
)

var (
	inputPath  string
	outputDir  string
	configPath string
	numCores   int
	verbose    bool
)

// rootCmd is the single czi2png command; there are no subcommands.
var rootCmd = &cobra.Command{
	Use:   "czi2png",
	Short: "Convert CZI microscopy stacks into colorized PNG images",
	Long: `czi2png converts Zeiss CZI z-stacks into per-channel PNG images.

For every channel the tool writes a maximum intensity projection, an average
intensity projection and each individual z slice, tinted with the channel's
display color from the embedded metadata.

Examples:
  # Convert a single stack into a new directory
  czi2png --input embryo.czi --output embryo_png

  # Convert every stack in a folder, rendering channels on 4 cores
  czi2png --input ./stacks --output ./converted --cores 4`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&inputPath, "input", "", "CZI file, or directory of CZI files (required)")
	rootCmd.Flags().StringVar(&outputDir, "output", "", "output directory for the PNG images (required)")
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "YAML configuration file")
	rootCmd.Flags().IntVar(&numCores, "cores", 1, "number of channels to render in parallel (overrides configuration)")
	rootCmd.Flags().BoolVar(&verbose, "verbose", true, "print step progress and per-channel summaries")
	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagRequired("output")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	params := export.Params{
		InputPath:      inputPath,
		OutputDir:      outputDir,
		NumCores:       cfg.Processing.NumCores,
		PNGCompression: cfg.Output.PNGCompression,
		IncludeMIP:     cfg.Output.IncludeMIP,
		IncludeAIP:     cfg.Output.IncludeAIP,
		IncludeSlices:  cfg.Output.IncludeSlices,
		Verbose:        cfg.Output.Verbose,
	}
	// Flags the user set explicitly win over the configuration file
	if cmd.Flags().Changed("cores") {
		params.NumCores = numCores
	}
	if cmd.Flags().Changed("verbose") {
		params.Verbose = verbose
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if info.IsDir() {
		allMetrics, err := export.ExportDirectory(params)
		if err != nil {
			return err
		}
		printBatchSummary(allMetrics)
		return nil
	}

	exporter := export.NewExporter(params)
	if err := exporter.Run(); err != nil {
		return err
	}
	printSummary(exporter.GetMetrics())
	return nil
}

func printSummary(m export.Metrics) {
	fmt.Printf("\nConversion completed successfully in %.2f seconds!\n", m.ProcessingTime.Seconds())
	fmt.Printf("Stack: %d channels x %d slices of %dx%d pixels\n", m.Channels, m.Depth, m.Width, m.Height)
	fmt.Printf("Files written: %d\n", m.FilesWritten)
	for _, ch := range m.ChannelSummaries {
		fmt.Printf("- Channel %d (%s) %s: %d files, intensity min %.0f max %.0f mean %.2f\n",
			ch.Index, ch.Name, ch.Color.Hex(), ch.FilesWritten,
			ch.MinIntensity, ch.MaxIntensity, ch.MeanIntensity)
	}
}

func printBatchSummary(all []export.Metrics) {
	files := 0
	var total time.Duration
	for _, m := range all {
		files += m.FilesWritten
		total += m.ProcessingTime
	}
	fmt.Printf("\nConverted %d containers in %.2f seconds, %d files written\n",
		len(all), total.Seconds(), files)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
