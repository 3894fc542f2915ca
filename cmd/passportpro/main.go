package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ymiah/passportpro/internal/auth"
	"github.com/ymiah/passportpro/internal/compliance"
	"github.com/ymiah/passportpro/internal/config"
	"github.com/ymiah/passportpro/internal/crop"
	"github.com/ymiah/passportpro/internal/export"
	"github.com/ymiah/passportpro/internal/logging"
	"github.com/ymiah/passportpro/internal/pipeline"
)

var (
	inputFlag     string
	outputDirFlag string
	directiveFlag string
	formatFlag    string
	qualityFlag   float64
	zoomFlag      float64
	centerXFlag   float64
	centerYFlag   float64
	modelFlag     string
	bundleFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "passportpro",
	Short: "One-shot passport photo compliance pipeline",
	Long: `passportpro runs the full pipeline on a single portrait: crop to the
35:45 passport frame, transform via the compliance backend, and export the
score-gated result.

Examples:
  passportpro -i portrait.jpg
  passportpro -i portrait.jpg --zoom 1.5 --directive "Correct tilted posture"
  passportpro -i portrait.jpg --format png --bundle`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Input portrait image (required)")
	rootCmd.Flags().StringVarP(&outputDirFlag, "output-dir", "o", ".", "Directory for the exported file")
	rootCmd.Flags().StringVarP(&directiveFlag, "directive", "d", "", "Optional refinement directive for the backend")
	rootCmd.Flags().StringVarP(&formatFlag, "format", "f", "jpeg", "Export format: jpeg or png")
	rootCmd.Flags().Float64VarP(&qualityFlag, "quality", "q", 0.9, "JPEG quality in (0, 1]")
	rootCmd.Flags().Float64Var(&zoomFlag, "zoom", 1.0, "Crop zoom (1-3)")
	rootCmd.Flags().Float64Var(&centerXFlag, "center-x", 0.5, "Crop window center X (0-1)")
	rootCmd.Flags().Float64Var(&centerYFlag, "center-y", 0.5, "Crop window center Y (0-1)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini image model to use (overrides config)")
	rootCmd.Flags().BoolVar(&bundleFlag, "bundle", false, "Write a ZIP bundle with report and metrics")
	rootCmd.MarkFlagRequired("input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	apiKey, err := auth.GetAPIKey()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := compliance.NewClient(ctx, apiKey, cfg.Model, cfg.AspectHint)
	if err != nil {
		return err
	}
	if err := client.Validate(ctx); err != nil {
		return err
	}

	data, err := os.ReadFile(inputFlag)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	pipe := pipeline.New(client, cfg.MaxUploadBytes)
	if err := pipe.SelectFile(data); err != nil {
		return fmt.Errorf("upload rejected: %w", err)
	}

	win := crop.Window{CenterX: centerXFlag, CenterY: centerYFlag, Zoom: zoomFlag}
	if err := pipe.ConfirmCropWindow(win); err != nil {
		return fmt.Errorf("crop failed: %w", err)
	}

	fmt.Println("Submitting photo for compliance transformation...")
	if err := pipe.Submit(ctx, directiveFlag); err != nil {
		return fmt.Errorf("%s", compliance.UserMessage(err))
	}

	snap := pipe.Snapshot()
	printAudit(snap)

	if !snap.CanExport {
		fmt.Printf("\nExport refused: score %d is below the acceptance threshold (%d).\n", snap.Score, export.AcceptanceThreshold)
		fmt.Println("Re-run with a --directive targeting the failing criteria, or try a different photo.")
		return errors.New("compliance score below threshold")
	}

	exportCfg := export.Config{Format: export.Format(formatFlag), Quality: qualityFlag}
	file, err := pipe.Export(exportCfg)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	outPath := filepath.Join(outputDirFlag, file.Name)
	if err := os.WriteFile(outPath, file.Data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("\nExported %s (%d bytes)\n", outPath, len(file.Data))

	if bundleFlag {
		bundlePath := filepath.Join(outputDirFlag, "passportpro-bundle.zip")
		f, err := os.Create(bundlePath)
		if err != nil {
			return fmt.Errorf("failed to create bundle: %w", err)
		}
		defer f.Close()
		if err := pipe.ExportBundle(f, exportCfg); err != nil {
			return fmt.Errorf("failed to write bundle: %w", err)
		}
		fmt.Printf("Bundle written to %s\n", bundlePath)
	}

	log.Info().Int("score", snap.Score).Msg("Pipeline complete")
	return nil
}

func printAudit(snap pipeline.Snapshot) {
	fmt.Printf("\nCompliance score: %d/100\n", snap.Score)

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-16s %s\n", name, snap.Metrics[name])
	}

	if snap.Report != "" {
		fmt.Printf("\n%s\n", snap.Report)
	}
}
