package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/akamensky/argparse"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/service/ai"
	"videocounter/internal/service/annotate"
	"videocounter/internal/service/frame"
	"videocounter/internal/service/pipeline"
	"videocounter/internal/service/video"
)

func main() {
	cfg := config.Load()

	parser := argparse.NewParser("counter", "Count people or vehicles in a video file")
	input := parser.StringPositional(&argparse.Options{Help: "Input video file", Required: true})
	mode := parser.Selector("m", "mode", []string{model.ModePeople, model.ModeVehicles}, &argparse.Options{Help: "What to count", Default: model.ModeVehicles})
	confidence := parser.Float("c", "confidence", &argparse.Options{Help: "Minimum detection confidence", Default: cfg.DefaultConfidence})
	output := parser.String("o", "output", &argparse.Options{Help: "Write the annotated video here"})
	modelPath := parser.String("", "model", &argparse.Options{Help: "Detection model (.onnx, or a frozen graph with --model-config)", Default: cfg.ModelPath})
	modelConfig := parser.String("", "model-config", &argparse.Options{Help: "Graph config for non-ONNX models", Default: cfg.ModelConfigPath})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg.ModelPath = *modelPath
	cfg.ModelConfigPath = *modelConfig

	if err := run(cfg, *input, *mode, *confidence, *output); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, input, mode string, confidence float64, output string) error {
	catalog, err := model.CatalogForMode(mode)
	if err != nil {
		return err
	}
	if err := model.ValidateThreshold(confidence); err != nil {
		return err
	}

	log := logger.NewNop()
	detector := ai.NewDetectorService(cfg, log)
	defer detector.Close()
	if !detector.Ready() {
		return fmt.Errorf("model %s could not be loaded", cfg.ModelPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Config{
		SourcePath: input,
		OutputPath: output,
		SaveOutput: output != "",
		Confidence: confidence,
		Catalog:    catalog,
	}, pipeline.Deps{
		Opener:    video.Opener,
		Muxers:    video.Muxers,
		Detector:  detector,
		Annotator: annotate.NewAnnotator(),
		Logger:    log,
	})

	fmt.Printf("Counting %s in %s (confidence %.2f)\n", catalog.Noun(), input, confidence)

	updates := make(chan pipeline.Progress)
	var (
		summary model.RunSummary
		runErr  error
	)
	go func() {
		defer close(updates)
		summary, runErr = p.Run(ctx, updates)
	}()
	for u := range updates {
		if u.Current%30 != 0 {
			continue
		}
		if pct, ok := u.Percent(); ok {
			fmt.Printf("Frame %d/%d (%.1f%%) - %s: %d\n", u.Current, u.Total, pct, catalog.Noun(), u.Count.Total)
		} else {
			fmt.Printf("Frame %d - %s: %d\n", u.Current, catalog.Noun(), u.Count.Total)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(catalog, p.Info(), summary)
	return nil
}

func printSummary(catalog *model.ClassCatalog, info frame.VideoInfo, s model.RunSummary) {
	fmt.Printf("\n✅ Processing complete!\n")
	fmt.Printf("   Source: %dx%d @ %.2ffps\n", info.Width, info.Height, info.FPS)
	fmt.Printf("   Frames processed: %d\n", s.FramesProcessed)
	fmt.Printf("   Total %s detected: %d\n", catalog.Noun(), s.TotalDetected)
	fmt.Printf("   Max per frame: %d\n", s.MaxDetected)
	fmt.Printf("   Average per frame: %.2f\n", s.AvgDetected)

	labels := make([]string, 0, len(s.PerClassBreakdown))
	for label := range s.PerClassBreakdown {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	fmt.Printf("   Breakdown:\n")
	for _, label := range labels {
		fmt.Printf("      - %s: %d\n", label, s.PerClassBreakdown[label])
	}
	if s.OutputVideoPath != "" {
		fmt.Printf("   Output video: %s\n", s.OutputVideoPath)
	}
}
