package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"mrichange/internal/logger"
	"mrichange/internal/models"
	"mrichange/pkg/comparison"
	"mrichange/pkg/config"
	"mrichange/pkg/detection"
	"mrichange/pkg/imageops"
	"mrichange/pkg/metrics"
	"mrichange/pkg/registration"
	"mrichange/pkg/tumors"
	"mrichange/pkg/visualization"
)

// report is the metrics.json document written by compare mode.
type report struct {
	RegistrationType string                 `json:"registration_type"`
	Registration     registration.Report    `json:"registration"`
	Metrics          *metrics.ChangeMetrics `json:"metrics"`
	TumorComparison  *tumors.Comparison     `json:"tumor_comparison,omitempty"`
}

func main() {
	// Parse command line arguments
	mode := flag.String("mode", "compare", "Operation: compare, register or scan")
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	envFile := flag.String("env", ".env", "Optional .env file with MRICHANGE_* overrides")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	fixedPath := flag.String("fixed", "", "Reference (earlier) scan")
	movingPath := flag.String("moving", "", "Follow-up scan to register onto the fixed scan")
	fixedMaskPath := flag.String("fixed-mask", "", "Optional tumor mask for the fixed scan")
	movingMaskPath := flag.String("moving-mask", "", "Optional tumor mask for the moving scan")
	imagePath := flag.String("image", "", "Scan to run detection on (scan mode)")
	regType := flag.String("type", "", "Registration type: rigid or affine (overrides config)")
	threshold := flag.Float64("threshold", -1, "Intensity change threshold (overrides config)")
	outputDir := flag.String("output", "", "Output directory (overrides config)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Deadline for the whole operation")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("%v", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg.ApplyEnv()
	if *regType != "" {
		cfg.Registration.Type = *regType
	}
	if *threshold >= 0 {
		cfg.Metrics.IntensityThreshold = *threshold
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Close()

	opts, err := comparison.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	det, err := detection.New(cfg, lg)
	if err != nil {
		lg.Warning("Detector not available: %v", err)
		det = nil
	}
	if det != nil {
		defer det.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	aligner := registration.NewAligner(comparison.ParamsFromConfig(cfg), lg)
	pipeline := comparison.New(aligner, det, opts, lg)

	fmt.Println("================================")
	fmt.Println("MRI SCAN CHANGE ANALYSIS")
	fmt.Println("================================")

	start := time.Now()
	switch *mode {
	case "compare":
		err = runCompare(ctx, pipeline, cfg, opts, *fixedPath, *movingPath, *fixedMaskPath, *movingMaskPath)
	case "register":
		err = runRegister(ctx, pipeline, cfg, *fixedPath, *movingPath)
	case "scan":
		err = runScan(ctx, pipeline, cfg, *imagePath)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		lg.Error("%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("\nCompleted in %.2f seconds. Results saved to: %s\n", time.Since(start).Seconds(), cfg.Output.Dir)
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.Output.LogDir != "" {
		return logger.New(cfg.Output.LogDir, cfg.Output.Verbose)
	}
	if cfg.Output.Verbose {
		return logger.NewWriter(os.Stdout), nil
	}
	return logger.Discard(), nil
}

func runCompare(ctx context.Context, p *comparison.Pipeline, cfg *config.Config, opts comparison.Options, fixedPath, movingPath, fixedMaskPath, movingMaskPath string) error {
	if fixedPath == "" || movingPath == "" {
		return fmt.Errorf("compare mode needs -fixed and -moving")
	}
	fixed, err := imageops.LoadImage(fixedPath)
	if err != nil {
		return err
	}
	moving, err := imageops.LoadImage(movingPath)
	if err != nil {
		return err
	}

	in := comparison.Input{Fixed: fixed, Moving: moving}
	if in.FixedMask, err = loadMask(fixedMaskPath); err != nil {
		return err
	}
	if in.MovingMask, err = loadMask(movingMaskPath); err != nil {
		return err
	}

	res, err := p.Compare(ctx, in)
	if err != nil {
		return err
	}

	dir := cfg.Output.Dir
	if cfg.Output.SaveRegistered {
		if err := imageops.SaveImage(filepath.Join(dir, "registered.png"), imageops.ToGray(res.Registered)); err != nil {
			return err
		}
	}
	if cfg.Output.SaveVisualization {
		if err := imageops.SaveImage(filepath.Join(dir, "visualization.png"), res.Visualization); err != nil {
			return err
		}
		if err := visualization.SavePanel(filepath.Join(dir, "panel.png"), res.Fixed, res.Registered, res.Visualization); err != nil {
			return err
		}
	}
	if res.RegisteredMask != nil {
		if err := imageops.SaveImage(filepath.Join(dir, "registered_mask.png"), imageops.MaskToGray(res.RegisteredMask)); err != nil {
			return err
		}
	}

	doc := report{
		RegistrationType: opts.Kind.String(),
		Registration:     res.Registration.Report(),
		Metrics:          res.Metrics,
		TumorComparison:  res.Tumors,
	}
	if err := writeJSON(filepath.Join(dir, "metrics.json"), doc); err != nil {
		return err
	}

	o := res.Metrics.Overall
	pc := res.Metrics.PixelChanges
	fmt.Printf("\nRegistration: %s\n", res.Registration)
	fmt.Printf("Mean intensity change: %.3f (%.2f%%)\n", o.MeanIntensityChange, o.MeanIntensityChangePercent)
	fmt.Printf("Mean absolute difference: %.3f (max %.1f)\n", o.MeanAbsoluteDifference, o.MaxAbsoluteDifference)
	fmt.Printf("Changed pixels: %d of %d (%.2f%%)\n", pc.ChangedPixels, pc.TotalPixels, pc.ChangePercentage)
	if ov := res.Metrics.MaskOverlap; ov != nil {
		fmt.Printf("Mask overlap: Dice %.3f, IoU %.3f\n", ov.Dice, ov.IoU)
	}
	if ac := res.Metrics.AreaChange; ac != nil {
		fmt.Printf("Area change: %d pixels (%.2f%%)\n", ac.AreaChangePixels, ac.AreaChangePercent)
	}
	return nil
}

func runRegister(ctx context.Context, p *comparison.Pipeline, cfg *config.Config, fixedPath, movingPath string) error {
	if fixedPath == "" || movingPath == "" {
		return fmt.Errorf("register mode needs -fixed and -moving")
	}
	fixed, err := imageops.LoadImage(fixedPath)
	if err != nil {
		return err
	}
	moving, err := imageops.LoadImage(movingPath)
	if err != nil {
		return err
	}

	res, err := p.Register(ctx, fixed, moving)
	if err != nil {
		return err
	}

	if err := imageops.SaveImage(filepath.Join(cfg.Output.Dir, "registered.png"), imageops.ToGray(res.Registered)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(cfg.Output.Dir, "registration.json"), res.Report()); err != nil {
		return err
	}
	fmt.Printf("\nRegistration: %s\n", res)
	return nil
}

func runScan(ctx context.Context, p *comparison.Pipeline, cfg *config.Config, imagePath string) error {
	if imagePath == "" {
		return fmt.Errorf("scan mode needs -image")
	}
	img, err := imageops.LoadImage(imagePath)
	if err != nil {
		return err
	}

	res, err := p.Scan(ctx, img)
	if err != nil {
		return err
	}

	if err := imageops.SaveImage(filepath.Join(cfg.Output.Dir, "mask.png"), res.MaskImage()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(cfg.Output.Dir, "detections.json"), res); err != nil {
		return err
	}
	fmt.Printf("\nFound %d detections (%s mask)\n", res.NumDetections, res.MaskType)
	return nil
}

func loadMask(path string) (*models.Mask, error) {
	if path == "" {
		return nil, nil
	}
	img, err := imageops.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return imageops.MaskFromImage(img), nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	return os.WriteFile(path, data, 0644)
}
