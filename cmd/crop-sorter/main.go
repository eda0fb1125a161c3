package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cropsorter "github.com/menta2k/crop-sorter"
	"github.com/menta2k/crop-sorter/internal/config"
	"github.com/menta2k/crop-sorter/internal/logging"
	"github.com/menta2k/crop-sorter/internal/utils"
	"github.com/menta2k/crop-sorter/pkg/pipeline"
	"github.com/menta2k/crop-sorter/pkg/report"
)

const (
	exitConfig = 1
	exitFailed = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)

	var cfgPath, writeCfg string
	var in, out, backend, url, model, manifest, logLevel string
	var conf, margin float64
	var showBox, failFast, version bool

	fs.StringVar(&cfgPath, "config", "", "JSON config file (default "+config.GetConfigPath()+" if present)")
	fs.StringVar(&in, "in", "", "input folder with images (jpg/jpeg/png/bmp/tiff)")
	fs.StringVar(&out, "out", "", "output root for confidence buckets")
	fs.Float64Var(&conf, "conf", -1, "confidence threshold passed to the detector (0..1)")
	fs.Float64Var(&margin, "margin", -1, "box expansion as a fraction of box size, e.g. 0.1 for 10%")
	fs.BoolVar(&showBox, "show-box", false, "draw the detection box on each crop")
	fs.StringVar(&backend, "backend", "", "detector backend: static|inference|ollama|llamacpp")
	fs.StringVar(&url, "url", "", "detector server URL")
	fs.StringVar(&model, "model", "", "model name for the ollama and llamacpp backends")
	fs.StringVar(&manifest, "manifest", "", "detections manifest for the static backend")
	fs.BoolVar(&failFast, "fail-fast", false, "stop at the first image that fails")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.BoolVar(&version, "version", false, "print version and exit")
	fs.StringVar(&writeCfg, "write-config", "", "write the effective config to this file and exit")

	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if version {
		fmt.Printf("crop-sorter %s\n", cropsorter.Version)
		return 0
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	cfg.ApplyEnv()

	// Only flags given on the command line override the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "in":
			cfg.InputDir = in
		case "out":
			cfg.OutputDir = out
		case "conf":
			cfg.ConfidenceThreshold = conf
		case "margin":
			cfg.MarginFraction = margin
		case "show-box":
			cfg.ShowBox = showBox
		case "backend":
			cfg.Detector.Backend = backend
		case "url":
			cfg.Detector.URL = url
		case "model":
			cfg.Detector.Model = model
		case "manifest":
			cfg.Detector.Manifest = manifest
		case "fail-fast":
			cfg.FailFast = failFast
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})

	if writeCfg != "" {
		if err := cfg.SaveToFile(writeCfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitConfig
		}
		fmt.Printf("wrote %s\n", writeCfg)
		return 0
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	det, err := cropsorter.NewDetector(ctx, cfg.Detector)
	if err != nil {
		log.WithError(err).Error("failed to create detector")
		return exitConfig
	}
	sorter, err := cropsorter.New(cfg, det, log)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return exitConfig
	}

	images, err := pipeline.ListImages(cfg.InputDir)
	if err != nil {
		log.WithError(err).Error("cannot read input folder")
		return exitConfig
	}
	printBanner(cfg, len(images))

	counters, err := sorter.Run(ctx)
	if counters != nil {
		report.Write(os.Stdout, counters, cfg.Table())
	}

	var se *pipeline.StageError
	switch {
	case errors.Is(err, cropsorter.ErrConfig):
		log.WithError(err).Error("invalid configuration")
		return exitConfig
	case errors.As(err, &se):
		log.WithError(err).Error("aborted on first failure")
		return exitConfig
	case err != nil:
		log.WithError(err).Error("run interrupted")
		return exitConfig
	case counters.Failed() > 0:
		return exitFailed
	}
	return 0
}

// loadConfig reads path, or the default config file when path is empty and
// one exists, or falls back to built-in defaults
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if def := config.GetConfigPath(); utils.FileExists(def) {
			path = def
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func printBanner(cfg *config.Config, images int) {
	fmt.Printf("Detector backend: %s\n", cfg.Detector.Backend)
	fmt.Printf("Found images: %d\n", images)
	fmt.Printf("Confidence threshold: %g\n", cfg.ConfidenceThreshold)
	fmt.Printf("Bounding box expansion: %g%%\n", cfg.MarginFraction*100)
	fmt.Printf("Show bounding box: %t\n", cfg.ShowBox)
	fmt.Println(report.Separator)
}
