// Package cropsorter sorts object detections from a folder of images into
// confidence buckets.
//
// Every image in the input folder is run through a detector. Each detection
// is expanded by a margin, clamped to the image, cropped and written as a
// JPEG into the directory of the first confidence range that contains its
// score, or into "other" when none does. Images without detections are
// copied unchanged into "null".
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.InputDir = "scans"
//	cfg.OutputDir = "crops"
//
//	det, err := cropsorter.NewDetector(context.Background(), cfg.Detector)
//	if err != nil {
//		log.Fatal(err)
//	}
//	sorter, err := cropsorter.New(cfg, det, logrus.New())
//	if err != nil {
//		log.Fatal(err)
//	}
//	counters, err := sorter.Run(context.Background())
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Write(os.Stdout, counters, cfg.Table())
//
// The package consists of these components:
//
// 1. Geometry (pkg/geometry): box expansion and clamping
// 2. Bucket (pkg/bucket): ordered confidence ranges, first match wins
// 3. Layout (pkg/layout): output directory tree and crop file names
// 4. Detection (pkg/detection, pkg/inference, pkg/ollama, pkg/llamacpp): detector backends
// 5. Pipeline (pkg/pipeline): the per-image loop and run counters
// 6. Report (pkg/report): the end-of-run summary
package cropsorter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/crop-sorter/internal/config"
	"github.com/menta2k/crop-sorter/internal/utils"
	"github.com/menta2k/crop-sorter/pkg/detection"
	"github.com/menta2k/crop-sorter/pkg/inference"
	"github.com/menta2k/crop-sorter/pkg/layout"
	"github.com/menta2k/crop-sorter/pkg/llamacpp"
	"github.com/menta2k/crop-sorter/pkg/ollama"
	"github.com/menta2k/crop-sorter/pkg/pipeline"
)

// Version of the crop sorter
const Version = "1.0.0"

// ErrConfig marks errors caused by configuration rather than by an image
var ErrConfig = errors.New("configuration error")

// Default backend endpoints
const (
	DefaultOllamaURL    = "http://localhost:11435/api/chat"
	DefaultLlamaCppURL  = llamacpp.DefaultURL
	DefaultInferenceURL = "http://localhost:5000/predict"
)

// Sorter runs the detection pipeline described by a configuration
type Sorter struct {
	cfg *config.Config
	det detection.Detector
	log logrus.FieldLogger
}

// New validates cfg and creates a sorter using det
func New(cfg *config.Config, det detection.Detector, log logrus.FieldLogger) (*Sorter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if det == nil {
		return nil, fmt.Errorf("%w: no detector", ErrConfig)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sorter{cfg: cfg, det: det, log: log}, nil
}

// Options returns the pipeline options derived from the configuration
func (s *Sorter) Options() pipeline.Options {
	return pipeline.Options{
		Threshold:    s.cfg.ConfidenceThreshold,
		Margin:       s.cfg.MarginFraction,
		ShowBox:      s.cfg.ShowBox,
		OverlayColor: s.cfg.OverlayColor(),
		OverlayWidth: s.cfg.Overlay.Width,
		JPEGQuality:  s.cfg.JPEGQuality,
		FailFast:     s.cfg.FailFast,
	}
}

// Run prepares the output tree and processes the input folder. A missing
// input folder or an output root that cannot be created is an ErrConfig.
func (s *Sorter) Run(ctx context.Context) (*pipeline.Counters, error) {
	if !utils.DirExists(s.cfg.InputDir) {
		return nil, fmt.Errorf("%w: input folder %s does not exist", ErrConfig, s.cfg.InputDir)
	}

	table := s.cfg.Table()
	lay, err := layout.Prepare(s.cfg.OutputDir, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	s.log.WithFields(logrus.Fields{
		"input":  s.cfg.InputDir,
		"output": lay.Root(),
	}).Debug("output layout prepared")

	return pipeline.New(s.det, lay, table, s.Options(), s.log).Run(ctx, s.cfg.InputDir)
}

// NewDetector builds the detection backend named by cfg.Backend. The
// inference backend must answer its health check before any image is read.
func NewDetector(ctx context.Context, cfg config.DetectorConfig) (detection.Detector, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch strings.ToLower(cfg.Backend) {
	case config.BackendStatic:
		det, err := detection.LoadManifest(cfg.Manifest)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return det, nil

	case config.BackendInference:
		url := cfg.URL
		if url == "" {
			url = DefaultInferenceURL
		}
		c, err := inference.NewClient(url, timeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if err := c.CheckHealth(ctx); err != nil {
			return nil, fmt.Errorf("%w: inference service health check failed: %w", ErrConfig, err)
		}
		return c, nil

	case config.BackendOllama:
		url := cfg.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Ollama client: %w", ErrConfig, err)
		}
		c.SetTimeout(timeout)
		return detection.NewVisionDetector(c, visionOptions(cfg)), nil

	case config.BackendLlamaCpp:
		url := cfg.URL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create llama.cpp client: %w", ErrConfig, err)
		}
		c.SetTimeout(timeout)
		return detection.NewVisionDetector(c, visionOptions(cfg)), nil
	}

	return nil, fmt.Errorf("%w: unknown backend %q", ErrConfig, cfg.Backend)
}

func visionOptions(cfg config.DetectorConfig) detection.VisionOptions {
	return detection.VisionOptions{
		Model:      cfg.Model,
		SendFormat: "jpg",
		SendSize:   1536,
		SendQ:      85,
	}
}
