// Package pipeline runs a detector over a folder of images and routes one
// JPEG crop per detection into the bucket chosen by its confidence. Images
// without detections are copied unchanged into the null bucket.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/crop-sorter/internal/utils"
	"github.com/menta2k/crop-sorter/pkg/bucket"
	"github.com/menta2k/crop-sorter/pkg/detection"
	"github.com/menta2k/crop-sorter/pkg/geometry"
	"github.com/menta2k/crop-sorter/pkg/layout"
	"github.com/menta2k/crop-sorter/pkg/processing"
)

// Options tune a run
type Options struct {
	// Threshold is passed to the detector; detections below it are never returned
	Threshold float64
	// Margin grows each box by this fraction of its size, half per side
	Margin float64
	// ShowBox draws the detector box on each crop
	ShowBox      bool
	OverlayColor color.Color
	OverlayWidth int
	JPEGQuality  int
	// FailFast aborts the run on the first failed image
	FailFast bool
}

// DefaultOptions returns the stock run options
func DefaultOptions() Options {
	return Options{
		Threshold:    0.5,
		Margin:       0.1,
		OverlayColor: color.NRGBA{R: 255, A: 255},
		OverlayWidth: 3,
		JPEGQuality:  95,
	}
}

// Pipeline processes images one at a time in name order
type Pipeline struct {
	det    detection.Detector
	layout *layout.Layout
	table  bucket.Table
	opts   Options
	log    logrus.FieldLogger
}

// New creates a pipeline. lay must have been prepared from table.
func New(det detection.Detector, lay *layout.Layout, table bucket.Table, opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.OverlayColor == nil {
		opts.OverlayColor = DefaultOptions().OverlayColor
	}
	if opts.OverlayWidth <= 0 {
		opts.OverlayWidth = DefaultOptions().OverlayWidth
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultOptions().JPEGQuality
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		det:    det,
		layout: lay,
		table:  table,
		opts:   opts,
		log:    log,
	}
}

// Run processes every supported image in inputFolder. A failing image is
// logged and recorded in the returned counters and the run moves on, unless
// FailFast is set. A detection whose expanded box is empty fails alone and
// the image's other detections are still cropped. On cancellation the counters so far are returned with
// ctx.Err().
func (p *Pipeline) Run(ctx context.Context, inputFolder string) (*Counters, error) {
	files, err := ListImages(inputFolder)
	if err != nil {
		return nil, err
	}

	c := NewCounters(p.table)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return c, err
		}

		c.Images++
		err := p.processImage(ctx, path, c)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c, ctxErr
		}

		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: StageLoad, Image: filepath.Base(path), Err: err}
		}
		p.fail(c, se)

		if p.opts.FailFast {
			return c, se
		}
	}

	return c, nil
}

func (p *Pipeline) processImage(ctx context.Context, path string, c *Counters) error {
	name := filepath.Base(path)
	log := p.log.WithField("image", name)
	log.Info("processing image")

	img, err := processing.LoadImage(path)
	if err != nil {
		return &StageError{Stage: StageLoad, Image: name, Err: err}
	}
	bounds := img.Bounds()

	dets, err := p.det.Detect(ctx, path, p.opts.Threshold)
	if err != nil {
		return &StageError{Stage: StageInfer, Image: name, Err: err}
	}

	if len(dets) == 0 {
		if err := processing.CopyFile(path, p.layout.NoDetectionsPath(name)); err != nil {
			return &StageError{Stage: StageCopy, Image: name, Err: err}
		}
		c.NoDetections++
		log.WithField("bucket", bucket.NoDetections).Info("no detections, image copied")
		return nil
	}

	for _, d := range dets {
		if err := ctx.Err(); err != nil {
			return err
		}

		rect := geometry.Expand(d.Box, p.opts.Margin, bounds.Dx(), bounds.Dy())
		crop, err := processing.Crop(img, rect)
		if err != nil {
			// A degenerate box only loses its own crop
			se := &StageError{Stage: StageCrop, Image: name, Err: err}
			if p.opts.FailFast {
				return se
			}
			p.fail(c, se)
			continue
		}
		if p.opts.ShowBox {
			processing.DrawOutline(crop, d.Box, image.Pt(rect.X1, rect.Y1), p.opts.OverlayColor, p.opts.OverlayWidth)
		}

		target := p.table.Classify(d.Confidence)
		dst, err := p.layout.CropPath(target, name, c.TotalCrops, d.Confidence)
		if err != nil {
			return &StageError{Stage: StageWrite, Image: name, Err: err}
		}
		if err := processing.SaveJPEG(crop, dst, p.opts.JPEGQuality); err != nil {
			return &StageError{Stage: StageWrite, Image: name, Err: err}
		}

		c.TotalCrops++
		c.PerBucket[target]++
		log.WithFields(logrus.Fields{
			"bucket":     target,
			"file":       filepath.Base(dst),
			"confidence": fmt.Sprintf("%.2f", d.Confidence),
		}).Info("crop saved")
	}

	return nil
}

// fail records and logs a failure
func (p *Pipeline) fail(c *Counters, se *StageError) {
	c.Failures = append(c.Failures, Failure{Image: se.Image, Stage: se.Stage, Err: se.Err})
	p.log.WithFields(logrus.Fields{
		"image": se.Image,
		"stage": se.Stage,
		"error": se.Err,
	}).Error("processing failed")
}

// ListImages returns the supported images directly inside dir, sorted by name
func ListImages(dir string) ([]string, error) {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input folder: %w", err)
	}
	return files, nil
}
