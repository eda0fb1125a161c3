package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/crop-sorter/pkg/client"
	"github.com/menta2k/crop-sorter/pkg/processing"
	"github.com/menta2k/crop-sorter/pkg/types"
)

// DefaultPrompt asks the model for every object instance with normalized boxes
const DefaultPrompt = `You are an object detector.

Return JSON only:
{
  "detections": [
    {"label": "string", "class_id": 0, "confidence": 0.0,
     "box": {"x1": 0.0, "y1": 0.0, "x2": 0.0, "y2": 0.0}}
  ]
}

HARD RULES
- List every distinct object instance, one entry each.
- All coordinates are normalized to [0,1] (NOT pixels), x1 < x2 and y1 < y2.
- confidence is your certainty in [0,1].
- class_id is a non-negative integer, the same for the same kind of object.
- If nothing is found, return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionOptions control how images are sent to the vision model
type VisionOptions struct {
	Model      string
	Prompt     string
	SendFormat string // jpg or png
	SendSize   int    // max long side in pixels, 0 keeps the original
	SendQ      int
}

// VisionDetector detects objects with a vision language model
type VisionDetector struct {
	client client.VisionClient
	opts   VisionOptions
}

// NewVisionDetector creates a detector on top of a vision client
func NewVisionDetector(c client.VisionClient, opts VisionOptions) *VisionDetector {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.SendFormat == "" {
		opts.SendFormat = "jpg"
	}
	if opts.SendQ <= 0 {
		opts.SendQ = 85
	}
	return &VisionDetector{client: c, opts: opts}
}

// Detect loads the image, queries the model and converts its normalized boxes
// to pixel coordinates of the source image
func (d *VisionDetector) Detect(ctx context.Context, imagePath string, threshold float64) ([]types.Detection, error) {
	img, err := processing.LoadImage(imagePath)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	imgB64, err := processing.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQ)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image for model: %w", err)
	}

	raw, err := d.client.SimpleQuery(ctx, d.opts.Model, d.opts.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("vision query failed: %w", err)
	}

	dets, err := ParseDetections(raw, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	SortByConfidence(dets)
	return Floor(dets, threshold), nil
}

type modelBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type modelDetection struct {
	Label      string   `json:"label"`
	ClassID    int      `json:"class_id"`
	Confidence float64  `json:"confidence"`
	Box        modelBox `json:"box"`
}

type modelResult struct {
	Detections []modelDetection `json:"detections"`
}

// ParseDetections parses a model reply and scales its normalized boxes to an
// imgW x imgH image. Entries with degenerate boxes are dropped; a reply that
// holds no JSON object is an error.
func ParseDetections(raw string, imgW, imgH int) ([]types.Detection, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("model returned non-JSON response: %q", truncate(raw, 120))
	}

	var res modelResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	fw, fh := float64(imgW), float64(imgH)
	out := make([]types.Detection, 0, len(res.Detections))
	for _, md := range res.Detections {
		d := types.Detection{
			Box: types.Box{
				X1: clamp(md.Box.X1, 0, 1) * fw,
				Y1: clamp(md.Box.Y1, 0, 1) * fh,
				X2: clamp(md.Box.X2, 0, 1) * fw,
				Y2: clamp(md.Box.Y2, 0, 1) * fh,
			},
			Confidence: clamp(md.Confidence, 0, 1),
			ClassID:    md.ClassID,
			Label:      strings.ToLower(strings.TrimSpace(md.Label)),
		}
		if d.ClassID < 0 {
			d.ClassID = 0
		}
		if !valid(d) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
