package detection

import (
	"context"
	"sort"

	"github.com/menta2k/crop-sorter/pkg/types"
)

// Detector finds objects in an image file. Implementations return only
// detections whose confidence is at or above threshold, in a stable order.
type Detector interface {
	Detect(ctx context.Context, imagePath string, threshold float64) ([]types.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, imagePath string, threshold float64) ([]types.Detection, error)

// Detect calls f
func (f DetectorFunc) Detect(ctx context.Context, imagePath string, threshold float64) ([]types.Detection, error) {
	return f(ctx, imagePath, threshold)
}

// Floor drops detections below threshold, keeping the order of the rest
func Floor(dets []types.Detection, threshold float64) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// SortByConfidence orders detections highest confidence first; ties keep
// their original order
func SortByConfidence(dets []types.Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}

// valid reports whether a detection has a usable box and confidence
func valid(d types.Detection) bool {
	b := d.Box
	return b.X1 < b.X2 && b.Y1 < b.Y2 && d.Confidence >= 0 && d.Confidence <= 1
}
