package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/menta2k/crop-sorter/pkg/types"
)

// Manifest holds precomputed detections keyed by image file name
type Manifest struct {
	Images map[string][]types.Detection `json:"images"`
}

// StaticDetector serves detections produced ahead of time by an external
// detector run. Images absent from the manifest have no detections.
type StaticDetector struct {
	manifest Manifest
}

// NewStaticDetector creates a detector backed by an in-memory manifest
func NewStaticDetector(m Manifest) *StaticDetector {
	if m.Images == nil {
		m.Images = map[string][]types.Detection{}
	}
	return &StaticDetector{manifest: m}
}

// LoadManifest reads a JSON manifest from disk
func LoadManifest(path string) (*StaticDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	for name, dets := range m.Images {
		for i, d := range dets {
			if !valid(d) {
				return nil, fmt.Errorf("manifest entry %s[%d]: invalid detection %+v", name, i, d)
			}
		}
	}

	return NewStaticDetector(m), nil
}

// Detect returns the manifest entry for the image's base name
func (s *StaticDetector) Detect(ctx context.Context, imagePath string, threshold float64) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Floor(s.manifest.Images[filepath.Base(imagePath)], threshold), nil
}
