// Package bucket maps detection confidence scores to named output buckets.
//
// A Table is an ordered list of half-open ranges. Classification walks the
// table in order and returns the first range with Min <= confidence < Max.
// Ranges may overlap or leave gaps; overlaps resolve by list order and gaps
// fall through to the Other bucket.
package bucket

import (
	"fmt"
	"strings"
)

const (
	// Other receives crops whose confidence matches no configured range
	Other = "other"
	// NoDetections receives unchanged copies of images without detections
	NoDetections = "null"
)

// Range is a named half-open confidence interval [Min, Max)
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Name string  `json:"name"`
}

// Contains reports whether conf falls inside the range
func (r Range) Contains(conf float64) bool {
	return r.Min <= conf && conf < r.Max
}

// Table is an ordered sequence of ranges, evaluated first match wins
type Table []Range

// DefaultTable returns the stock range table
func DefaultTable() Table {
	return Table{
		{Min: 0.95, Max: 1.0, Name: "0.95-1.00"},
		{Min: 0.90, Max: 0.95, Name: "0.90-0.95"},
		{Min: 0.85, Max: 0.90, Name: "0.85-0.90"},
		{Min: 0.80, Max: 0.85, Name: "0.80-0.85"},
	}
}

// Classify returns the bucket name for conf using table
func Classify(conf float64, table Table) string {
	for _, r := range table {
		if r.Contains(conf) {
			return r.Name
		}
	}
	return Other
}

// Classify returns the bucket name for conf
func (t Table) Classify(conf float64) string {
	return Classify(conf, t)
}

// Names returns the configured bucket names in table order
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for _, r := range t {
		names = append(names, r.Name)
	}
	return names
}

// Validate checks that every range is usable as a directory bucket.
// Coverage and overlaps are deliberately not checked.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for i, r := range t {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			return fmt.Errorf("range %d: name cannot be empty", i)
		case name != r.Name:
			return fmt.Errorf("range %d: name %q has surrounding whitespace", i, r.Name)
		case name == Other || name == NoDetections:
			return fmt.Errorf("range %d: name %q is reserved", i, name)
		case name == "." || name == ".." || strings.ContainsAny(name, `/\`):
			return fmt.Errorf("range %d: name %q is not a valid directory name", i, name)
		case r.Min >= r.Max:
			return fmt.Errorf("range %q: min %.4f must be below max %.4f", name, r.Min, r.Max)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("range %q: duplicate name", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
