package pipeline

import "github.com/menta2k/crop-sorter/pkg/bucket"

// Counters are the run statistics. They only count crops and copies that
// were fully written.
type Counters struct {
	TotalCrops   int
	PerBucket    map[string]int
	NoDetections int
	// Images is the number of images visited, failed ones included
	Images   int
	Failures []Failure
}

// NewCounters returns zeroed counters with an entry for every range in
// table and for the other bucket
func NewCounters(table bucket.Table) *Counters {
	per := make(map[string]int, len(table)+1)
	for _, name := range table.Names() {
		per[name] = 0
	}
	per[bucket.Other] = 0
	return &Counters{PerBucket: per}
}

// Count returns the number of crops written to a bucket
func (c *Counters) Count(name string) int {
	return c.PerBucket[name]
}

// Failed returns the number of distinct images with at least one failure
func (c *Counters) Failed() int {
	seen := make(map[string]struct{}, len(c.Failures))
	for _, f := range c.Failures {
		seen[f.Image] = struct{}{}
	}
	return len(seen)
}
