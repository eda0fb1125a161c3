// Package report renders the end-of-run summary.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/menta2k/crop-sorter/pkg/bucket"
	"github.com/menta2k/crop-sorter/pkg/pipeline"
)

// Separator is the rule printed around the run output
var Separator = strings.Repeat("-", 50)

// Format renders counters as the run summary. Configured buckets are listed
// in table order and only when they received crops; other follows them.
func Format(c *pipeline.Counters, table bucket.Table) string {
	var b strings.Builder

	b.WriteString("Complete!\n")
	fmt.Fprintf(&b, "  • Total crops: %d\n", c.TotalCrops)
	b.WriteString("\nCrops per confidence range:\n")
	for _, name := range table.Names() {
		if n := c.Count(name); n > 0 {
			fmt.Fprintf(&b, "  • %s: %d crops\n", name, n)
		}
	}
	if n := c.Count(bucket.Other); n > 0 {
		fmt.Fprintf(&b, "  • %s: %d crops\n", bucket.Other, n)
	}
	fmt.Fprintf(&b, "\n  • Images without detections (%s): %d\n", bucket.NoDetections, c.NoDetections)
	if n := c.Failed(); n > 0 {
		fmt.Fprintf(&b, "  • Failed images: %d\n", n)
	}

	return b.String()
}

// Write prints the summary preceded by the separator rule
func Write(w io.Writer, c *pipeline.Counters, table bucket.Table) error {
	_, err := fmt.Fprintf(w, "%s\n%s", Separator, Format(c, table))
	return err
}
