// Package geometry grows detector boxes into crop rectangles.
package geometry

import (
	"math"

	"github.com/menta2k/crop-sorter/pkg/types"
)

// Expand grows box by margin times its own width and height, half on each
// side, and clamps the result to [0,imgW]x[0,imgH]. Coordinates are truncated
// toward zero after clamping. The result always satisfies
// 0 <= X1 <= X2 <= imgW and 0 <= Y1 <= Y2 <= imgH.
func Expand(box types.Box, margin float64, imgW, imgH int) types.Rect {
	if margin < 0 || math.IsNaN(margin) {
		margin = 0
	}
	ew := box.Width() * margin
	eh := box.Height() * margin

	fw, fh := float64(imgW), float64(imgH)
	x1 := clamp(box.X1-ew/2, 0, fw)
	y1 := clamp(box.Y1-eh/2, 0, fh)
	x2 := clamp(box.X2+ew/2, 0, fw)
	y2 := clamp(box.Y2+eh/2, 0, fh)

	r := types.Rect{X1: int(x1), Y1: int(y1), X2: int(x2), Y2: int(y2)}
	if r.X1 > r.X2 {
		r.X1 = r.X2
	}
	if r.Y1 > r.Y2 {
		r.Y1 = r.Y2
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
