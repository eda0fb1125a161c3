package geometry

import (
	"math/rand"
	"testing"

	"github.com/menta2k/crop-sorter/pkg/types"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name   string
		box    types.Box
		margin float64
		w, h   int
		want   types.Rect
	}{
		{
			name:   "ten percent inside image",
			box:    types.Box{X1: 100, Y1: 100, X2: 200, Y2: 300},
			margin: 0.1,
			w:      640, h: 480,
			want: types.Rect{X1: 95, Y1: 90, X2: 205, Y2: 310},
		},
		{
			name:   "zero margin truncates",
			box:    types.Box{X1: 10.9, Y1: 20.5, X2: 30.99, Y2: 40.01},
			margin: 0,
			w:      100, h: 100,
			want: types.Rect{X1: 10, Y1: 20, X2: 30, Y2: 40},
		},
		{
			name:   "clamped at origin",
			box:    types.Box{X1: 2, Y1: 1, X2: 42, Y2: 21},
			margin: 0.5,
			w:      100, h: 100,
			want: types.Rect{X1: 0, Y1: 0, X2: 52, Y2: 26},
		},
		{
			name:   "clamped at far edge",
			box:    types.Box{X1: 80, Y1: 60, X2: 100, Y2: 80},
			margin: 1.0,
			w:      100, h: 80,
			want: types.Rect{X1: 70, Y1: 50, X2: 100, Y2: 80},
		},
		{
			name:   "negative margin treated as zero",
			box:    types.Box{X1: 10, Y1: 10, X2: 20, Y2: 20},
			margin: -0.5,
			w:      50, h: 50,
			want: types.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20},
		},
		{
			name:   "box outside image collapses to edge",
			box:    types.Box{X1: 150, Y1: 150, X2: 160, Y2: 170},
			margin: 0.1,
			w:      100, h: 100,
			want: types.Rect{X1: 100, Y1: 100, X2: 100, Y2: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.box, tt.margin, tt.w, tt.h)
			if got != tt.want {
				t.Errorf("Expand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExpand_AlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		w := 1 + rng.Intn(2000)
		h := 1 + rng.Intn(2000)
		x1 := rng.Float64()*float64(w)*1.5 - float64(w)*0.25
		y1 := rng.Float64()*float64(h)*1.5 - float64(h)*0.25
		box := types.Box{
			X1: x1,
			Y1: y1,
			X2: x1 + 0.001 + rng.Float64()*float64(w),
			Y2: y1 + 0.001 + rng.Float64()*float64(h),
		}
		margin := rng.Float64() * 3

		r := Expand(box, margin, w, h)
		if r.X1 < 0 || r.X1 > r.X2 || r.X2 > w {
			t.Fatalf("x out of bounds: box=%+v margin=%f img=%dx%d -> %+v", box, margin, w, h, r)
		}
		if r.Y1 < 0 || r.Y1 > r.Y2 || r.Y2 > h {
			t.Fatalf("y out of bounds: box=%+v margin=%f img=%dx%d -> %+v", box, margin, w, h, r)
		}
	}
}

func TestExpand_ZeroMarginMatchesTruncatedBox(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		w, h := 1000, 800
		x1 := rng.Float64() * 500
		y1 := rng.Float64() * 400
		box := types.Box{X1: x1, Y1: y1, X2: x1 + 1 + rng.Float64()*400, Y2: y1 + 1 + rng.Float64()*300}

		got := Expand(box, 0, w, h)
		want := types.Rect{X1: int(box.X1), Y1: int(box.Y1), X2: int(box.X2), Y2: int(box.Y2)}
		if got != want {
			t.Fatalf("Expand(%+v, 0) = %+v, want %+v", box, got, want)
		}
	}
}

func BenchmarkExpand(b *testing.B) {
	box := types.Box{X1: 100, Y1: 100, X2: 300, Y2: 250}
	for i := 0; i < b.N; i++ {
		Expand(box, 0.1, 1920, 1080)
	}
}
