package yolo

import (
	"fmt"
	"sort"
)

// DefaultIoUThreshold is the overlap above which a lower-scoring box of the same class is suppressed
const DefaultIoUThreshold = 0.45

// Candidate is one decoded box in source pixel coordinates
type Candidate struct {
	ClassID int
	Score   float32
	X1, Y1  float32
	X2, Y2  float32
}

// Area returns the box area, zero for degenerate boxes
func (c Candidate) Area() float32 {
	w, h := c.X2-c.X1, c.Y2-c.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Decode reads a YOLOv8 output tensor of shape (1, 4+numClasses, N), keeping
// anchors whose best class score reaches threshold. Boxes are mapped back to
// source pixels through lb and clipped to the source frame.
func Decode(output []float32, numClasses int, lb Letterbox, threshold float32) ([]Candidate, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("decode: numClasses must be positive, got %d", numClasses)
	}
	rows := 4 + numClasses
	if len(output) == 0 || len(output)%rows != 0 {
		return nil, fmt.Errorf("decode: output length %d is not a multiple of %d", len(output), rows)
	}
	if lb.Scale <= 0 {
		return nil, fmt.Errorf("decode: invalid letterbox scale %v", lb.Scale)
	}
	n := len(output) / rows

	var out []Candidate
	for i := 0; i < n; i++ {
		classID, score := 0, float32(-1)
		for c := 0; c < numClasses; c++ {
			if s := output[(4+c)*n+i]; s > score {
				classID, score = c, s
			}
		}
		if score < threshold {
			continue
		}

		cx, cy := output[i], output[n+i]
		w, h := output[2*n+i], output[3*n+i]
		x1, y1 := lb.ToSource(cx-w/2, cy-h/2)
		x2, y2 := lb.ToSource(cx+w/2, cy+h/2)

		out = append(out, Candidate{
			ClassID: classID,
			Score:   score,
			X1:      clampf(x1, 0, float32(lb.SrcW-1)),
			Y1:      clampf(y1, 0, float32(lb.SrcH-1)),
			X2:      clampf(x2, 0, float32(lb.SrcW-1)),
			Y2:      clampf(y2, 0, float32(lb.SrcH-1)),
		})
	}
	return out, nil
}

// NMS performs class-wise non-maximum suppression. The result is ordered by
// descending score.
func NMS(cands []Candidate, iouThreshold float32) []Candidate {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	suppressed := make([]bool, len(sorted))
	kept := make([]Candidate, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassID != sorted[i].ClassID {
				continue
			}
			if IoU(sorted[i], sorted[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// IoU computes the intersection over union of two boxes
func IoU(a, b Candidate) float32 {
	ix1, iy1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	ix2, iy2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	inter := Candidate{X1: ix1, Y1: iy1, X2: ix2, Y2: iy2}.Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampf(v, lo, hi float32) float32 {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// Anchors returns the number of predictions a YOLOv8 head emits for a square
// input of the given size (strides 8, 16 and 32)
func Anchors(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}
