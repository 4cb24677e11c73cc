package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
)

// fakeDetector returns canned detections and counts calls
type fakeDetector struct {
	detections []Detection
	err        error
	calls      atomic.Int32
	block      func(ctx context.Context, call int32) error
}

func (f *fakeDetector) Name() string { return "fake" }

func (f *fakeDetector) Healthy(context.Context) bool { return true }

func (f *fakeDetector) Predict(ctx context.Context, frame image.Image, threshold float32) ([]Detection, error) {
	call := f.calls.Add(1)
	if f.block != nil {
		if err := f.block(ctx, call); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Detection, 0, len(f.detections))
	for _, d := range f.detections {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out, nil
}

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func person(conf float32, x1, y1, x2, y2 int) Detection {
	return Detection{Class: "person", Confidence: conf, BBox: BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

func isHUD(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 == 0x00 && g>>8 == 0xff && b>>8 == 0xf7
}

func atomicAdd(p *int32, d int32) int32 { return atomic.AddInt32(p, d) }
func atomicLoad(p *int32) int32         { return atomic.LoadInt32(p) }
func atomicStore(p *int32, v int32)     { atomic.StoreInt32(p, v) }
