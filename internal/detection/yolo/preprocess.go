// Package yolo holds the model-independent parts of YOLOv8 inference:
// letterbox preprocessing, output decoding and non-maximum suppression.
package yolo

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// padGray is the letterbox fill value used by Ultralytics
var padGray = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox records how a source frame was mapped into the square model input
type Letterbox struct {
	Size  int     // model input edge in pixels
	Scale float32 // source pixels * Scale = input pixels
	PadX  int
	PadY  int
	SrcW  int
	SrcH  int
}

// ToSource maps a point in model input space back to source pixel space
func (l Letterbox) ToSource(x, y float32) (float32, float32) {
	return (x - float32(l.PadX)) / l.Scale, (y - float32(l.PadY)) / l.Scale
}

// Preprocess letterboxes frame into a size x size canvas and writes it into
// dst as planar RGB (CHW) normalized to [0, 1]. dst must hold 3*size*size values.
func Preprocess(frame image.Image, size int, dst []float32) Letterbox {
	b := frame.Bounds()
	lb := Letterbox{Size: size, SrcW: b.Dx(), SrcH: b.Dy(), Scale: 1}

	canvas := imaging.New(size, size, padGray)
	if lb.SrcW > 0 && lb.SrcH > 0 {
		lb.Scale = min(float32(size)/float32(lb.SrcW), float32(size)/float32(lb.SrcH))
		w := max(1, int(math.Round(float64(float32(lb.SrcW)*lb.Scale))))
		h := max(1, int(math.Round(float64(float32(lb.SrcH)*lb.Scale))))
		lb.PadX = (size - w) / 2
		lb.PadY = (size - h) / 2
		resized := imaging.Resize(frame, w, h, imaging.Linear)
		canvas = imaging.Paste(canvas, resized, image.Pt(lb.PadX, lb.PadY))
	}

	plane := size * size
	for y := 0; y < size; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			px := row[x*4:]
			dst[i] = float32(px[0]) / 255.0
			dst[plane+i] = float32(px[1]) / 255.0
			dst[2*plane+i] = float32(px[2]) / 255.0
		}
	}
	return lb
}
