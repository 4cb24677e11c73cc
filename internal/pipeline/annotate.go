package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// HUDColor is the console cyan (#00fff7) used for boxes and labels
var HUDColor = color.NRGBA{R: 0x00, G: 0xff, B: 0xf7, A: 0xff}

const (
	labelOffsetY   = 14 // label sits this many pixels above the box's top-left corner
	fixedLineWidth = 3  // outline width of the plain dashboard
)

var labelFace font.Face = basicfont.Face7x13

// Style controls how detections are drawn
type Style struct {
	Color      color.Color
	PulseWidth bool // outline width grows with confidence
	Clamp      bool // clip boxes to the frame before drawing
}

// DefaultStyle is the metrics/alert console style
func DefaultStyle() Style {
	return Style{Color: HUDColor, PulseWidth: true, Clamp: true}
}

// LineWidth returns the outline width for a detection
func LineWidth(confidence float32, pulse bool) int {
	if !pulse {
		return fixedLineWidth
	}
	return int(math.Floor(2 + 4*float64(confidence)))
}

// HumanLabel formats the text drawn above a box
func HumanLabel(confidence float32) string {
	return fmt.Sprintf(humanLabelFmt, confidence)
}

// Annotate draws boxes and labels for the human detections on a copy of frame.
// The source frame is never modified.
func Annotate(frame image.Image, humans []Detection, style Style) *image.NRGBA {
	canvas := imaging.Clone(frame)
	c := style.Color
	if c == nil {
		c = HUDColor
	}

	for _, d := range humans {
		r := d.BBox.Rect()
		if style.Clamp {
			r = r.Intersect(canvas.Bounds())
		}
		if !r.Empty() {
			drawBox(canvas, r, c, LineWidth(d.Confidence, style.PulseWidth))
		}
		drawLabel(canvas, d.BBox.X1, d.BBox.Y1-labelOffsetY, HumanLabel(d.Confidence), c)
	}
	return canvas
}

// drawBox draws an outline of the given width inside r
func drawBox(img draw.Image, r image.Rectangle, c color.Color, width int) {
	if width < 1 {
		width = 1
	}
	src := image.NewUniform(c)
	bands := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), // top
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), // bottom
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), // left
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), // right
	}
	for _, b := range bands {
		draw.Draw(img, b.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel draws text with its top-left corner at (x, y)
func drawLabel(img draw.Image, x, y int, label string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: labelFace,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + labelFace.Metrics().Ascent},
	}
	d.DrawString(label)
}
