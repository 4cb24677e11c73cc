package detection

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"aeroguardian/internal/pipeline"
)

// wireDetection is the detection shape shared by the HTTP and gRPC inference services
type wireDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// encodeFrame serializes a frame as JPEG for remote inference
func encodeFrame(frame image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// toPipeline converts wire detections, resolving missing class names and
// truncating box coordinates to whole pixels. Detections below threshold are
// dropped even when the service ignored conf_threshold; NaN confidences pass
// through so the pipeline rejects them as malformed.
func toPipeline(in []wireDetection, labels Labels, threshold float32) ([]pipeline.Detection, error) {
	out := make([]pipeline.Detection, 0, len(in))
	for i, d := range in {
		if len(d.BBox) < 4 {
			return nil, fmt.Errorf("detection %d: bbox has %d values, want 4", i, len(d.BBox))
		}
		if d.Confidence < threshold {
			continue
		}
		class := d.Class
		if class == "" {
			class = labels.Name(d.ClassID)
		}
		out = append(out, pipeline.Detection{
			Class:      class,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			BBox: pipeline.BBox{
				X1: int(d.BBox[0]),
				Y1: int(d.BBox[1]),
				X2: int(d.BBox[2]),
				Y2: int(d.BBox[3]),
			},
		})
	}
	return out, nil
}
