// Package frame decodes operator-supplied images and encodes annotated ones.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrBadFrame is returned for payloads that are not a decodable image
var ErrBadFrame = errors.New("frame is not a decodable image")

// JPEGQuality is used for every annotated frame leaving the service
const JPEGQuality = 85

// Decode reads an image, honouring EXIF orientation so phone uploads are upright
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrBadFrame)
	}
	return img, nil
}

// DecodeBytes is Decode over a byte slice
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrBadFrame)
	}
	return Decode(bytes.NewReader(data))
}

// EncodeJPEG encodes img as JPEG
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEGBase64 encodes img as base64 JPEG; a nil image yields ""
func EncodeJPEGBase64(img image.Image) (string, error) {
	if img == nil {
		return "", nil
	}
	data, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
