package frame

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFormats(t *testing.T) {
	src := imaging.New(20, 10, color.NRGBA{B: 200, A: 255})

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, src))
	img, err := DecodeBytes(pngBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())

	jpg, err := EncodeJPEG(src)
	require.NoError(t, err)
	img, err = DecodeBytes(jpg)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeBytes([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = DecodeBytes(nil)
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = Decode(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestEncodeJPEGBase64(t *testing.T) {
	s, err := EncodeJPEGBase64(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = EncodeJPEGBase64(imaging.New(4, 4, color.White))
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, raw[:2])
}
