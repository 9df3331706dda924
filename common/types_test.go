package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeTextureStagingData(t *testing.T) {
	data, err := DecodeTextureStagingData(bytes.NewReader(encodePNG(t, 3, 2)))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	require.Len(t, data.Pixels, 3*2*4)
	// Pixel (2, 1) is the last one.
	assert.Equal(t, []byte{2, 1, 200, 255}, data.Pixels[20:24])

	_, err = DecodeTextureStagingData(strings.NewReader("not an image"))
	assert.ErrorContains(t, err, "failed to decode image")
}

func TestLoadTextureStagingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sprite.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 4, 4), 0o644))

	data, err := LoadTextureStagingData(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), data.Width)

	_, err = LoadTextureStagingData(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorContains(t, err, "failed to open texture file")
}

func TestSolidTextureStagingData(t *testing.T) {
	data := SolidTextureStagingData(255, 255, 255, 255)
	assert.Equal(t, uint32(1), data.Width)
	assert.Equal(t, uint32(1), data.Height)
	assert.Equal(t, []byte{255, 255, 255, 255}, data.Pixels)
}
