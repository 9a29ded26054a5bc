package ocr

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgdea/docucore/internal/core"
)

func TestRecognizeUnavailableEngine(t *testing.T) {
	r := &TesseractRecognizer{lang: "spa", available: false}

	_, err := r.Recognize(context.Background(), core.PageImage{
		Img: image.NewRGBA(image.Rect(0, 0, 4, 4)),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOCRUnavailable))
}

func TestRecognizeNilImage(t *testing.T) {
	r := &TesseractRecognizer{lang: "spa", available: true}

	_, err := r.Recognize(context.Background(), core.PageImage{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOCRUnavailable))
}

func TestDownscaleKeepsSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	assert.Equal(t, img, downscale(img))
}

func TestDownscaleShrinksOversizedImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4000, 3000))
	out := downscale(img)

	b := out.Bounds()
	assert.LessOrEqual(t, b.Dx()*b.Dy(), maxPixels)
	assert.Positive(t, b.Dx())
	assert.Positive(t, b.Dy())
}

func TestEncodePNG(t *testing.T) {
	data, err := encodePNG(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}
