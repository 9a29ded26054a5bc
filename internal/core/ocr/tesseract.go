package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/sgdea/docucore/internal/core"
)

// maxPixels caps the raster fed to tesseract. Bigger page renders are
// downscaled first; recognized text still maps to the original page.
const maxPixels = 4_000_000

// TesseractRecognizer runs OCR through the tesseract C library. The language
// model is fixed per deployment (Spanish by default).
type TesseractRecognizer struct {
	lang      string
	available bool
}

var _ core.Recognizer = (*TesseractRecognizer)(nil)

func NewTesseractRecognizer(lang string) *TesseractRecognizer {
	if lang == "" {
		lang = "spa"
	}
	r := &TesseractRecognizer{lang: lang}
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return r
	}
	for _, l := range langs {
		if l == lang {
			r.available = true
			break
		}
	}
	return r
}

// Recognize extracts text from one image. The tesseract call is not context
// aware, so it runs on its own goroutine and the context bounds the wait.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img core.PageImage) (core.OCRResult, error) {
	if !r.available {
		return core.OCRResult{}, fmt.Errorf("%w: language %q not installed", core.ErrOCRUnavailable, r.lang)
	}
	if img.Img == nil {
		return core.OCRResult{}, fmt.Errorf("%w: empty image buffer", core.ErrOCRUnavailable)
	}

	encoded, err := encodePNG(downscale(img.Img))
	if err != nil {
		return core.OCRResult{}, fmt.Errorf("%w: encode page %d image %d: %v", core.ErrOCRUnavailable, img.Page, img.Index, err)
	}

	type outcome struct {
		res core.OCRResult
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := recognizeBytes(encoded, r.lang)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return core.OCRResult{}, fmt.Errorf("ocr page %d image %d: %w", img.Page, img.Index, ctx.Err())
	case out := <-done:
		return out.res, out.err
	}
}

func recognizeBytes(data []byte, lang string) (core.OCRResult, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(lang); err != nil {
		return core.OCRResult{}, fmt.Errorf("%w: set language: %v", core.ErrOCRUnavailable, err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return core.OCRResult{}, fmt.Errorf("%w: set image: %v", core.ErrOCRUnavailable, err)
	}

	text, err := client.Text()
	if err != nil {
		return core.OCRResult{}, fmt.Errorf("%w: recognize: %v", core.ErrOCRUnavailable, err)
	}

	return core.OCRResult{
		Text:       strings.TrimSpace(text),
		Confidence: meanConfidence(client),
	}, nil
}

// meanConfidence averages word-level confidences into [0,1]. An image with no
// recognizable words reports 0.
func meanConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes)) / 100.0
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// downscale shrinks oversized renders with nearest-neighbor sampling. OCR
// accuracy on document scans is insensitive to this at the sizes involved.
func downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 || w*h <= maxPixels {
		return img
	}

	ratio := float64(w*h) / float64(maxPixels)
	factor := 1
	for factor*factor < int(ratio)+1 {
		factor++
	}

	dw, dh := w/factor, h/factor
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*factor, b.Min.Y+y*factor))
		}
	}
	return dst
}
