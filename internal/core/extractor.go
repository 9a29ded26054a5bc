package core

import (
	"context"
	"image"
)

// PageImage is one raster image attributed to a page, fed to the OCR
// subsystem. Index distinguishes multiple images on the same page.
type PageImage struct {
	Page  int
	Index int
	Img   image.Image
}

// ExtractedPage carries a page's machine-extractable text (possibly empty)
// and any raster images that need OCR. Scanned marks pages whose native text
// fell below the extractor's threshold.
type ExtractedPage struct {
	Index   int
	Text    string
	Scanned bool
	Images  []PageImage
}

// ExtractionResult is the ordered structural view of one PDF.
type ExtractionResult struct {
	Pages      []ExtractedPage
	TotalPages int
	Metadata   map[string]string
}

// Extractor opens a PDF and yields its page structure. Implementations fail
// fast with ErrCorruptDocument on unparseable input.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*ExtractionResult, error)
}

// OCRResult is the recognized text of one image plus a confidence in [0,1].
type OCRResult struct {
	Text       string
	Confidence float64
}

// Recognizer runs OCR over a single image. An engine that cannot be invoked
// returns ErrOCRUnavailable.
type Recognizer interface {
	Recognize(ctx context.Context, img PageImage) (OCRResult, error)
}
