package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/sgdea/docucore/internal/core"
)

// FitzExtractor derives page/text/image structure straight from the PDF
// container via MuPDF. It never attempts repair of malformed files.
type FitzExtractor struct{}

var _ core.Extractor = (*FitzExtractor)(nil)

func NewFitzExtractor() *FitzExtractor {
	return &FitzExtractor{}
}

func (e *FitzExtractor) Extract(ctx context.Context, data []byte) (*core.ExtractionResult, error) {
	if err := validatePDF(data); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", core.ErrCorruptDocument, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: document has no pages", core.ErrCorruptDocument)
	}

	result := &core.ExtractionResult{
		Pages:      make([]core.ExtractedPage, 0, total),
		TotalPages: total,
		Metadata:   pdfMetadata(doc),
	}

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d text: %v", core.ErrCorruptDocument, i, err)
		}

		page := core.ExtractedPage{Index: i, Text: text}

		if IsScannedPage(text) {
			// MuPDF exposes no embedded image objects, so the rendered page
			// raster stands in as the page's image buffer for OCR.
			img, err := doc.Image(i)
			if err != nil {
				return nil, fmt.Errorf("%w: page %d render: %v", core.ErrCorruptDocument, i, err)
			}
			page.Scanned = true
			page.Images = []core.PageImage{{Page: i, Index: 0, Img: img}}
		}

		result.Pages = append(result.Pages, page)
	}

	return result, nil
}

// validatePDF is the fail-fast container check ahead of MuPDF.
func validatePDF(data []byte) error {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing PDF header", core.ErrCorruptDocument)
	}
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCorruptDocument, err)
	}
	return nil
}

// IsScannedPage reports whether a page carries no machine-extractable text at
// all, which routes the page through OCR. A page with any native text, however
// short, is never rendered for recognition.
func IsScannedPage(nativeText string) bool {
	return strings.TrimSpace(nativeText) == ""
}

func pdfMetadata(doc *fitz.Document) map[string]string {
	raw := doc.Metadata()
	meta := make(map[string]string, len(raw))
	for _, k := range []string{"title", "author", "subject", "creator", "producer", "creationDate", "modDate"} {
		if v := strings.TrimSpace(raw[k]); v != "" {
			meta[k] = v
		}
	}
	return meta
}
