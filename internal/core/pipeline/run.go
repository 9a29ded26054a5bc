package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/core/analyzer"
	"github.com/sgdea/docucore/internal/models"
)

// ProcessOne runs the full pipeline for a single document ID. The claim is a
// compare-and-set on the stored status, so a concurrent claimant simply skips.
func (c *Coordinator) ProcessOne(ctx context.Context, docID string) error {
	// Fresh context: the run must not die with the request that enqueued it.
	runCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RunTimeout)
	defer cancel()

	doc, err := c.db.GetDocumentByID(runCtx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return core.ErrDocumentNotFound
	}

	claimed, err := c.db.ClaimDocument(runCtx, docID)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		c.log.Debug().Str("document_id", docID).Msg("claim lost, skipping")
		return nil
	}

	start := time.Now()
	log := c.log.With().Str("document_id", docID).Logger()
	log.Info().Str("filename", doc.Filename).Msg("processing started")

	hbCtx, stopHB := context.WithCancel(runCtx)
	defer stopHB()
	go c.heartbeat(hbCtx, docID)

	info, content, err := c.runStages(runCtx, doc)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("processing failed")
		return c.fail(docID, start, err)
	}

	proc := &models.ProcessingInfo{
		ProcessedAt:           time.Now().UTC(),
		ProcessingTimeSeconds: elapsed.Seconds(),
		PipelineVersion:       Version,
	}
	content.Processing = proc

	if err := c.db.CompleteDocument(runCtx, docID, info, content, proc); err != nil {
		log.Error().Err(err).Msg("completion write failed")
		return c.fail(docID, start, err)
	}

	log.Info().
		Dur("elapsed", elapsed).
		Int("total_pages", info.TotalPages).
		Int("total_chars", info.TotalChars).
		Bool("has_images", info.HasImages).
		Msg("processing finished")
	return nil
}

// fail records the attempt and lands the document in error. It uses a fresh
// context so a timed-out run still gets its diagnostics persisted.
func (c *Coordinator) fail(docID string, start time.Time, cause error) error {
	failCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	proc := &models.ProcessingInfo{
		ProcessedAt:           time.Now().UTC(),
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		PipelineVersion:       Version,
		Error:                 cause.Error(),
	}
	if err := c.db.FailDocument(failCtx, docID, proc); err != nil {
		c.log.Error().Err(err).Str("document_id", docID).Msg("failure write failed")
	}
	return cause
}

// runStages executes extraction, OCR, analysis and fragment persistence.
// OCR failures degrade the result; everything else aborts the run.
func (c *Coordinator) runStages(ctx context.Context, doc *models.Document) (*models.ContentInfo, *models.ContentJSON, error) {
	bucket, key := c.objectLocation(doc.StorageRef)
	data, err := c.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document bytes: %w", err)
	}

	ext, err := c.extractor.Extract(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}

	images := c.runOCR(ctx, ext)

	// Per-page text as it enters analysis: native extraction, or the OCR
	// recovery when the page is a scan and OCR found more than MuPDF did.
	ocrByPage := map[int][]string{}
	for _, img := range images {
		if img.OCRText != "" {
			ocrByPage[img.Page] = append(ocrByPage[img.Page], img.OCRText)
		}
	}

	pages := make([]analyzer.PageText, 0, len(ext.Pages))
	jsonPages := make([]models.PageText, 0, len(ext.Pages))
	for _, p := range ext.Pages {
		text := p.Text
		fromOCR := false
		if p.Scanned {
			recovered := strings.TrimSpace(strings.Join(ocrByPage[p.Index+1], "\n"))
			if utf8.RuneCountInString(recovered) > utf8.RuneCountInString(strings.TrimSpace(text)) {
				text = recovered
				fromOCR = true
			}
		}
		pages = append(pages, analyzer.PageText{Index: p.Index, Text: text, FromOCR: fromOCR})
		jsonPages = append(jsonPages, models.PageText{
			PageNumber: p.Index + 1,
			Text:       text,
			CharCount:  utf8.RuneCountInString(text),
			Scanned:    p.Scanned,
		})
	}

	imagesWithText := 0
	var ocrAll []string
	for _, img := range images {
		if img.HasText {
			imagesWithText++
			ocrAll = append(ocrAll, img.OCRText)
		}
	}

	summary := analyzer.Analyze(analyzer.Input{
		Pages:          pages,
		TotalImages:    len(images),
		ImagesWithText: imagesWithText,
		HasImages:      len(images) > 0,
	})

	var fullText strings.Builder
	for i, p := range jsonPages {
		if i > 0 {
			fullText.WriteString("\n")
		}
		fullText.WriteString(p.Text)
	}

	content := &models.ContentJSON{
		Extraction: models.Extraction{
			Text: models.TextContent{
				FullText:   strings.TrimSpace(fullText.String()),
				Pages:      jsonPages,
				TotalChars: summary.TotalChars,
				HasText:    summary.HasText,
			},
			Images: models.ImageContent{
				OCRText:        strings.Join(ocrAll, "\n"),
				Images:         images,
				TotalImages:    len(images),
				ImagesWithText: imagesWithText,
			},
			Metadata:   ext.Metadata,
			TotalPages: ext.TotalPages,
			HasImages:  summary.HasImages,
		},
		Analysis: models.Analysis{
			Keywords:       summary.Keywords,
			TotalChars:     summary.TotalChars,
			HasText:        summary.HasText,
			HasImages:      summary.HasImages,
			ImagesWithText: imagesWithText,
		},
	}

	info := &models.ContentInfo{
		TotalPages:     ext.TotalPages,
		TotalChars:     summary.TotalChars,
		HasImages:      summary.HasImages,
		HasText:        summary.HasText,
		ImagesWithText: imagesWithText,
	}

	if err := c.persistFragments(ctx, doc.ID, jsonPages); err != nil {
		return nil, nil, err
	}

	return info, content, nil
}

// runOCR recognizes all page images with bounded parallelism. Each image is
// an isolated sub-task: its failure is captured in the per-image record and
// never aborts the run.
func (c *Coordinator) runOCR(ctx context.Context, ext *core.ExtractionResult) []models.ImageInfo {
	var imgs []core.PageImage
	for _, p := range ext.Pages {
		imgs = append(imgs, p.Images...)
	}
	if len(imgs) == 0 {
		return nil
	}

	results := make([]models.ImageInfo, len(imgs))

	var g errgroup.Group
	g.SetLimit(c.cfg.OCRConcurrency)

	for i, im := range imgs {
		g.Go(func() error {
			b := im.Img.Bounds()
			info := models.ImageInfo{
				Page:       im.Page + 1,
				ImageIndex: im.Index,
				Width:      b.Dx(),
				Height:     b.Dy(),
			}

			ocrCtx, cancel := context.WithTimeout(ctx, c.cfg.OCRTimeout)
			defer cancel()

			res, err := c.recognizer.Recognize(ocrCtx, im)
			if err != nil {
				c.log.Warn().Err(err).Int("page", im.Page+1).Int("image", im.Index).Msg("ocr failed for image")
				info.Error = err.Error()
			} else {
				info.OCRText = res.Text
				info.Confidence = res.Confidence
				info.HasText = res.Text != ""
			}

			results[i] = info
			return nil
		})
	}
	_ = g.Wait()

	return results
}
