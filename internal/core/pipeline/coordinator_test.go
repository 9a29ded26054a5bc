package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/core/coretest"
	"github.com/sgdea/docucore/internal/models"
)

type fakeExtractor struct {
	result *core.ExtractionResult
	err    error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (*core.ExtractionResult, error) {
	return f.result, f.err
}

type fakeRecognizer struct {
	mu      sync.Mutex
	byPage  map[int]string
	errPage map[int]error
	calls   int
}

func (f *fakeRecognizer) Recognize(_ context.Context, img core.PageImage) (core.OCRResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errPage[img.Page]; ok {
		return core.OCRResult{}, err
	}
	return core.OCRResult{Text: f.byPage[img.Page], Confidence: 0.9}, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func pageImg(page int) core.PageImage {
	return core.PageImage{Page: page, Index: 0, Img: image.NewRGBA(image.Rect(0, 0, 8, 8))}
}

// scenario: page 1 native "Hola", pages 2-3 image-only scans recognized as
// "Mundo" and "" respectively.
func scenarioExtraction() *core.ExtractionResult {
	return &core.ExtractionResult{
		TotalPages: 3,
		Pages: []core.ExtractedPage{
			{Index: 0, Text: "Hola"},
			{Index: 1, Text: "", Scanned: true, Images: []core.PageImage{pageImg(1)}},
			{Index: 2, Text: "", Scanned: true, Images: []core.PageImage{pageImg(2)}},
		},
	}
}

func newTestCoordinator(db core.DbClient, obj core.ObjectClient, ex core.Extractor, rec core.Recognizer, emb core.EmbeddingProvider) *Coordinator {
	return NewCoordinator(db, obj, ex, rec, emb, Config{
		Workers:        1,
		Bucket:         "test-bucket",
		OCRConcurrency: 2,
		OCRTimeout:     time.Second,
		RunTimeout:     10 * time.Second,
		HeartbeatEvery: 50 * time.Millisecond,
	}, zerolog.Nop())
}

func seedDocument(t *testing.T, db *coretest.MemStore, obj *coretest.MemObjects) *models.Document {
	t.Helper()
	ctx := context.Background()

	url, err := obj.UploadFile(ctx, "test-bucket", "doc-1/informe.pdf", []byte("%PDF-1.7 fake"), "application/pdf")
	require.NoError(t, err)

	doc := &models.Document{
		ID:         "doc-1",
		Filename:   "informe.pdf",
		SizeBytes:  13,
		StorageRef: url,
		Status:     models.StatusPending,
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, db.CreateDocument(ctx, doc))
	return doc
}

func TestProcessOneScenario(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	rec := &fakeRecognizer{byPage: map[int]string{1: "Mundo", 2: ""}}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, rec, &fakeEmbedder{})

	require.NoError(t, c.ProcessOne(context.Background(), "doc-1"))

	doc, err := db.GetDocumentByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, models.StatusProcessed, doc.Status)
	require.NotNil(t, doc.ContentInfo)
	assert.Equal(t, 3, doc.ContentInfo.TotalPages)
	assert.Equal(t, 9, doc.ContentInfo.TotalChars)
	assert.True(t, doc.ContentInfo.HasText)
	assert.True(t, doc.ContentInfo.HasImages)
	assert.Equal(t, 1, doc.ContentInfo.ImagesWithText)

	require.NotNil(t, doc.Processing)
	assert.Equal(t, Version, doc.Processing.PipelineVersion)
	assert.Empty(t, doc.Processing.Error)
	assert.GreaterOrEqual(t, doc.Processing.ProcessingTimeSeconds, 0.0)

	require.NotNil(t, doc.ContentJSON)
	pages := doc.ContentJSON.Extraction.Text.Pages
	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "Hola", pages[0].Text)
	assert.Equal(t, "Mundo", pages[1].Text)
	assert.True(t, pages[1].Scanned)
	assert.Equal(t, "", pages[2].Text)

	frags, err := db.FragmentsByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotEmpty(t, frags)
	assert.NotNil(t, frags[0].Embedding)
}

func TestProcessOneClaimIsExclusive(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	rec := &fakeRecognizer{byPage: map[int]string{1: "Mundo", 2: ""}}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, rec, &fakeEmbedder{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.ProcessOne(context.Background(), "doc-1")
		}()
	}
	wg.Wait()

	// Exactly one run claimed the document; the rest skipped and wrote
	// nothing. A second completion attempt would have failed the CAS and
	// flipped the document to error.
	doc, err := db.GetDocumentByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, doc.Status)
	require.NotNil(t, doc.Processing)
	assert.Empty(t, doc.Processing.Error)
}

func TestProcessOneOCRFailureIsNotFatal(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	rec := &fakeRecognizer{
		byPage:  map[int]string{1: "Mundo"},
		errPage: map[int]error{2: fmt.Errorf("%w: engine crashed", core.ErrOCRUnavailable)},
	}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, rec, &fakeEmbedder{})

	require.NoError(t, c.ProcessOne(context.Background(), "doc-1"))

	doc, _ := db.GetDocumentByID(context.Background(), "doc-1")
	assert.Equal(t, models.StatusProcessed, doc.Status)

	imgs := doc.ContentJSON.Extraction.Images.Images
	require.Len(t, imgs, 2)
	var failed *models.ImageInfo
	for i := range imgs {
		if imgs[i].Page == 3 {
			failed = &imgs[i]
		}
	}
	require.NotNil(t, failed)
	assert.NotEmpty(t, failed.Error)
	assert.False(t, failed.HasText)
}

func TestProcessOneAllOCRFailuresStillProcessed(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	ext := &core.ExtractionResult{
		TotalPages: 2,
		Pages: []core.ExtractedPage{
			{Index: 0, Text: "", Scanned: true, Images: []core.PageImage{pageImg(0)}},
			{Index: 1, Text: "", Scanned: true, Images: []core.PageImage{pageImg(1)}},
		},
	}
	rec := &fakeRecognizer{errPage: map[int]error{
		0: fmt.Errorf("%w: engine crashed", core.ErrOCRUnavailable),
		1: fmt.Errorf("%w: engine crashed", core.ErrOCRUnavailable),
	}}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: ext}, rec, &fakeEmbedder{})

	require.NoError(t, c.ProcessOne(context.Background(), "doc-1"))

	doc, _ := db.GetDocumentByID(context.Background(), "doc-1")
	assert.Equal(t, models.StatusProcessed, doc.Status)
	assert.False(t, doc.ContentInfo.HasText)
	assert.True(t, doc.ContentInfo.HasImages)
	assert.Zero(t, doc.ContentInfo.TotalChars)
	assert.Zero(t, doc.ContentInfo.ImagesWithText)
}

func TestProcessOneNoOCRForNativePages(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	ext := &core.ExtractionResult{
		TotalPages: 1,
		Pages: []core.ExtractedPage{
			{Index: 0, Text: "Contrato de arrendamiento entre las partes firmantes."},
		},
	}
	rec := &fakeRecognizer{}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: ext}, rec, &fakeEmbedder{})

	require.NoError(t, c.ProcessOne(context.Background(), "doc-1"))

	assert.Zero(t, rec.calls)

	doc, _ := db.GetDocumentByID(context.Background(), "doc-1")
	assert.Equal(t, models.StatusProcessed, doc.Status)
	assert.False(t, doc.ContentInfo.HasImages)
	assert.Zero(t, doc.ContentInfo.ImagesWithText)
}

func TestProcessOneCorruptDocument(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	extErr := fmt.Errorf("%w: missing PDF header", core.ErrCorruptDocument)
	c := newTestCoordinator(db, obj, &fakeExtractor{err: extErr}, &fakeRecognizer{}, &fakeEmbedder{})

	err := c.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCorruptDocument))

	doc, _ := db.GetDocumentByID(context.Background(), "doc-1")
	assert.Equal(t, models.StatusError, doc.Status)
	require.NotNil(t, doc.Processing)
	assert.Contains(t, doc.Processing.Error, "missing PDF header")
	assert.Equal(t, Version, doc.Processing.PipelineVersion)

	// A failed run leaves no extraction artifacts behind.
	assert.Nil(t, doc.ContentInfo)
	assert.Nil(t, doc.ContentJSON)
}

func TestProcessOneEmbedderOutageStillCompletes(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	seedDocument(t, db, obj)

	rec := &fakeRecognizer{byPage: map[int]string{1: "Mundo", 2: ""}}
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, rec, emb)

	require.NoError(t, c.ProcessOne(context.Background(), "doc-1"))

	doc, _ := db.GetDocumentByID(context.Background(), "doc-1")
	assert.Equal(t, models.StatusProcessed, doc.Status)

	// Fragments stored without vectors so lexical retrieval still works.
	frags, err := db.FragmentsByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotEmpty(t, frags)
	for _, f := range frags {
		assert.Nil(t, f.Embedding)
	}
}

func TestProcessOneUnknownDocument(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()

	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, &fakeRecognizer{}, &fakeEmbedder{})

	err := c.ProcessOne(context.Background(), "nope")
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
}

func TestProcessOneBareKeyStorageRef(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	ctx := context.Background()

	// storage_ref holds a plain object key; the run resolves it against the
	// configured bucket.
	_, err := obj.UploadFile(ctx, "test-bucket", "doc-1/informe.pdf", []byte("%PDF-1.7 fake"), "application/pdf")
	require.NoError(t, err)
	require.NoError(t, db.CreateDocument(ctx, &models.Document{
		ID:         "doc-1",
		Filename:   "informe.pdf",
		StorageRef: "doc-1/informe.pdf",
		Status:     models.StatusPending,
		ReceivedAt: time.Now().UTC(),
	}))

	rec := &fakeRecognizer{byPage: map[int]string{1: "Mundo", 2: ""}}
	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, rec, &fakeEmbedder{})

	require.NoError(t, c.ProcessOne(ctx, "doc-1"))

	doc, _ := db.GetDocumentByID(ctx, "doc-1")
	assert.Equal(t, models.StatusProcessed, doc.Status)
}

func TestHeartbeatKeepsRunOutOfStaleList(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	doc := seedDocument(t, db, obj)

	ctx := context.Background()
	claimed, err := db.ClaimDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	// No heartbeat yet: the run counts as stale.
	stale, err := db.ListStaleProcessing(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, db.Heartbeat(ctx, doc.ID, time.Now()))
	stale, err = db.ListStaleProcessing(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestProcessOneSkipsAlreadyClaimed(t *testing.T) {
	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	doc := seedDocument(t, db, obj)

	claimed, err := db.ClaimDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	c := newTestCoordinator(db, obj, &fakeExtractor{result: scenarioExtraction()}, &fakeRecognizer{}, &fakeEmbedder{})

	// Claim lost: not an error, and the other claimant's state is untouched.
	require.NoError(t, c.ProcessOne(context.Background(), doc.ID))

	got, _ := db.GetDocumentByID(context.Background(), doc.ID)
	assert.Equal(t, models.StatusProcessing, got.Status)
}
