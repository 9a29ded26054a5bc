package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/core/coretest"
	"github.com/sgdea/docucore/internal/models"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

type fakeLLM struct {
	err error
	// lastUser captures the prompt so tests can assert on the context the
	// model saw.
	lastUser string
}

func (f *fakeLLM) Generate(_ context.Context, _, user string) (string, error) {
	f.lastUser = user
	if f.err != nil {
		return "", f.err
	}
	return "respuesta generada", nil
}

func newTestEngine(db core.DbClient, emb core.EmbeddingProvider, llm core.LLMProvider) *Engine {
	return NewEngine(db, emb, llm, Config{TopK: 3, ContextBudget: 200, GenTimeout: time.Second}, zerolog.Nop())
}

func seedProcessed(t *testing.T, db *coretest.MemStore, id string, pages ...string) {
	t.Helper()
	ctx := context.Background()

	jsonPages := make([]models.PageText, len(pages))
	var frags []models.Fragment
	for i, text := range pages {
		jsonPages[i] = models.PageText{PageNumber: i + 1, Text: text, CharCount: len(text)}
		frags = append(frags, models.Fragment{
			ID:         fmt.Sprintf("%s-f%d", id, i),
			DocumentID: id,
			Position:   i,
			Text:       text,
			Embedding:  []float32{float32(len(text))},
		})
	}

	require.NoError(t, db.CreateDocument(ctx, &models.Document{
		ID:       id,
		Filename: id + ".pdf",
		Status:   models.StatusPending,
	}))
	claimed, err := db.ClaimDocument(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, db.CompleteDocument(ctx, id,
		&models.ContentInfo{TotalPages: len(pages), HasText: true},
		&models.ContentJSON{Extraction: models.Extraction{Text: models.TextContent{Pages: jsonPages}}},
		&models.ProcessingInfo{PipelineVersion: "2.0"},
	))
	require.NoError(t, db.InsertFragments(ctx, frags))
}

func TestAnswerHappyPath(t *testing.T) {
	db := coretest.NewMemStore()
	seedProcessed(t, db, "doc-a", "El contrato vence en diciembre.", "La renta mensual es de 900 euros.")

	llm := &fakeLLM{}
	e := newTestEngine(db, &fakeEmbedder{}, llm)

	ex, err := e.Answer(context.Background(), "doc-a", "¿Cuándo vence el contrato?")
	require.NoError(t, err)
	assert.Equal(t, "respuesta generada", ex.Answer)
	assert.Equal(t, "doc-a", ex.DocumentID)
	assert.Contains(t, llm.lastUser, "contrato")
}

func TestAnswerDocumentNotFound(t *testing.T) {
	e := newTestEngine(coretest.NewMemStore(), &fakeEmbedder{}, &fakeLLM{})

	_, err := e.Answer(context.Background(), "missing", "¿hola?")
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
}

func TestAnswerDocumentNotReady(t *testing.T) {
	db := coretest.NewMemStore()
	ctx := context.Background()

	for _, st := range []models.Status{models.StatusPending, models.StatusProcessing, models.StatusError} {
		id := "doc-" + string(st)
		require.NoError(t, db.CreateDocument(ctx, &models.Document{ID: id, Status: st}))

		e := newTestEngine(db, &fakeEmbedder{}, &fakeLLM{})
		_, err := e.Answer(ctx, id, "¿hola?")
		assert.True(t, errors.Is(err, core.ErrDocumentNotReady), string(st))
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	db := coretest.NewMemStore()
	seedProcessed(t, db, "doc-a", "texto")

	e := newTestEngine(db, &fakeEmbedder{}, &fakeLLM{})
	_, err := e.Answer(context.Background(), "doc-a", "   ")
	assert.Error(t, err)
}

func TestAnswerGenerationUnavailable(t *testing.T) {
	db := coretest.NewMemStore()
	seedProcessed(t, db, "doc-a", "texto del documento")

	e := newTestEngine(db, &fakeEmbedder{}, &fakeLLM{err: errors.New("backend down")})
	_, err := e.Answer(context.Background(), "doc-a", "¿de qué trata?")
	assert.True(t, errors.Is(err, core.ErrGenerationUnavailable))

	// The failed call never mutates document state.
	doc, _ := db.GetDocumentByID(context.Background(), "doc-a")
	assert.Equal(t, models.StatusProcessed, doc.Status)
}

func TestAnswerLexicalFallbackWhenEmbedderDown(t *testing.T) {
	db := coretest.NewMemStore()
	seedProcessed(t, db, "doc-a",
		"Cláusula sobre la garantía del inmueble.",
		"Datos bancarios para la transferencia.",
	)

	llm := &fakeLLM{}
	e := newTestEngine(db, &fakeEmbedder{err: errors.New("embedder down")}, llm)

	ex, err := e.Answer(context.Background(), "doc-a", "¿qué dice la garantía?")
	require.NoError(t, err)
	assert.NotEmpty(t, ex.Answer)
	assert.Contains(t, llm.lastUser, "garantía")
}

func TestAnswerScopedToDocument(t *testing.T) {
	db := coretest.NewMemStore()
	seedProcessed(t, db, "doc-a", "Informe de ventas del primer trimestre.")
	seedProcessed(t, db, "doc-b", "Secreto industrial: fórmula castaña-9.")

	llm := &fakeLLM{}
	e := newTestEngine(db, &fakeEmbedder{err: errors.New("embedder down")}, llm)

	_, err := e.Answer(context.Background(), "doc-a", "¿cuál es la fórmula castaña?")
	require.NoError(t, err)

	// Retrieval never leaves the named document, even when the question
	// matches another document's content.
	assert.NotContains(t, llm.lastUser, "castaña-9")
	assert.Contains(t, llm.lastUser, "ventas")
}

func TestAnswerPseudoFragmentsWhenNoneStored(t *testing.T) {
	db := coretest.NewMemStore()
	ctx := context.Background()

	require.NoError(t, db.CreateDocument(ctx, &models.Document{ID: "doc-a", Status: models.StatusPending}))
	claimed, err := db.ClaimDocument(ctx, "doc-a")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, db.CompleteDocument(ctx, "doc-a",
		&models.ContentInfo{TotalPages: 1, HasText: true},
		&models.ContentJSON{Extraction: models.Extraction{Text: models.TextContent{
			Pages: []models.PageText{{PageNumber: 1, Text: "Acta de la reunión anual."}},
		}}},
		&models.ProcessingInfo{},
	))

	llm := &fakeLLM{}
	e := newTestEngine(db, &fakeEmbedder{}, llm)

	_, err = e.Answer(ctx, "doc-a", "¿qué contiene el acta?")
	require.NoError(t, err)
	assert.Contains(t, llm.lastUser, "reunión")
}

func TestBuildContextRespectsBudgetAndOrder(t *testing.T) {
	e := newTestEngine(coretest.NewMemStore(), &fakeEmbedder{}, &fakeLLM{})
	e.cfg.ContextBudget = 30

	frags := []models.Fragment{
		{Position: 2, Text: strings.Repeat("b", 20)},
		{Position: 0, Text: strings.Repeat("a", 20)},
		{Position: 1, Text: strings.Repeat("c", 20)},
	}

	got := e.buildContext(frags)

	// Only the most relevant fragment fits the budget; the rest are
	// dropped, never head-truncated.
	assert.Equal(t, strings.Repeat("b", 20), got)
}

func TestRankLexical(t *testing.T) {
	frags := []models.Fragment{
		{Position: 0, Text: "nada relevante aquí"},
		{Position: 1, Text: "la garantía cubre el inmueble y la garantía es anual"},
		{Position: 2, Text: "garantía mencionada una vez"},
	}

	ranked := rankLexical(frags, "¿qué garantía tiene el inmueble?", 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Position)
	assert.Equal(t, 2, ranked[1].Position)
}
