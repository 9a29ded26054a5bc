package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/core/analyzer"
	"github.com/sgdea/docucore/internal/models"
)

const systemPrompt = "Eres un asistente que responde preguntas sobre un único documento. " +
	"Responde únicamente con la información del contexto proporcionado. " +
	"Si la respuesta no está en el contexto, dilo explícitamente. " +
	"Responde en el idioma de la pregunta."

// Config tunes one query engine instance.
type Config struct {
	TopK          int
	ContextBudget int // context characters handed to the model
	GenTimeout    time.Duration
}

func (c *Config) defaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 24000
	}
	if c.GenTimeout <= 0 {
		c.GenTimeout = 45 * time.Second
	}
}

// Engine answers questions about a single processed document. Retrieval is
// scoped to that document's fragments, so answers never mix material across
// documents.
type Engine struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	cfg      Config
	log      zerolog.Logger
}

func NewEngine(db core.DbClient, emb core.EmbeddingProvider, llm core.LLMProvider, cfg Config, log zerolog.Logger) *Engine {
	cfg.defaults()
	return &Engine{
		db:       db,
		embedder: emb,
		llm:      llm,
		cfg:      cfg,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// Answer resolves one question against one document. The document must be
// procesado; anything earlier in its lifecycle yields ErrDocumentNotReady.
func (e *Engine) Answer(ctx context.Context, documentID, question string) (*models.ChatExchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}

	doc, err := e.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistenceFailure, err)
	}
	if doc == nil {
		return nil, core.ErrDocumentNotFound
	}
	if doc.Status != models.StatusProcessed {
		return nil, fmt.Errorf("%w: document is %s", core.ErrDocumentNotReady, doc.Status)
	}

	frags, err := e.retrieve(ctx, doc, question)
	if err != nil {
		return nil, err
	}

	contextText := e.buildContext(frags)

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenTimeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Contexto del documento %q:\n%s\n\nPregunta: %s", doc.Filename, contextText, question)
	answer, err := e.llm.Generate(genCtx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationUnavailable, err)
	}

	return &models.ChatExchange{
		DocumentID: documentID,
		Question:   question,
		Answer:     answer,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// retrieve picks the fragments most relevant to the question. Vector search
// when the question embeds, lexical overlap when the embedder is down, and
// pseudo-fragments built from the stored page text when the document carries
// no fragments at all.
func (e *Engine) retrieve(ctx context.Context, doc *models.Document, question string) ([]models.Fragment, error) {
	if e.embedder != nil {
		vecs, err := e.embedder.EmbedTexts(ctx, []string{question})
		if err == nil && len(vecs) == 1 {
			frags, err := e.db.SearchFragments(ctx, doc.ID, vecs[0], e.cfg.TopK)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrPersistenceFailure, err)
			}
			if len(frags) > 0 {
				return frags, nil
			}
		} else if err != nil {
			e.log.Warn().Err(err).Str("document_id", doc.ID).Msg("question embedding failed, using lexical retrieval")
		}
	}

	frags, err := e.db.FragmentsByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistenceFailure, err)
	}
	if len(frags) == 0 {
		frags = pseudoFragments(doc)
	}
	return rankLexical(frags, question, e.cfg.TopK), nil
}

// rankLexical orders fragments by token overlap with the question, stably so
// equal scores keep document order.
func rankLexical(frags []models.Fragment, question string, topK int) []models.Fragment {
	qTokens := map[string]bool{}
	for _, t := range analyzer.Tokens(question) {
		qTokens[t] = true
	}

	scored := make([]models.Fragment, len(frags))
	copy(scored, frags)
	score := func(f models.Fragment) int {
		n := 0
		for _, t := range analyzer.Tokens(f.Text) {
			if qTokens[t] {
				n++
			}
		}
		return n
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return score(scored[i]) > score(scored[j])
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// pseudoFragments derives retrieval units from the stored extraction when
// fragment persistence has nothing for this document.
func pseudoFragments(doc *models.Document) []models.Fragment {
	if doc.ContentJSON == nil {
		return nil
	}
	var frags []models.Fragment
	for _, p := range doc.ContentJSON.Extraction.Text.Pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		frags = append(frags, models.Fragment{
			DocumentID: doc.ID,
			Position:   p.PageNumber - 1,
			Text:       fmt.Sprintf("[Página %d]\n%s", p.PageNumber, p.Text),
		})
	}
	return frags
}

// buildContext concatenates fragments under the character budget. Fragments
// are admitted in relevance order and then re-sorted by position so the model
// sees the document's own ordering.
func (e *Engine) buildContext(frags []models.Fragment) string {
	var picked []models.Fragment
	used := 0
	for _, f := range frags {
		n := len(f.Text)
		if used+n > e.cfg.ContextBudget && len(picked) > 0 {
			break
		}
		picked = append(picked, f)
		used += n
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].Position < picked[j].Position
	})

	var sb strings.Builder
	for i, f := range picked {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(f.Text)
	}
	return sb.String()
}
