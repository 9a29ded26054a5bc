package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/models"
)

// persistFragments chunks the page text, embeds the chunks and stores them
// for scoped retrieval. Embedding is best effort: a provider outage leaves
// fragments without vectors and the chat engine falls back to lexical
// matching. Fragment persistence itself is not optional.
func (c *Coordinator) persistFragments(ctx context.Context, docID string, pages []models.PageText) error {
	chunks := c.chunkPages(pages)
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	frags := make([]models.Fragment, len(chunks))
	for i, ch := range chunks {
		frags[i] = models.Fragment{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Position:   ch.pos,
			Text:       ch.text,
			TokenCount: ch.tokens,
			CreatedAt:  now,
		}
	}

	c.embedBatches(ctx, frags)

	if err := c.db.InsertFragments(ctx, frags); err != nil {
		return fmt.Errorf("%w: store fragments: %v", core.ErrPersistenceFailure, err)
	}
	return nil
}

// embedBatches fills Embedding on as many fragments as the provider allows.
// Failed batches are logged and left without vectors.
func (c *Coordinator) embedBatches(ctx context.Context, frags []models.Fragment) {
	if c.embedder == nil {
		return
	}
	for start := 0; start < len(frags); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(frags) {
			end = len(frags)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = frags[i].Text
		}
		vecs, err := c.embedder.EmbedTexts(ctx, texts)
		if err != nil || len(vecs) != len(texts) {
			c.log.Warn().Err(err).Int("batch_start", start).Msg("embedding batch failed, fragments stored without vectors")
			continue
		}
		for i := start; i < end; i++ {
			frags[i].Embedding = vecs[i-start]
		}
	}
}

type chunk struct {
	pos    int
	text   string
	tokens int
}

// chunkPages groups page lines into token-bounded chunks with optional tail
// overlap. Each page contributes a "[Página N]" marker so an answer can cite
// where its material came from.
func (c *Coordinator) chunkPages(pages []models.PageText) []chunk {
	var lines []string
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[Página %d]", p.PageNumber))
		for _, ln := range strings.Split(text, "\n") {
			if ln = strings.TrimSpace(ln); ln != "" {
				lines = append(lines, ln)
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}

	var (
		chunks []chunk
		buf    []string
		tokSum int
	)

	flush := func() {
		if tokSum == 0 {
			return
		}
		chunks = append(chunks, chunk{
			pos:    len(chunks),
			text:   strings.Join(buf, "\n"),
			tokens: tokSum,
		})

		// Keep a tail whose token sum ≈ OverlapTokens as seed of the next
		// chunk, preserving original line order.
		if c.cfg.OverlapTokens > 0 {
			var keep []string
			remain := c.cfg.OverlapTokens
			for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
				keep = append([]string{buf[j]}, keep...)
				remain -= approxTokens(buf[j])
			}
			buf = keep
			tokSum = 0
			for _, s := range buf {
				tokSum += approxTokens(s)
			}
		} else {
			buf = buf[:0]
			tokSum = 0
		}
	}

	for _, ln := range lines {
		buf = append(buf, ln)
		tokSum += approxTokens(ln)
		if tokSum >= c.cfg.TargetTokens {
			flush()
		}
	}
	flush()

	return chunks
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
