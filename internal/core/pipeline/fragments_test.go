package pipeline

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgdea/docucore/internal/models"
)

func chunkCoordinator(target, overlap int) *Coordinator {
	return NewCoordinator(nil, nil, nil, nil, nil, Config{
		TargetTokens:  target,
		OverlapTokens: overlap,
	}, zerolog.Nop())
}

func TestChunkPagesEmpty(t *testing.T) {
	c := chunkCoordinator(100, 0)
	assert.Nil(t, c.chunkPages(nil))
	assert.Nil(t, c.chunkPages([]models.PageText{{PageNumber: 1, Text: "   "}}))
}

func TestChunkPagesCarriesPageMarkers(t *testing.T) {
	c := chunkCoordinator(300, 0)
	chunks := c.chunkPages([]models.PageText{
		{PageNumber: 1, Text: "Hola"},
		{PageNumber: 2, Text: "Mundo"},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].pos)
	assert.Contains(t, chunks[0].text, "[Página 1]")
	assert.Contains(t, chunks[0].text, "[Página 2]")
	assert.Contains(t, chunks[0].text, "Hola")
	assert.Contains(t, chunks[0].text, "Mundo")
}

func TestChunkPagesSplitsOnTargetTokens(t *testing.T) {
	c := chunkCoordinator(10, 0)
	line := strings.Repeat("palabra ", 6) // ~12 tokens per line

	chunks := c.chunkPages([]models.PageText{
		{PageNumber: 1, Text: line + "\n" + line + "\n" + line},
	})

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.pos)
		assert.Positive(t, ch.tokens)
	}
}

func TestChunkPagesOverlapSeedsNextChunk(t *testing.T) {
	c := chunkCoordinator(10, 5)
	chunks := c.chunkPages([]models.PageText{
		{PageNumber: 1, Text: "primera linea con bastantes palabras aqui\nsegunda linea igual de larga\ntercera linea final"},
	})

	require.Greater(t, len(chunks), 1)
	// The tail of one chunk reappears at the head of the next.
	firstLines := strings.Split(chunks[0].text, "\n")
	tail := firstLines[len(firstLines)-1]
	assert.True(t, strings.HasPrefix(chunks[1].text, tail))
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("hola"))
	assert.Equal(t, 2, approxTokens("hola mun"))
	// Runes, not bytes.
	assert.Equal(t, 1, approxTokens("añal"))
}
