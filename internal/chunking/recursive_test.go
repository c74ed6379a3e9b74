package chunking

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecursiveOverlapValidation(t *testing.T) {
	_, err := NewRecursiveOverlap(0, 0.2)
	assert.Error(t, err)

	_, err = NewRecursiveOverlap(100, 1.0)
	assert.Error(t, err)

	c, err := NewRecursiveOverlap(100, -0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, c.chunkOverlap)
}

func TestRecursiveOverlapShortTextIsSingleChunk(t *testing.T) {
	c, err := NewRecursiveOverlap(100, 0.2)
	require.NoError(t, err)

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{
		{Source: "a.pdf", Text: "  short text  "},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "short text", resp.Chunks[0].Text)
	assert.Equal(t, "a.pdf", resp.Chunks[0].Source)
	assert.Equal(t, 10, resp.Chunks[0].LenCharacters)
}

func TestRecursiveOverlapRespectsChunkSize(t *testing.T) {
	c, err := NewRecursiveOverlap(40, 0.2)
	require.NoError(t, err)

	text := "First paragraph about contracts.\n\nSecond paragraph about torts and liability. It continues with more detail. And even more.\n\nThird one."
	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "doc.pdf", Text: text}}})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Chunks)

	for _, ch := range resp.Chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 40, "chunk %q exceeds size", ch.Text)
		assert.Equal(t, utf8.RuneCountInString(ch.Text), ch.LenCharacters)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
	}
}

func TestRecursiveOverlapCoversAllContent(t *testing.T) {
	c, err := NewRecursiveOverlap(50, 0)
	require.NoError(t, err)

	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar papa"
	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "w.pdf", Text: text}}})
	require.NoError(t, err)

	joined := " "
	for _, ch := range resp.Chunks {
		joined += ch.Text + " "
	}
	for _, word := range strings.Fields(text) {
		assert.Contains(t, joined, " "+word+" ")
	}
}

func TestRecursiveOverlapHardSlicesUnbrokenText(t *testing.T) {
	c, err := NewRecursiveOverlap(10, 0)
	require.NoError(t, err)

	text := strings.Repeat("x", 35)
	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "x.pdf", Text: text}}})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 4)
	assert.Equal(t, strings.Repeat("x", 10), resp.Chunks[0].Text)
	assert.Equal(t, strings.Repeat("x", 5), resp.Chunks[3].Text)
}

func TestRecursiveOverlapPrependsPreviousTail(t *testing.T) {
	c, err := NewRecursiveOverlap(20, 0.5)
	require.NoError(t, err)

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{
		{Source: "o.pdf", Text: "aaaaaaaaaaaaaaaa\n\nbbbbbbbbbb"},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)

	assert.Equal(t, "aaaaaaaaaaaaaaaa", resp.Chunks[0].Text)
	// Second chunk carries a 10-char tail of the first, clamped to chunk size.
	assert.Equal(t, "aaaaaaaaaabbbbbbbbbb", resp.Chunks[1].Text)
	assert.LessOrEqual(t, utf8.RuneCountInString(resp.Chunks[1].Text), 20)
}

func TestRecursiveOverlapMultipleItemsKeepSources(t *testing.T) {
	c, err := NewRecursiveOverlap(100, 0.2)
	require.NoError(t, err)

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{
		{Source: "a.pdf", Text: "first document"},
		{Source: "b.pdf", Text: "second document"},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, "a.pdf", resp.Chunks[0].Source)
	assert.Equal(t, "b.pdf", resp.Chunks[1].Source)
}

func TestRecursiveOverlapEmptyTextProducesNoChunks(t *testing.T) {
	c, err := NewRecursiveOverlap(100, 0.2)
	require.NoError(t, err)

	resp, err := c.Chunk(context.Background(), Request{Items: []Item{{Source: "e.pdf", Text: "   \n\n  "}}})
	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
}
