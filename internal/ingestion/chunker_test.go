package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyInput(t *testing.T) {
	chunker := NewChunker(1000, 200)

	assert.Nil(t, chunker.Chunk(""))
	assert.Nil(t, chunker.Chunk("   \n\t  "))
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	chunker := NewChunker(1000, 200)

	chunks := chunker.Chunk("We are a family bakery. We sell bread and pastries.")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "family bakery")
}

func TestChunkLongTextSplitsOnSentences(t *testing.T) {
	chunker := NewChunker(200, 40)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Our store opens every morning at eight and closes late in the evening. ")
	}

	chunks := chunker.Chunk(b.String())
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
		// A chunk may exceed the target by at most one sentence.
		assert.LessOrEqual(t, len(chunk), 200+100)
	}
}

func TestChunkOverlapCarriesTail(t *testing.T) {
	chunker := NewChunker(120, 40)

	text := "First sentence about products. Second sentence about services. " +
		"Third sentence about opening hours. Fourth sentence about delivery. " +
		"Fifth sentence about returns policy."

	chunks := chunker.Chunk(text)
	require.Greater(t, len(chunks), 1)

	// The second chunk starts with material from the end of the first.
	tail := chunks[0][len(chunks[0])-20:]
	words := strings.Fields(tail)
	require.NotEmpty(t, words)
	assert.Contains(t, chunks[1], words[len(words)-1])
}

func TestChunkerDefaults(t *testing.T) {
	chunker := NewChunker(0, -1)
	assert.Equal(t, 1000, chunker.chunkSize)
	assert.Equal(t, 200, chunker.chunkOverlap)
}
