package ingestion

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

var sentenceBoundary = regexp.MustCompile(`(?m)([.!?])\s+`)

// Chunker splits source text into overlapping chunks on sentence boundaries.
// Sentences are accumulated until the target size is reached; the tail of
// each chunk seeds the next one so context survives the split.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := c.splitSentences(text)

	chunks := make([]string, 0)
	var current strings.Builder

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > c.chunkSize {
			chunk := strings.TrimSpace(current.String())
			chunks = append(chunks, chunk)

			current.Reset()
			current.WriteString(c.overlapTail(chunk))
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}

	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}

func (c *Chunker) splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed, using regexp fallback", zap.Error(err))
		return c.splitSentencesFallback(text)
	}

	sentences := make([]string, 0)
	for _, s := range doc.Sentences() {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}

	if len(sentences) == 0 {
		return c.splitSentencesFallback(text)
	}
	return sentences
}

func (c *Chunker) splitSentencesFallback(text string) []string {
	parts := sentenceBoundary.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

// overlapTail returns the last chunkOverlap characters of the chunk, cut
// forward to the next word boundary so the overlap never starts mid-word.
func (c *Chunker) overlapTail(chunk string) string {
	if c.chunkOverlap == 0 || len(chunk) <= c.chunkOverlap {
		return ""
	}
	tail := chunk[len(chunk)-c.chunkOverlap:]
	if idx := strings.IndexAny(tail, " \t\n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
