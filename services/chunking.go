package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"document-intelligence-platform/models"
)

// ChunkingService splits normalized text into contiguous chunks. Every
// chunk is an exact substring of the input and chunks never overlap, so
// concatenating them in order reproduces the input byte for byte.
type ChunkingService struct {
	maxChunkSize  int
	minChunkSize  int
	sentenceRegex *regexp.Regexp
}

// NewChunkingService creates a chunking service. maxChunkSize bounds the
// byte length of a chunk, minChunkSize keeps boundary search from
// producing tiny fragments.
func NewChunkingService(maxChunkSize, minChunkSize int) *ChunkingService {
	if maxChunkSize <= 0 {
		maxChunkSize = 1200
	}
	if minChunkSize <= 0 || minChunkSize > maxChunkSize {
		minChunkSize = maxChunkSize / 6
	}
	return &ChunkingService{
		maxChunkSize:  maxChunkSize,
		minChunkSize:  minChunkSize,
		sentenceRegex: regexp.MustCompile(`[.!?]+[\s]`),
	}
}

// ChunkText splits text, preferring paragraph boundaries, then sentence
// boundaries, then a hard cut at the size limit.
func (cs *ChunkingService) ChunkText(text string) []models.Chunk {
	if text == "" {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for start < len(text) {
		end := len(text)
		if end-start > cs.maxChunkSize {
			end = start + cs.cutPoint(text[start:start+cs.maxChunkSize])
		}

		content := text[start:end]
		chunks = append(chunks, models.Chunk{
			Index:     len(chunks),
			Content:   content,
			CharCount: len(content),
			WordCount: len(strings.Fields(content)),
		})
		start = end
	}
	return chunks
}

// cutPoint picks where to end a chunk inside window, which is exactly
// maxChunkSize bytes. The separator stays with the left chunk.
func (cs *ChunkingService) cutPoint(window string) int {
	if idx := strings.LastIndex(window, "\n\n"); idx+2 >= cs.minChunkSize && idx >= 0 {
		return idx + 2
	}

	if locs := cs.sentenceRegex.FindAllStringIndex(window, -1); len(locs) > 0 {
		for i := len(locs) - 1; i >= 0; i-- {
			if locs[i][1] >= cs.minChunkSize {
				return locs[i][1]
			}
		}
	}

	if idx := strings.LastIndexByte(window, '\n'); idx+1 >= cs.minChunkSize && idx >= 0 {
		return idx + 1
	}
	if idx := strings.LastIndexByte(window, ' '); idx+1 >= cs.minChunkSize && idx >= 0 {
		return idx + 1
	}

	// Hard cut. Trim a trailing incomplete rune so the boundary never
	// splits a multi-byte character.
	cut := len(window)
	for cut > 0 {
		r, size := utf8.DecodeLastRuneInString(window[:cut])
		if r == utf8.RuneError && size == 1 {
			cut--
			continue
		}
		break
	}
	if cut < 1 {
		cut = len(window)
	}
	return cut
}
