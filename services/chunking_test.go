package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func reassemble(chunks []string) string {
	return strings.Join(chunks, "")
}

func TestChunkTextReconstructsInput(t *testing.T) {
	cs := NewChunkingService(1200, 200)

	inputs := []string{
		"",
		"short text",
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200),
		strings.Repeat("First paragraph line one.\nLine two.\n\n", 100),
		strings.Repeat("日本語のテキストが含まれる段落です。これは長い文章になります。", 120),
	}

	for _, input := range inputs {
		chunks := cs.ChunkText(input)
		var parts []string
		for _, ch := range chunks {
			parts = append(parts, ch.Content)
		}
		if got := reassemble(parts); got != input {
			t.Fatalf("chunks do not reconstruct input: len(got)=%d len(want)=%d", len(got), len(input))
		}
	}
}

func TestChunkTextSizeBounds(t *testing.T) {
	maxSize := 1200
	cs := NewChunkingService(maxSize, 200)

	input := strings.Repeat("Sentence number one here. Sentence number two here! Question three? ", 150)
	chunks := cs.ChunkText(input)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Content) > maxSize {
			t.Errorf("chunk %d exceeds max size: %d > %d", i, len(ch.Content), maxSize)
		}
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
		if ch.CharCount != len(ch.Content) {
			t.Errorf("chunk %d char count mismatch", i)
		}
	}
}

func TestChunkTextEmpty(t *testing.T) {
	cs := NewChunkingService(1200, 200)
	if chunks := cs.ChunkText(""); chunks != nil {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunkTextNeverSplitsRunes(t *testing.T) {
	cs := NewChunkingService(100, 20)
	input := strings.Repeat("ありがとうございました", 50)
	for i, ch := range cs.ChunkText(input) {
		if !utf8.ValidString(ch.Content) {
			t.Fatalf("chunk %d contains a split rune", i)
		}
	}
}

func TestChunkTextSingleChunkForSmallInput(t *testing.T) {
	cs := NewChunkingService(1200, 200)
	input := "A single small document."
	chunks := cs.ChunkText(input)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != input {
		t.Fatalf("chunk content mismatch: %q", chunks[0].Content)
	}
}
