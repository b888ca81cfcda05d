package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"document-intelligence-platform/models"
	"document-intelligence-platform/utils"
)

func seedAnalyzed(store *fakeStore, chunker *ChunkingService, id, text string) {
	doc := &models.Document{
		ID:       id,
		Filename: id + ".txt",
		Status:   models.StatusComplete,
		FullText: text,
		Checksum: utils.Sha256Hex([]byte(text)),
	}
	store.add(doc)
	store.chunks[id] = chunker.ChunkText(text)
}

func TestCompareIdenticalDocuments(t *testing.T) {
	store := newFakeStore()
	chunker := NewChunkingService(100, 20)
	text := strings.Repeat("The agreement covers payment terms and delivery schedules. ", 20)
	seedAnalyzed(store, chunker, "left", text)
	seedAnalyzed(store, chunker, "right", text)

	c := NewComparator(store, NewMemoryAnalysisCache(), nil)
	result, err := c.Compare(context.Background(), "left", "right", CompareOptions{})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	if !result.Identical {
		t.Errorf("identical content not flagged")
	}
	if result.Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0", result.Similarity)
	}
	if len(result.ChunkDiffs) != 0 {
		t.Errorf("chunk diffs for identical content: %v", result.ChunkDiffs)
	}
}

func TestCompareEqualTextDifferentRawBytes(t *testing.T) {
	store := newFakeStore()
	chunker := NewChunkingService(100, 20)
	text := "Payment is due within thirty days of invoice receipt."
	seedAnalyzed(store, chunker, "plain", text)
	store.add(&models.Document{
		ID:       "reencoded",
		Filename: "reencoded.txt",
		Status:   models.StatusComplete,
		FullText: text,
		Checksum: utils.Sha256Hex([]byte(text + "\x00")),
	})
	store.chunks["reencoded"] = chunker.ChunkText(text)

	c := NewComparator(store, NewMemoryAnalysisCache(), nil)
	result, err := c.Compare(context.Background(), "plain", "reencoded", CompareOptions{})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	if result.Identical {
		t.Errorf("different raw bytes flagged identical")
	}
	if result.Similarity != 1.0 {
		t.Errorf("similarity = %v, want exactly 1.0 for equal text", result.Similarity)
	}
	if len(result.ChunkDiffs) != 0 {
		t.Errorf("chunk diffs for equal text: %v", result.ChunkDiffs)
	}
}

func TestCompareDocumentWithItself(t *testing.T) {
	store := newFakeStore()
	chunker := NewChunkingService(100, 20)
	seedAnalyzed(store, chunker, "solo", "The agreement covers payment terms and delivery schedules.")

	c := NewComparator(store, NewMemoryAnalysisCache(), nil)
	result, err := c.Compare(context.Background(), "solo", "solo", CompareOptions{})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	if !result.Identical {
		t.Errorf("self comparison not flagged identical")
	}
	if result.Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0", result.Similarity)
	}
	if len(result.ChunkDiffs) != 0 {
		t.Errorf("chunk diffs for self comparison: %v", result.ChunkDiffs)
	}
}

func TestCompareIsSymmetric(t *testing.T) {
	store := newFakeStore()
	chunker := NewChunkingService(100, 20)
	seedAnalyzed(store, chunker, "a", "Payment is due within thirty days of invoice receipt.")
	seedAnalyzed(store, chunker, "b", "Payment is due within sixty days of invoice receipt and approval.")

	c := NewComparator(store, NewMemoryAnalysisCache(), nil)
	ab, err := c.Compare(context.Background(), "a", "b", CompareOptions{})
	if err != nil {
		t.Fatalf("compare a,b: %v", err)
	}
	ba, err := c.Compare(context.Background(), "b", "a", CompareOptions{})
	if err != nil {
		t.Fatalf("compare b,a: %v", err)
	}

	if math.Abs(ab.Similarity-ba.Similarity) > 1e-9 {
		t.Errorf("similarity not symmetric: %v vs %v", ab.Similarity, ba.Similarity)
	}
	if ab.Similarity <= 0 || ab.Similarity >= 1 {
		t.Errorf("similarity = %v, want strictly between 0 and 1", ab.Similarity)
	}
}

func TestCompareRequiresAnalyzedDocuments(t *testing.T) {
	store := newFakeStore()
	chunker := NewChunkingService(100, 20)
	seedAnalyzed(store, chunker, "done", "Completed document text.")
	store.add(&models.Document{ID: "pending", Status: models.StatusParsing})

	c := NewComparator(store, NewMemoryAnalysisCache(), nil)
	if _, err := c.Compare(context.Background(), "done", "pending", CompareOptions{}); !errors.Is(err, models.ErrDocumentNotAnalyzed) {
		t.Fatalf("got %v, want not analyzed", err)
	}
	if _, err := c.Compare(context.Background(), "done", "ghost", CompareOptions{}); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	if got := CosineSimilarity("", ""); got != 1.0 {
		t.Errorf("two empty texts = %v, want 1.0", got)
	}
	if got := CosineSimilarity("some text", ""); got != 0.0 {
		t.Errorf("one empty text = %v, want 0.0", got)
	}
	if got := CosineSimilarity("alpha beta", "gamma delta"); got != 0.0 {
		t.Errorf("disjoint texts = %v, want 0.0", got)
	}
	if got := CosineSimilarity("Hello World", "hello world"); got != 1.0 {
		t.Errorf("case-folded texts = %v, want 1.0", got)
	}
}

func TestDiffChunks(t *testing.T) {
	mk := func(contents ...string) []models.Chunk {
		chunks := make([]models.Chunk, len(contents))
		for i, c := range contents {
			chunks[i] = models.Chunk{Index: i, Content: c}
		}
		return chunks
	}

	left := mk("intro", "terms", "closing")
	right := mk("intro", "revised terms", "closing", "appendix")

	diffs := DiffChunks(left, right)
	if len(diffs) != 2 {
		t.Fatalf("got %d diffs, want 2: %v", len(diffs), diffs)
	}
	if diffs[0].Type != "changed" || diffs[0].LeftIndex != 1 || diffs[0].RightIndex != 1 {
		t.Errorf("first diff = %+v, want changed at 1/1", diffs[0])
	}
	if diffs[1].Type != "added" || diffs[1].RightIndex != 3 {
		t.Errorf("second diff = %+v, want added at right 3", diffs[1])
	}
}

func TestDiffChunksRemoval(t *testing.T) {
	mk := func(contents ...string) []models.Chunk {
		chunks := make([]models.Chunk, len(contents))
		for i, c := range contents {
			chunks[i] = models.Chunk{Index: i, Content: c}
		}
		return chunks
	}

	diffs := DiffChunks(mk("a", "b", "c"), mk("a", "c"))
	if len(diffs) != 1 || diffs[0].Type != "removed" || diffs[0].LeftIndex != 1 {
		t.Fatalf("got %v, want single removal at left 1", diffs)
	}
}

func TestCompareNarrativeFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	chunker := NewChunkingService(100, 20)
	seedAnalyzed(store, chunker, "x", "Quarterly revenue was strong across all regions.")
	seedAnalyzed(store, chunker, "y", "Quarterly revenue declined in the eastern region.")

	engine := &fakeEngine{summarizeErrs: []error{models.ErrInferenceUnavailable}}
	c := NewComparator(store, NewMemoryAnalysisCache(), engine)

	result, err := c.Compare(context.Background(), "x", "y", CompareOptions{IncludeNarrative: true})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if result.Narrative != "" {
		t.Errorf("narrative present despite engine failure: %q", result.Narrative)
	}
}
