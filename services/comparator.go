package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"document-intelligence-platform/models"
	"document-intelligence-platform/utils"
)

// Comparator measures how similar two analyzed documents are and
// produces a chunk-level diff. Similarity is cosine distance over term
// frequencies: symmetric, and 1.0 for identical content.
type Comparator struct {
	engine InferenceEngine
	cache  AnalysisCache
	store  DocumentStore
}

func NewComparator(store DocumentStore, cache AnalysisCache, engine InferenceEngine) *Comparator {
	return &Comparator{store: store, cache: cache, engine: engine}
}

type CompareOptions struct {
	IncludeNarrative bool
}

type ChunkDiff struct {
	Type       string `json:"type"` // added, removed, changed
	LeftIndex  int    `json:"left_index"`
	RightIndex int    `json:"right_index"`
	Preview    string `json:"preview,omitempty"`
}

type ComparisonResult struct {
	LeftID     string      `json:"left_id"`
	RightID    string      `json:"right_id"`
	Similarity float64     `json:"similarity"`
	Identical  bool        `json:"identical"`
	ChunkDiffs []ChunkDiff `json:"chunk_diffs"`
	Narrative  string      `json:"narrative,omitempty"`
}

// Compare compares two documents by id. Both must be fully analyzed.
func (c *Comparator) Compare(ctx context.Context, leftID, rightID string, opts CompareOptions) (*ComparisonResult, error) {
	left, err := c.loadAnalyzed(ctx, leftID)
	if err != nil {
		return nil, err
	}
	right, err := c.loadAnalyzed(ctx, rightID)
	if err != nil {
		return nil, err
	}

	leftChunks, err := c.store.ListChunks(ctx, left.ID)
	if err != nil {
		return nil, err
	}
	rightChunks, err := c.store.ListChunks(ctx, right.ID)
	if err != nil {
		return nil, err
	}

	result := &ComparisonResult{
		LeftID:     left.ID,
		RightID:    right.ID,
		Similarity: CosineSimilarity(left.FullText, right.FullText),
		Identical:  left.Checksum == right.Checksum,
		ChunkDiffs: DiffChunks(leftChunks, rightChunks),
	}
	if result.Identical {
		result.Similarity = 1.0
	}

	if opts.IncludeNarrative && c.engine != nil {
		narrative, err := c.narrative(ctx, left, right, result)
		if err == nil {
			result.Narrative = narrative
		}
		// A missing narrative never fails the comparison.
	}
	return result, nil
}

func (c *Comparator) loadAnalyzed(ctx context.Context, id string) (*models.Document, error) {
	doc, err := c.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusComplete {
		return nil, fmt.Errorf("%w: document %s is %s", models.ErrDocumentNotAnalyzed, id, doc.Status)
	}
	return doc, nil
}

// narrative asks the engine for a short prose comparison, cached under
// the pair's combined checksum so repeat comparisons are free.
func (c *Comparator) narrative(ctx context.Context, left, right *models.Document, result *ComparisonResult) (string, error) {
	// Order-independent cache key: the pair hashes the same both ways.
	a, b := left.Checksum, right.Checksum
	if a > b {
		a, b = b, a
	}
	pairKey := utils.Sha256Hex([]byte(a + ":" + b))

	if c.cache != nil {
		if cached, ok, err := c.cache.Lookup(ctx, pairKey, models.AnalysisComparison, ""); err == nil && ok {
			var payload struct {
				Narrative string `json:"narrative"`
			}
			if err := json.Unmarshal([]byte(cached.ResultJSON), &payload); err == nil {
				return payload.Narrative, nil
			}
		}
	}

	prompt := fmt.Sprintf(
		"Compare these two documents in 3-4 sentences. Their measured similarity is %.2f.\n\nDocument A (%s):\n%s\n\nDocument B (%s):\n%s",
		result.Similarity,
		left.Filename, capString(left.FullText, 6000),
		right.Filename, capString(right.FullText, 6000),
	)
	payload, err := c.engine.Summarize(ctx, prompt, models.SummaryBrief)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		raw, _ := json.Marshal(map[string]string{"narrative": payload.Content})
		_ = c.cache.Store(ctx, &models.AnalysisResult{
			DocumentID: left.ID,
			Checksum:   pairKey,
			Kind:       models.AnalysisComparison,
			ResultJSON: string(raw),
		})
	}
	return payload.Content, nil
}

var tokenRe = regexp.MustCompile(`\p{L}+|\p{N}+`)

func termFrequencies(text string) map[string]float64 {
	freq := make(map[string]float64)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		freq[tok]++
	}
	return freq
}

// CosineSimilarity computes cosine similarity over term frequencies.
// Two empty texts are identical (1.0); one empty text scores 0.
func CosineSimilarity(a, b string) float64 {
	fa, fb := termFrequencies(a), termFrequencies(b)
	if len(fa) == 0 && len(fb) == 0 {
		return 1.0
	}
	if len(fa) == 0 || len(fb) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for term, va := range fa {
		normA += va * va
		if vb, ok := fb[term]; ok {
			dot += va * vb
		}
	}
	for _, vb := range fb {
		normB += vb * vb
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	sim := dot / math.Sqrt(normA*normB)
	if sim > 1.0 {
		sim = 1.0
	}
	return sim
}

// DiffChunks aligns two chunk sequences by content hash with a longest
// common subsequence, then reports unmatched chunks. A removal directly
// followed by an insertion at the same alignment point collapses into a
// single "changed" entry.
func DiffChunks(left, right []models.Chunk) []ChunkDiff {
	leftKeys := chunkKeys(left)
	rightKeys := chunkKeys(right)

	n, m := len(leftKeys), len(rightKeys)
	// LCS table over chunk hashes.
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if leftKeys[i] == rightKeys[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var diffs []ChunkDiff
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && leftKeys[i] == rightKeys[j]:
			i++
			j++
		case i < n && j < m && lcs[i+1][j] < lcs[i][j+1]:
			diffs = append(diffs, ChunkDiff{
				Type:       "added",
				LeftIndex:  -1,
				RightIndex: j,
				Preview:    BuildPreview(right[j].Content, 120),
			})
			j++
		case i < n:
			diffs = append(diffs, ChunkDiff{
				Type:       "removed",
				LeftIndex:  i,
				RightIndex: -1,
				Preview:    BuildPreview(left[i].Content, 120),
			})
			i++
		default:
			diffs = append(diffs, ChunkDiff{
				Type:       "added",
				LeftIndex:  -1,
				RightIndex: j,
				Preview:    BuildPreview(right[j].Content, 120),
			})
			j++
		}
	}

	return collapseChanges(diffs)
}

func chunkKeys(chunks []models.Chunk) []string {
	keys := make([]string, len(chunks))
	for i, ch := range chunks {
		keys[i] = utils.Sha256Hex([]byte(ch.Content))
	}
	return keys
}

func collapseChanges(diffs []ChunkDiff) []ChunkDiff {
	var out []ChunkDiff
	for i := 0; i < len(diffs); i++ {
		if i+1 < len(diffs) && diffs[i].Type == "removed" && diffs[i+1].Type == "added" {
			out = append(out, ChunkDiff{
				Type:       "changed",
				LeftIndex:  diffs[i].LeftIndex,
				RightIndex: diffs[i+1].RightIndex,
				Preview:    diffs[i+1].Preview,
			})
			i++
			continue
		}
		out = append(out, diffs[i])
	}
	return out
}
