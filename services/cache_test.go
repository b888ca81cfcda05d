package services

import (
	"context"
	"testing"

	"document-intelligence-platform/models"
)

func TestMemoryCacheContentAddressing(t *testing.T) {
	cache := NewMemoryAnalysisCache()
	ctx := context.Background()

	stored := &models.AnalysisResult{
		DocumentID: "doc-1",
		Checksum:   "abc123",
		Kind:       models.AnalysisSummary,
		Params:     "brief",
		ResultJSON: `{"level":"brief","content":"hi"}`,
	}
	if err := cache.Store(ctx, stored); err != nil {
		t.Fatalf("store: %v", err)
	}

	// Lookup is keyed by content checksum, regardless of document id.
	hit, ok, err := cache.Lookup(ctx, "abc123", models.AnalysisSummary, "brief")
	if err != nil || !ok {
		t.Fatalf("lookup miss: ok=%v err=%v", ok, err)
	}
	if !hit.FromCache {
		t.Errorf("cache hit not flagged")
	}
	if hit.ResultJSON != stored.ResultJSON {
		t.Errorf("payload mismatch: %q", hit.ResultJSON)
	}

	// Different params are a different cache entry.
	if _, ok, _ := cache.Lookup(ctx, "abc123", models.AnalysisSummary, "detailed"); ok {
		t.Errorf("lookup hit across params")
	}
	if _, ok, _ := cache.Lookup(ctx, "abc123", models.AnalysisEntities, "brief"); ok {
		t.Errorf("lookup hit across kinds")
	}
	if _, ok, _ := cache.Lookup(ctx, "other", models.AnalysisSummary, "brief"); ok {
		t.Errorf("lookup hit across checksums")
	}
}

func TestMemoryCacheGetByDocument(t *testing.T) {
	cache := NewMemoryAnalysisCache()
	ctx := context.Background()

	cache.Store(ctx, &models.AnalysisResult{
		DocumentID: "doc-1",
		Checksum:   "sum-1",
		Kind:       models.AnalysisEntities,
		ResultJSON: `{}`,
	})

	if _, ok, _ := cache.Get(ctx, "doc-1", models.AnalysisEntities, ""); !ok {
		t.Fatalf("get by document missed")
	}
	if _, ok, _ := cache.Get(ctx, "doc-2", models.AnalysisEntities, ""); ok {
		t.Fatalf("get returned another document's analysis")
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewMemoryAnalysisCache()
	ctx := context.Background()

	cache.Store(ctx, &models.AnalysisResult{
		DocumentID: "doc-1",
		Checksum:   "sum-1",
		Kind:       models.AnalysisSummary,
		Params:     "brief",
		ResultJSON: "original",
	})

	hit, _, _ := cache.Lookup(ctx, "sum-1", models.AnalysisSummary, "brief")
	hit.ResultJSON = "mutated"

	again, _, _ := cache.Lookup(ctx, "sum-1", models.AnalysisSummary, "brief")
	if again.ResultJSON != "original" {
		t.Fatalf("cache entry mutated through a returned copy")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	cache := NewMemoryAnalysisCache()
	ctx := context.Background()

	cache.Store(ctx, &models.AnalysisResult{
		DocumentID: "doc-1",
		Checksum:   "sum-1",
		Kind:       models.AnalysisSummary,
		Params:     "brief",
		ResultJSON: `{}`,
	})
	if err := cache.Invalidate(ctx, "doc-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "doc-1", models.AnalysisSummary, "brief"); ok {
		t.Fatalf("analysis survived invalidation")
	}
}
