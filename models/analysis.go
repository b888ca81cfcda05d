package models

import (
	"fmt"
	"time"
)

// Analysis kinds stored in the document_analyses collection. The same
// collection doubles as the content-addressed cache: rows are keyed by
// (document_id, kind, params) for retrieval and carry the content
// checksum for cache reuse across identical documents.
const (
	AnalysisSummary    = "summary"
	AnalysisEntities   = "entities"
	AnalysisComparison = "comparison"
)

// SummaryLevel is a closed enum. Unknown values are rejected at the API
// boundary by ParseSummaryLevel, never silently defaulted.
type SummaryLevel string

const (
	SummaryBrief    SummaryLevel = "brief"
	SummaryDetailed SummaryLevel = "detailed"
	SummaryBullets  SummaryLevel = "bullets"
)

func ParseSummaryLevel(s string) (SummaryLevel, error) {
	switch SummaryLevel(s) {
	case SummaryBrief, SummaryDetailed, SummaryBullets:
		return SummaryLevel(s), nil
	case "":
		return SummaryBrief, nil
	}
	return "", fmt.Errorf("unknown summary level %q", s)
}

type AnalysisResult struct {
	ID         string    `bson:"_id" json:"id"`
	DocumentID string    `bson:"document_id" json:"document_id"`
	Checksum   string    `bson:"checksum" json:"checksum"`
	Kind       string    `bson:"kind" json:"kind"`
	Params     string    `bson:"params,omitempty" json:"params,omitempty"`
	Model      string    `bson:"model,omitempty" json:"model,omitempty"`
	ResultJSON string    `bson:"result_json" json:"-"`
	FromCache  bool      `bson:"-" json:"from_cache"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// SummaryPayload is the JSON shape stored in ResultJSON for summary
// analyses and returned by the inference gateway.
type SummaryPayload struct {
	Level   string   `json:"level"`
	Content string   `json:"content"`
	Bullets []string `json:"bullets,omitempty"`
}

// EntitiesPayload is the ResultJSON shape for entity analyses.
type EntitiesPayload struct {
	Entities []Entity `json:"entities"`
	Source   string   `json:"source"`
}

const (
	EntitySourceEngine   = "engine"
	EntitySourceFallback = "fallback"
)
