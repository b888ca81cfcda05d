package models

import "time"

// Document lifecycle statuses. A document enters the system as uploaded,
// moves through parsing and analyzing while the worker owns it, and ends
// in complete or failed. Failed keeps the failure reason for operators.
const (
	StatusUploaded  = "uploaded"
	StatusParsing   = "parsing"
	StatusAnalyzing = "analyzing"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
)

// statusTransitions is the full set of legal status moves. Anything not
// listed here is rejected by CanTransition, including self-transitions.
var statusTransitions = map[string][]string{
	StatusUploaded:  {StatusParsing},
	StatusParsing:   {StatusAnalyzing, StatusFailed},
	StatusAnalyzing: {StatusComplete, StatusFailed},
	// Re-queued documents restart at parsing when the extracted text is
	// gone, or jump straight to analyzing when it survived.
	StatusComplete: {StatusParsing, StatusAnalyzing},
	StatusFailed:   {StatusParsing, StatusAnalyzing},
}

// CanTransition reports whether a document may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends a processing run.
func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusFailed
}

type Document struct {
	ID               string     `bson:"_id" json:"id"`
	Filename         string     `bson:"filename" json:"filename"`
	FileType         string     `bson:"file_type" json:"file_type"`
	FilePath         string     `bson:"file_path" json:"-"`
	FileSize         int64      `bson:"file_size" json:"file_size"`
	Checksum         string     `bson:"checksum" json:"checksum"`
	Status           string     `bson:"status" json:"status"`
	FailureReason    string     `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	PreviewText      string     `bson:"preview_text,omitempty" json:"preview_text,omitempty"`
	CharCount        int        `bson:"char_count" json:"char_count"`
	WordCount        int        `bson:"word_count" json:"word_count"`
	ChunkCount       int        `bson:"chunk_count" json:"chunk_count"`
	VersionGroup     string     `bson:"version_group" json:"version_group"`
	VersionNumber    int        `bson:"version_number" json:"version_number"`
	ParentDocumentID string     `bson:"parent_document_id,omitempty" json:"parent_document_id,omitempty"`
	UploadedAt       time.Time  `bson:"uploaded_at" json:"uploaded_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
	ProcessedAt      *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`

	// FullText is hydrated by the store from the compressed blob and is
	// never serialized to clients.
	FullText string `bson:"-" json:"-"`
}
