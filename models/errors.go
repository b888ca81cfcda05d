package models

import "errors"

// Domain errors. Services return these (usually wrapped with %w) so
// handlers can map them to HTTP responses without string matching.
var (
	// ErrUnsupportedFormat means the file extension is not one we extract.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrCorruptInput means the bytes do not match the declared format.
	ErrCorruptInput = errors.New("corrupt or unreadable document content")

	// ErrDocumentNotFound means no document exists for the given id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentNotAnalyzed means an operation needs completed analysis
	// (or at least extracted text) that the document does not have yet.
	ErrDocumentNotAnalyzed = errors.New("document has not been analyzed")

	// ErrInvalidTransition means a status change was attempted that the
	// lifecycle does not allow, usually because of a concurrent run.
	ErrInvalidTransition = errors.New("invalid document status transition")

	// Inference engine failure classes. Timeout and unavailable are
	// retryable, malformed output is not.
	ErrInferenceTimeout         = errors.New("inference engine timed out")
	ErrInferenceUnavailable     = errors.New("inference engine unavailable")
	ErrInferenceMalformedOutput = errors.New("inference engine returned malformed output")

	// ErrNoDocumentsSelected means an export was requested with an empty
	// id set.
	ErrNoDocumentsSelected = errors.New("no documents selected for export")

	// ErrEmptyResultSet means none of the requested export ids resolved
	// to an existing document.
	ErrEmptyResultSet = errors.New("no matching documents found")
)
