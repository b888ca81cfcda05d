package models

// Chunk is a contiguous slice of a document's normalized full text.
// Chunks never overlap; concatenating them in index order reproduces the
// full text exactly.
type Chunk struct {
	ID         string `bson:"_id,omitempty" json:"id,omitempty"`
	DocumentID string `bson:"document_id" json:"document_id"`
	Index      int    `bson:"chunk_index" json:"chunk_index"`
	Content    string `bson:"content" json:"content"`
	CharCount  int    `bson:"char_count" json:"char_count"`
	WordCount  int    `bson:"word_count" json:"word_count"`
}
