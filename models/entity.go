package models

import "time"

// Entity type tags produced by analysis.
const (
	EntityPerson       = "person"
	EntityDate         = "date"
	EntityAmount       = "amount"
	EntityAddress      = "address"
	EntityOrganization = "organization"
	EntityEmail        = "email"
	EntityPhone        = "phone"
)

// Entity is a typed value extracted from a document. StartIndex and
// EndIndex are byte offsets into the normalized full text when the value
// could be located there, nil otherwise. Snippet carries surrounding
// context either way.
type Entity struct {
	ID         string    `bson:"_id,omitempty" json:"id,omitempty"`
	DocumentID string    `bson:"document_id,omitempty" json:"document_id,omitempty"`
	Type       string    `bson:"entity_type" json:"type"`
	Value      string    `bson:"value" json:"value"`
	Confidence float64   `bson:"confidence" json:"confidence"`
	Snippet    string    `bson:"snippet,omitempty" json:"snippet,omitempty"`
	StartIndex *int      `bson:"start_index,omitempty" json:"start_index,omitempty"`
	EndIndex   *int      `bson:"end_index,omitempty" json:"end_index,omitempty"`
	CreatedAt  time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// ValidEntityType reports whether t is one of the known entity tags.
func ValidEntityType(t string) bool {
	switch t {
	case EntityPerson, EntityDate, EntityAmount, EntityAddress,
		EntityOrganization, EntityEmail, EntityPhone:
		return true
	}
	return false
}
