package database

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestFindDuplicateScopedToVersionGroup(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("query carries checksum and version group", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "docintel.documents", mtest.FirstBatch))

		store := NewStore(mt.Client, "docintel")
		doc, err := store.FindDuplicate(context.Background(), "abc123", "q3-budget")
		if err != nil {
			mt.Fatalf("FindDuplicate returned error: %v", err)
		}
		if doc != nil {
			mt.Fatalf("expected no duplicate, got %+v", doc)
		}

		evt := mt.GetStartedEvent()
		if evt == nil || evt.CommandName != "find" {
			mt.Fatalf("expected a find command, got %+v", evt)
		}
		filter := evt.Command.Lookup("filter").Document()
		if got := filter.Lookup("checksum").StringValue(); got != "abc123" {
			mt.Fatalf("checksum filter = %q, want %q", got, "abc123")
		}
		if got := filter.Lookup("version_group").StringValue(); got != "q3-budget" {
			mt.Fatalf("version_group filter = %q, want %q", got, "q3-budget")
		}
	})

	mt.Run("returns the match from the same group", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "docintel.documents", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "doc-1"},
			{Key: "checksum", Value: "abc123"},
			{Key: "version_group", Value: "q3-budget"},
		}))

		store := NewStore(mt.Client, "docintel")
		doc, err := store.FindDuplicate(context.Background(), "abc123", "q3-budget")
		if err != nil {
			mt.Fatalf("FindDuplicate returned error: %v", err)
		}
		if doc == nil || doc.ID != "doc-1" {
			mt.Fatalf("duplicate = %+v, want document doc-1", doc)
		}
	})
}
