package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"document-intelligence-platform/models"
)

type fakeExportStore struct {
	docs      map[string]models.Document
	entities  map[string][]models.Entity
	summaries map[string]*models.SummaryPayload
}

func newFakeExportStore() *fakeExportStore {
	return &fakeExportStore{
		docs:      make(map[string]models.Document),
		entities:  make(map[string][]models.Entity),
		summaries: make(map[string]*models.SummaryPayload),
	}
}

func (s *fakeExportStore) GetDocuments(_ context.Context, ids []string) ([]models.Document, error) {
	var out []models.Document
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeExportStore) ListEntities(_ context.Context, documentID string) ([]models.Entity, error) {
	return s.entities[documentID], nil
}

func (s *fakeExportStore) LatestSummary(_ context.Context, documentID string) (*models.SummaryPayload, bool, error) {
	summary, ok := s.summaries[documentID]
	return summary, ok, nil
}

func seedExportStore() *fakeExportStore {
	s := newFakeExportStore()
	s.docs["d1"] = models.Document{
		ID:            "d1",
		Filename:      "contract.pdf",
		FileType:      "pdf",
		Status:        models.StatusComplete,
		VersionGroup:  "contract",
		VersionNumber: 1,
		UploadedAt:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		WordCount:     420,
	}
	s.docs["d2"] = models.Document{
		ID:            "d2",
		Filename:      "notes.txt",
		FileType:      "txt",
		Status:        models.StatusComplete,
		VersionGroup:  "notes",
		VersionNumber: 2,
		UploadedAt:    time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC),
		WordCount:     88,
	}
	s.summaries["d1"] = &models.SummaryPayload{Level: "brief", Content: "A services contract."}
	s.entities["d1"] = []models.Entity{
		{Type: models.EntityPerson, Value: "Alice Johnson", Confidence: 0.9},
		{Type: models.EntityAmount, Value: "$12,500.00", Confidence: 0.85},
	}
	return s
}

func TestExportEmptySelection(t *testing.T) {
	svc := NewExportService(seedExportStore(), nil)
	if _, err := svc.Export(context.Background(), nil, ExportJSON); !errors.Is(err, models.ErrNoDocumentsSelected) {
		t.Fatalf("got %v, want no documents selected", err)
	}
}

func TestExportUnknownIDs(t *testing.T) {
	svc := NewExportService(seedExportStore(), nil)
	if _, err := svc.Export(context.Background(), []string{"ghost-1", "ghost-2"}, ExportJSON); !errors.Is(err, models.ErrEmptyResultSet) {
		t.Fatalf("got %v, want empty result set", err)
	}
}

func TestExportJSON(t *testing.T) {
	svc := NewExportService(seedExportStore(), nil)
	artifact, err := svc.Export(context.Background(), []string{"d1", "d2"}, ExportJSON)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if artifact.Documents != 2 {
		t.Errorf("documents = %d, want 2", artifact.Documents)
	}
	if !strings.HasSuffix(artifact.Filename, ".json") {
		t.Errorf("filename = %q", artifact.Filename)
	}

	var payload struct {
		Documents []ExportedDocument `json:"documents"`
	}
	if err := json.Unmarshal(artifact.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Documents) != 2 {
		t.Fatalf("payload documents = %d", len(payload.Documents))
	}
	if payload.Documents[0].Summary != "A services contract." {
		t.Errorf("summary missing: %+v", payload.Documents[0])
	}
	if len(payload.Documents[0].Entities) != 2 {
		t.Errorf("entities missing: %+v", payload.Documents[0])
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewExportService(seedExportStore(), nil)
	artifact, err := svc.Export(context.Background(), []string{"d1", "d2"}, ExportCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(artifact.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}

	wantHeader := []string{"id", "filename", "file_type", "status", "version_group", "version_number", "uploaded_at", "word_count", "summary", "entity_count"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}
	if records[1][8] != "A services contract." {
		t.Errorf("summary column = %q", records[1][8])
	}
	if records[1][9] != "2" {
		t.Errorf("entity count column = %q", records[1][9])
	}
}

func TestExportReport(t *testing.T) {
	svc := NewExportService(seedExportStore(), nil)
	artifact, err := svc.Export(context.Background(), []string{"d1"}, ExportReport)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	text := string(artifact.Data)
	for _, want := range []string{"DOCUMENT INTELLIGENCE REPORT", "contract.pdf", "A services contract.", "[person] Alice Johnson"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestExportExcel(t *testing.T) {
	svc := NewExportService(seedExportStore(), nil)
	artifact, err := svc.Export(context.Background(), []string{"d1", "d2"}, ExportExcel)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasSuffix(artifact.Filename, ".xlsx") {
		t.Errorf("filename = %q", artifact.Filename)
	}

	f, err := excelize.OpenReader(bytes.NewReader(artifact.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[1][1] != "contract.pdf" {
		t.Errorf("filename cell = %q", rows[1][1])
	}

	entityRows, err := f.GetRows("Entities")
	if err != nil {
		t.Fatalf("read entity sheet: %v", err)
	}
	if len(entityRows) != 3 {
		t.Fatalf("entity rows = %d, want header + 2", len(entityRows))
	}
}

func TestParseExportFormat(t *testing.T) {
	if format, err := ParseExportFormat(""); err != nil || format != ExportJSON {
		t.Errorf("empty format: %v %v", format, err)
	}
	if _, err := ParseExportFormat("pdf"); err == nil {
		t.Errorf("unknown format accepted")
	}
}
