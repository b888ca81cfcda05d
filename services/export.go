package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/models"
)

// ExportFormat is a closed enum. Unknown formats are rejected up front.
type ExportFormat string

const (
	ExportJSON   ExportFormat = "json"
	ExportCSV    ExportFormat = "csv"
	ExportReport ExportFormat = "report"
	ExportExcel  ExportFormat = "excel"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportJSON, ExportCSV, ExportReport, ExportExcel:
		return ExportFormat(s), nil
	case "":
		return ExportJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ExportStore is the read surface exports are built from.
type ExportStore interface {
	GetDocuments(ctx context.Context, ids []string) ([]models.Document, error)
	ListEntities(ctx context.Context, documentID string) ([]models.Entity, error)
	LatestSummary(ctx context.Context, documentID string) (*models.SummaryPayload, bool, error)
}

// ExportService assembles selected documents, their summaries and
// entities into a downloadable artifact.
type ExportService struct {
	store   ExportStore
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewExportService(store ExportStore, metrics *telemetry.Metrics) *ExportService {
	return &ExportService{store: store, metrics: metrics, now: time.Now}
}

// ExportedDocument is one document's slice of an export bundle.
type ExportedDocument struct {
	ID            string          `json:"id"`
	Filename      string          `json:"filename"`
	FileType      string          `json:"file_type"`
	Status        string          `json:"status"`
	Checksum      string          `json:"checksum"`
	VersionGroup  string          `json:"version_group"`
	VersionNumber int             `json:"version_number"`
	UploadedAt    time.Time       `json:"uploaded_at"`
	WordCount     int             `json:"word_count"`
	Summary       string          `json:"summary,omitempty"`
	Entities      []models.Entity `json:"entities,omitempty"`
}

// ExportArtifact is the generated file plus its serving metadata.
type ExportArtifact struct {
	Filename    string
	ContentType string
	Data        []byte
	Documents   int
}

// Export builds an artifact for the given documents. An empty id set is
// an error; ids that resolve to nothing are too.
func (s *ExportService) Export(ctx context.Context, ids []string, format ExportFormat) (*ExportArtifact, error) {
	if len(ids) == 0 {
		return nil, models.ErrNoDocumentsSelected
	}

	docs, err := s.store.GetDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, models.ErrEmptyResultSet
	}

	exported := make([]ExportedDocument, 0, len(docs))
	for _, doc := range docs {
		entry := ExportedDocument{
			ID:            doc.ID,
			Filename:      doc.Filename,
			FileType:      doc.FileType,
			Status:        doc.Status,
			Checksum:      doc.Checksum,
			VersionGroup:  doc.VersionGroup,
			VersionNumber: doc.VersionNumber,
			UploadedAt:    doc.UploadedAt,
			WordCount:     doc.WordCount,
		}

		if summary, ok, err := s.store.LatestSummary(ctx, doc.ID); err == nil && ok {
			entry.Summary = summary.Content
		}
		if entities, err := s.store.ListEntities(ctx, doc.ID); err == nil {
			entry.Entities = entities
		}
		exported = append(exported, entry)
	}

	var artifact *ExportArtifact
	switch format {
	case ExportJSON:
		artifact, err = s.exportJSON(exported)
	case ExportCSV:
		artifact, err = s.exportCSV(exported)
	case ExportReport:
		artifact, err = s.exportReport(exported)
	case ExportExcel:
		artifact, err = s.exportExcel(exported)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	artifact.Documents = len(exported)
	if s.metrics != nil {
		s.metrics.RecordExport(string(format), int64(len(exported)))
	}
	return artifact, nil
}

func (s *ExportService) filename(ext string) string {
	return fmt.Sprintf("document-export-%s.%s", s.now().UTC().Format("20060102-150405"), ext)
}

func (s *ExportService) exportJSON(docs []ExportedDocument) (*ExportArtifact, error) {
	payload := map[string]any{
		"export_date": s.now().UTC(),
		"documents":   docs,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return &ExportArtifact{
		Filename:    s.filename("json"),
		ContentType: "application/json",
		Data:        data,
	}, nil
}

func (s *ExportService) exportCSV(docs []ExportedDocument) (*ExportArtifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "filename", "file_type", "status", "version_group", "version_number", "uploaded_at", "word_count", "summary", "entity_count"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, doc := range docs {
		record := []string{
			doc.ID,
			doc.Filename,
			doc.FileType,
			doc.Status,
			doc.VersionGroup,
			fmt.Sprintf("%d", doc.VersionNumber),
			doc.UploadedAt.UTC().Format(time.RFC3339),
			fmt.Sprintf("%d", doc.WordCount),
			doc.Summary,
			fmt.Sprintf("%d", len(doc.Entities)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &ExportArtifact{
		Filename:    s.filename("csv"),
		ContentType: "text/csv",
		Data:        buf.Bytes(),
	}, nil
}

func (s *ExportService) exportReport(docs []ExportedDocument) (*ExportArtifact, error) {
	var sb strings.Builder

	sb.WriteString("DOCUMENT INTELLIGENCE REPORT\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n", s.now().UTC().Format(time.RFC1123)))
	sb.WriteString(fmt.Sprintf("Documents: %d\n", len(docs)))
	sb.WriteString(strings.Repeat("=", 72) + "\n")

	for _, doc := range docs {
		sb.WriteString(fmt.Sprintf("\n%s (v%d, %s)\n", doc.Filename, doc.VersionNumber, doc.FileType))
		sb.WriteString(fmt.Sprintf("Status: %s | Uploaded: %s | Words: %d\n",
			doc.Status, doc.UploadedAt.UTC().Format("2006-01-02 15:04"), doc.WordCount))

		if doc.Summary != "" {
			sb.WriteString("\nSummary:\n")
			sb.WriteString(doc.Summary + "\n")
		}

		if len(doc.Entities) > 0 {
			sb.WriteString("\nEntities:\n")
			for _, e := range doc.Entities {
				sb.WriteString(fmt.Sprintf("  [%s] %s (%.2f)\n", e.Type, e.Value, e.Confidence))
			}
		}
		sb.WriteString("\n" + strings.Repeat("-", 72) + "\n")
	}

	return &ExportArtifact{
		Filename:    s.filename("txt"),
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte(sb.String()),
	}, nil
}

func (s *ExportService) exportExcel(docs []ExportedDocument) (*ExportArtifact, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Documents"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Filename", "Type", "Status", "Version Group", "Version", "Uploaded", "Words", "Summary"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}
	f.SetColWidth(sheetName, "A", "A", 36)
	f.SetColWidth(sheetName, "B", "B", 32)
	f.SetColWidth(sheetName, "I", "I", 60)

	for i, doc := range docs {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), doc.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), doc.Filename)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), doc.FileType)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), doc.Status)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), doc.VersionGroup)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), doc.VersionNumber)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), doc.UploadedAt.UTC().Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), doc.WordCount)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), doc.Summary)
	}

	entitySheet := "Entities"
	if _, err := f.NewSheet(entitySheet); err == nil {
		entityHeaders := []string{"Document ID", "Filename", "Type", "Value", "Confidence"}
		for i, header := range entityHeaders {
			f.SetCellValue(entitySheet, fmt.Sprintf("%c1", 'A'+i), header)
		}
		row := 2
		for _, doc := range docs {
			for _, e := range doc.Entities {
				f.SetCellValue(entitySheet, fmt.Sprintf("A%d", row), doc.ID)
				f.SetCellValue(entitySheet, fmt.Sprintf("B%d", row), doc.Filename)
				f.SetCellValue(entitySheet, fmt.Sprintf("C%d", row), e.Type)
				f.SetCellValue(entitySheet, fmt.Sprintf("D%d", row), e.Value)
				f.SetCellValue(entitySheet, fmt.Sprintf("E%d", row), e.Confidence)
				row++
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return &ExportArtifact{
		Filename:    s.filename("xlsx"),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        buf.Bytes(),
	}, nil
}
