package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"

	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/models"
)

func testExtractor() *Extractor {
	cfg := &config.Config{PreviewChars: 360, MaxFileSize: 50 * 1024 * 1024}
	return NewExtractor(cfg, NewOCRClient(&config.Config{}))
}

func TestDetectType(t *testing.T) {
	cases := map[string]string{
		"report.pdf":   FileTypePDF,
		"notes.TXT":    FileTypeTXT,
		"readme.md":    FileTypeMD,
		"page.html":    FileTypeHTML,
		"contract.docx": FileTypeDOCX,
		"scan.jpeg":    FileTypeJPG,
	}
	for name, want := range cases {
		got, err := DetectType(name)
		if err != nil {
			t.Fatalf("DetectType(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("DetectType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestDetectTypeUnsupported(t *testing.T) {
	for _, name := range []string{"archive.tar.gz", "video.mp4", "noextension"} {
		if _, err := DetectType(name); !errors.Is(err, models.ErrUnsupportedFormat) {
			t.Errorf("DetectType(%q) = %v, want unsupported format", name, err)
		}
	}
}

func TestExtractTextDeterministic(t *testing.T) {
	e := testExtractor()
	raw := []byte("Line one.\r\nLine two.\r\n\r\n\r\n\r\nLine three.")

	first, err := e.Extract(context.Background(), raw, FileTypeTXT)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := e.Extract(context.Background(), raw, FileTypeTXT)
	if err != nil {
		t.Fatalf("extract again: %v", err)
	}

	if first.Text != second.Text || first.Checksum != second.Checksum {
		t.Fatalf("extraction is not deterministic")
	}
	if strings.Contains(first.Text, "\r") {
		t.Errorf("CRLF not normalized: %q", first.Text)
	}
	if strings.Contains(first.Text, "\n\n\n") {
		t.Errorf("blank runs not collapsed: %q", first.Text)
	}
	if first.WordCount != 6 {
		t.Errorf("word count = %d, want 6", first.WordCount)
	}
}

func TestExtractUTF16(t *testing.T) {
	e := testExtractor()
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	raw, err := enc.Bytes([]byte("Hello, 世界"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	result, err := e.Extract(context.Background(), raw, FileTypeTXT)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.Text != "Hello, 世界" {
		t.Fatalf("got %q", result.Text)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	e := testExtractor()
	if _, err := e.Extract(context.Background(), []byte("not a pdf at all"), FileTypePDF); !errors.Is(err, models.ErrCorruptInput) {
		t.Fatalf("got %v, want corrupt input", err)
	}
}

func TestExtractDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t> paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	if err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	e := testExtractor()
	result, err := e.Extract(context.Background(), buf.Bytes(), FileTypeDOCX)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(result.Text, "First paragraph.") {
		t.Errorf("missing first paragraph: %q", result.Text)
	}
	if !strings.Contains(result.Text, "Second paragraph.") {
		t.Errorf("runs not joined: %q", result.Text)
	}
}

func TestExtractDOCXCorrupt(t *testing.T) {
	e := testExtractor()
	if _, err := e.Extract(context.Background(), []byte("PK but not a zip"), FileTypeDOCX); !errors.Is(err, models.ErrCorruptInput) {
		t.Fatalf("got %v, want corrupt input", err)
	}
}

func TestExtractHTML(t *testing.T) {
	e := testExtractor()
	raw := []byte(`<html><head><title>T</title><script>var x = 1;</script></head>
<body><h1>Heading</h1><p>Body text here.</p><style>.a{color:red}</style></body></html>`)

	result, err := e.Extract(context.Background(), raw, FileTypeHTML)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(result.Text, "Heading") || !strings.Contains(result.Text, "Body text here.") {
		t.Errorf("missing body text: %q", result.Text)
	}
	if strings.Contains(result.Text, "var x") {
		t.Errorf("script not stripped: %q", result.Text)
	}
}

func TestBuildPreview(t *testing.T) {
	long := strings.Repeat("abcde ", 100)
	preview := BuildPreview(long, 360)
	if !strings.HasSuffix(preview, "...") {
		t.Fatalf("long preview missing ellipsis: %q", preview[len(preview)-10:])
	}

	short := "tiny document"
	if got := BuildPreview(short, 360); got != short {
		t.Fatalf("short preview altered: %q", got)
	}
}
