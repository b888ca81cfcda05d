package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/models"
	"document-intelligence-platform/utils"
)

// File types the extractor understands.
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypeTXT  = "txt"
	FileTypeMD   = "md"
	FileTypeHTML = "html"
	FileTypePNG  = "png"
	FileTypeJPG  = "jpg"
)

var extensionTypes = map[string]string{
	".pdf":  FileTypePDF,
	".docx": FileTypeDOCX,
	".txt":  FileTypeTXT,
	".md":   FileTypeMD,
	".html": FileTypeHTML,
	".htm":  FileTypeHTML,
	".png":  FileTypePNG,
	".jpg":  FileTypeJPG,
	".jpeg": FileTypeJPG,
}

// Extractor turns raw uploaded bytes into normalized plain text. The
// same bytes always produce the same text and checksum.
type Extractor struct {
	config *config.Config
	ocr    *OCRClient
}

func NewExtractor(cfg *config.Config, ocr *OCRClient) *Extractor {
	return &Extractor{config: cfg, ocr: ocr}
}

// ExtractionResult contains the outcome of text extraction
type ExtractionResult struct {
	Text         string
	Checksum     string
	Preview      string
	Pages        int
	Method       string
	QualityScore float64
	WordCount    int
	CharCount    int
}

// SupportedTypes lists the accepted file extensions, sorted.
func SupportedTypes() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(exts)
	return exts
}

// DetectType maps a filename to a supported file type.
func DetectType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := extensionTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	return fileType, nil
}

// Extract produces normalized text from raw bytes of the given type.
// The checksum covers the raw bytes, not the normalized text, so it is
// stable across normalization changes.
func (e *Extractor) Extract(ctx context.Context, raw []byte, fileType string) (*ExtractionResult, error) {
	result := &ExtractionResult{
		Checksum: utils.Sha256Hex(raw),
		Method:   fileType,
	}

	var text string
	var err error

	switch fileType {
	case FileTypeTXT, FileTypeMD:
		text, err = decodeText(raw)
	case FileTypePDF:
		text, result.Pages, result.Method, err = e.extractPDF(ctx, raw)
	case FileTypeDOCX:
		text, err = extractDOCX(raw)
	case FileTypeHTML:
		text, err = extractHTML(raw)
	case FileTypePNG, FileTypeJPG:
		// OCR is best effort. An unreachable sidecar yields an empty
		// document, not a failure.
		text = e.extractImage(ctx, raw, fileType)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, fileType)
	}
	if err != nil {
		return nil, err
	}

	result.Text = NormalizeText(text)
	result.Preview = BuildPreview(result.Text, e.config.PreviewChars)
	result.QualityScore = evaluateTextQuality(result.Text)
	result.CharCount = len(result.Text)
	result.WordCount = len(strings.Fields(result.Text))
	return result, nil
}

// extractPDF tries pdftotext first when available, then the native
// reader. Method order is fixed so extraction stays deterministic.
func (e *Extractor) extractPDF(ctx context.Context, raw []byte) (string, int, string, error) {
	if hasBinary("pdftotext") {
		if text, err := extractWithPoppler(ctx, raw); err == nil && evaluateTextQuality(text) >= 0.3 {
			return text, guessPageCount(text), "pdftotext", nil
		}
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()
	extracted := 0

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
		extracted++
	}

	if pages > 0 && extracted == 0 {
		return "", 0, "", fmt.Errorf("%w: no readable pages", models.ErrCorruptInput)
	}
	return textBuilder.String(), pages, "go-pdf", nil
}

func extractWithPoppler(ctx context.Context, raw []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(raw)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return "", fmt.Errorf("no text extracted by pdftotext")
	}
	return stdout.String(), nil
}

func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// extractDOCX reads word/document.xml from the zip container and pulls
// text runs, inserting a blank line between paragraphs.
func extractDOCX(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: missing word/document.xml", models.ErrCorruptInput)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	var inText bool

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n\n")
			case "br", "cr":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return sb.String(), nil
}

// extractHTML strips markup and keeps visible text.
func extractHTML(raw []byte) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(raw), "text/html")
	if err != nil {
		reader = bytes.NewReader(raw)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
	}

	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		sb.WriteString(sel.Text())
	})
	if sb.Len() == 0 {
		sb.WriteString(doc.Text())
	}
	return sb.String(), nil
}

func (e *Extractor) extractImage(ctx context.Context, raw []byte, fileType string) string {
	if e.ocr == nil || !e.ocr.Enabled() {
		return ""
	}
	text, err := e.ocr.ExtractImage(ctx, raw, "upload."+fileType)
	if err != nil {
		return ""
	}
	return text
}

// decodeText handles the encodings plain text uploads arrive in: UTF-8
// with or without BOM, UTF-16 with BOM, and Latin-1 as a last resort.
func decodeText(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		decoded, err := decoder.Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
		}
		return string(decoded), nil
	case utf8.Valid(raw):
		return string(raw), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCorruptInput, err)
	}
	return string(decoded), nil
}

var (
	crlfRe       = regexp.MustCompile(`\r\n?`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText canonicalizes line endings and whitespace so identical
// content always hashes and chunks the same way.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = crlfRe.ReplaceAllString(text, "\n")
	text = trailingWSRe.ReplaceAllString(text, "\n")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// BuildPreview returns the leading slice of text for list views, cut on
// a rune boundary with an ellipsis when truncated.
func BuildPreview(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func guessPageCount(text string) int {
	pages := strings.Count(text, "\f") + 1
	return pages
}

// evaluateTextQuality scores extracted text between 0 and 1. Garbage
// extractions score low: mostly non-printable runes, no spaces, or runs
// of replacement characters.
func evaluateTextQuality(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	var printable, letters, spaces, replacement int
	total := 0
	for _, r := range text {
		total++
		switch {
		case r == utf8.RuneError || r == '�':
			replacement++
		case r == ' ' || r == '\n' || r == '\t':
			spaces++
			printable++
		case r >= 0x20:
			printable++
			if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 0x7F {
				letters++
			}
		}
	}

	score := float64(printable) / float64(total)
	if letters == 0 {
		score *= 0.3
	}
	if spaces == 0 && total > 80 {
		score *= 0.5
	}
	if replacement > total/10 {
		score *= 0.4
	}
	if score > 1 {
		score = 1
	}
	return score
}
