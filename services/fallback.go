package services

import (
	"regexp"
	"strings"

	"document-intelligence-platform/models"
)

// Heuristic fallbacks used when the inference engine answers with valid
// but empty JSON. They keep analysis results non-empty for documents the
// model refuses to engage with.

const fallbackConfidence = 0.58

var sentenceSplitRe = regexp.MustCompile(`(?m)(?:[.!?]+\s+)|\n+`)

// FallbackSummary builds a purely mechanical summary from the text.
func FallbackSummary(text string, level models.SummaryLevel) *models.SummaryPayload {
	sentences := splitSentences(text)

	switch level {
	case models.SummaryDetailed:
		return &models.SummaryPayload{
			Level:   string(level),
			Content: joinCapped(sentences, 8, 900),
		}
	case models.SummaryBullets:
		n := len(sentences)
		if n > 8 {
			n = 8
		}
		bullets := make([]string, 0, n)
		for _, s := range sentences[:n] {
			bullets = append(bullets, capString(s, 200))
		}
		return &models.SummaryPayload{
			Level:   string(level),
			Content: joinCapped(sentences, 1, 200),
			Bullets: bullets,
		}
	default:
		return &models.SummaryPayload{
			Level:   string(models.SummaryBrief),
			Content: joinCapped(sentences, 3, 360),
		}
	}
}

func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

func joinCapped(sentences []string, n, maxChars int) string {
	if len(sentences) == 0 {
		return ""
	}
	if n > len(sentences) {
		n = len(sentences)
	}
	joined := strings.Join(sentences[:n], ". ")
	return capString(joined, maxChars)
}

func capString(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return BuildPreview(s, maxChars)
}

var fallbackPatterns = []struct {
	entityType string
	re         *regexp.Regexp
}{
	{models.EntityEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{models.EntityPhone, regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)},
	{models.EntityAmount, regexp.MustCompile(`(?:[$€£]\s?\d[\d,]*(?:\.\d+)?)|(?:\d[\d,]*(?:\.\d+)?\s?(?:USD|EUR|GBP|dollars?|euros?))`)},
	{models.EntityDate, regexp.MustCompile(`(?:\d{4}-\d{2}-\d{2})|(?:\d{1,2}/\d{1,2}/\d{2,4})|(?:(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})`)},
	{models.EntityOrganization, regexp.MustCompile(`[A-Z][A-Za-z&.\-]*(?:\s+[A-Z][A-Za-z&.\-]*)*\s+(?:Inc|LLC|Ltd|Corp|GmbH|Co)\.?`)},
	{models.EntityAddress, regexp.MustCompile(`\d{1,5}\s+[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)*\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\.?`)},
}

// FallbackEntities extracts entities with regex patterns at a fixed low
// confidence. Duplicate values of the same type are collapsed.
func FallbackEntities(text string) []models.Entity {
	var entities []models.Entity
	seen := make(map[string]bool)

	for _, p := range fallbackPatterns {
		for _, match := range p.re.FindAllString(text, 50) {
			value := strings.TrimSpace(match)
			key := p.entityType + "|" + strings.ToLower(value)
			if value == "" || seen[key] {
				continue
			}
			seen[key] = true
			entities = append(entities, models.Entity{
				Type:       p.entityType,
				Value:      value,
				Confidence: fallbackConfidence,
			})
		}
	}
	return entities
}
