package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
)

// Sha256Hex returns the lowercase hex SHA-256 digest of data. This is the
// content checksum used for cache keys and duplicate detection.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var (
	versionSuffixRe = regexp.MustCompile(`[_\-\s]*(v|ver|version|rev|draft|final|copy)?[_\-\s]*\(?\d+\)?$`)
	slugCleanRe     = regexp.MustCompile(`[^a-z0-9]+`)
	slugDashRe      = regexp.MustCompile(`-{2,}`)
)

// NormalizeVersionGroup derives the version-group slug for a filename.
// "Report_v2.pdf", "report (3).pdf" and "REPORT.pdf" all normalize to
// "report" so uploads of the same logical document land in one group.
func NormalizeVersionGroup(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.ToLower(strings.TrimSpace(base))
	base = versionSuffixRe.ReplaceAllString(base, "")
	base = slugCleanRe.ReplaceAllString(base, "-")
	base = slugDashRe.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		return "document"
	}
	return base
}
