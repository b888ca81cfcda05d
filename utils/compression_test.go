package utils

import (
	"strings"
	"testing"
)

func TestCompressRoundtrip(t *testing.T) {
	inputs := []string{
		"",
		"short",
		strings.Repeat("The quarterly report shows steady growth in all regions. ", 200),
		strings.Repeat("日本語テキストの圧縮テスト。", 300),
	}

	for _, algorithm := range []CompressionAlgorithm{CompressionNone, CompressionGzip, CompressionBrotli} {
		for _, input := range inputs {
			compressed, err := CompressData([]byte(input), algorithm)
			if err != nil {
				t.Fatalf("%s compress: %v", algorithm, err)
			}
			restored, err := DecompressData(compressed, algorithm)
			if err != nil {
				t.Fatalf("%s decompress: %v", algorithm, err)
			}
			if string(restored) != input {
				t.Fatalf("%s roundtrip mismatch for %d bytes", algorithm, len(input))
			}
		}
	}
}

func TestCompressDataUnknownAlgorithm(t *testing.T) {
	if _, err := CompressData([]byte("data"), "zstd"); err == nil {
		t.Fatalf("unknown algorithm accepted")
	}
}

func TestGetBestCompression(t *testing.T) {
	if got := GetBestCompression([]byte("tiny")); got != CompressionNone {
		t.Errorf("small payload = %s, want none", got)
	}
	large := []byte(strings.Repeat("a", 600))
	if got := GetBestCompression(large); got != CompressionBrotli {
		t.Errorf("large payload = %s, want brotli", got)
	}
}

func TestCompressTextShrinksLargeInput(t *testing.T) {
	text := strings.Repeat("Document intelligence platform processing pipeline. ", 100)
	compressed, algorithm, err := CompressText(text)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if algorithm != CompressionBrotli {
		t.Fatalf("algorithm = %s", algorithm)
	}
	if len(compressed) >= len(text) {
		t.Fatalf("compressed %d bytes is not smaller than input %d", len(compressed), len(text))
	}

	restored, err := DecompressText(compressed, algorithm)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if restored != text {
		t.Fatalf("roundtrip mismatch")
	}
}
