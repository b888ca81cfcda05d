package models

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StatusUploaded, StatusParsing},
		{StatusParsing, StatusAnalyzing},
		{StatusParsing, StatusFailed},
		{StatusAnalyzing, StatusComplete},
		{StatusAnalyzing, StatusFailed},
		{StatusComplete, StatusParsing},
		{StatusComplete, StatusAnalyzing},
		{StatusFailed, StatusParsing},
		{StatusFailed, StatusAnalyzing},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]string{
		{StatusUploaded, StatusAnalyzing},
		{StatusUploaded, StatusComplete},
		{StatusUploaded, StatusFailed},
		{StatusParsing, StatusComplete},
		{StatusParsing, StatusUploaded},
		{StatusAnalyzing, StatusParsing},
		{StatusComplete, StatusFailed},
		{StatusFailed, StatusComplete},
		{StatusComplete, StatusComplete},
		{"bogus", StatusParsing},
		{StatusUploaded, "bogus"},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be rejected", pair[0], pair[1])
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []string{StatusComplete, StatusFailed} {
		if !IsTerminal(status) {
			t.Errorf("%s should be terminal", status)
		}
	}
	for _, status := range []string{StatusUploaded, StatusParsing, StatusAnalyzing} {
		if IsTerminal(status) {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestParseSummaryLevel(t *testing.T) {
	if level, err := ParseSummaryLevel(""); err != nil || level != SummaryBrief {
		t.Errorf("empty level: %v %v", level, err)
	}
	for _, s := range []string{"brief", "detailed", "bullets"} {
		if level, err := ParseSummaryLevel(s); err != nil || string(level) != s {
			t.Errorf("level %q: %v %v", s, level, err)
		}
	}
	if _, err := ParseSummaryLevel("verbose"); err == nil {
		t.Errorf("unknown level accepted")
	}
}
