package utils

import "testing"

func TestSha256Hex(t *testing.T) {
	got := Sha256Hex([]byte("hello"))
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("Sha256Hex = %q, want %q", got, want)
	}
	if Sha256Hex([]byte("hello")) != got {
		t.Fatalf("checksum not deterministic")
	}
	if Sha256Hex([]byte("hello!")) == got {
		t.Fatalf("different inputs share a checksum")
	}
}

func TestNormalizeVersionGroup(t *testing.T) {
	cases := map[string]string{
		"Report.pdf":              "report",
		"Report_v2.pdf":           "report",
		"report (3).pdf":          "report",
		"REPORT_final_2.docx":     "report",
		"contract-draft-12.txt":   "contract",
		"Q3 Budget rev 4.xlsx":    "q3-budget",
		"meeting notes.md":        "meeting-notes",
		"/tmp/uploads/Plan_v7.md": "plan",
		"v2.pdf":                  "document",
		"12345.txt":               "document",
	}
	for in, want := range cases {
		if got := NormalizeVersionGroup(in); got != want {
			t.Errorf("NormalizeVersionGroup(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeVersionGroupStable(t *testing.T) {
	variants := []string{"Invoice.pdf", "invoice_v2.pdf", "Invoice (3).pdf", "INVOICE-4.pdf"}
	for _, v := range variants {
		if got := NormalizeVersionGroup(v); got != "invoice" {
			t.Errorf("NormalizeVersionGroup(%q) = %q, want invoice", v, got)
		}
	}
}
