package pdfdoc

import (
	"strings"
	"testing"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint([]byte("exam booklet bytes"))
	b := Fingerprint([]byte("exam booklet bytes"))
	c := Fingerprint([]byte("answer key bytes"))

	if a != b {
		t.Errorf("same input produced different fingerprints: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different inputs produced the same fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
	if strings.ToLower(a) != a {
		t.Errorf("fingerprint should be lowercase hex: %q", a)
	}
}

func TestExtractText_InvalidDocument(t *testing.T) {
	if _, err := ExtractText([]byte("not a pdf")); err == nil {
		t.Error("ExtractText() should fail on a non-PDF buffer")
	}
}

func TestExtractLayout_InvalidDocument(t *testing.T) {
	if _, err := ExtractLayout([]byte("not a pdf")); err == nil {
		t.Error("ExtractLayout() should fail on a non-PDF buffer")
	}
}

func TestRenderPages_InvalidScale(t *testing.T) {
	if _, err := RenderPages([]byte("%PDF-1.4"), t.TempDir(), 0); err == nil {
		t.Error("RenderPages() should reject a non-positive scale")
	}
}

func TestRenderPages_InvalidDocument(t *testing.T) {
	if _, err := RenderPages([]byte("not a pdf"), t.TempDir(), 2); err == nil {
		t.Error("RenderPages() should fail on a non-PDF buffer")
	}
}
