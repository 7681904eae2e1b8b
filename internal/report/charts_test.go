package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHTML(miniData(), &buf); err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}

	out := buf.String()
	if len(out) == 0 {
		t.Fatal("Expected rendered page, got empty output")
	}
	for _, want := range []string{
		"Attitude Over Session",
		"Engagements",
		"Session Activity",
		"commanded yaw",
		"observed pitch",
		"ses_mini",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected rendered page to contain %q", want)
		}
	}
}

func TestRenderHTMLEmptySession(t *testing.T) {
	// An empty session still renders a page with empty series.
	var buf bytes.Buffer
	if err := RenderHTML(&SessionData{}, &buf); err != nil {
		t.Fatalf("RenderHTML() error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Expected rendered page, got empty output")
	}
}

func TestWriteHTMLFile(t *testing.T) {
	outDir := t.TempDir()

	path, err := WriteHTMLFile(miniData(), outDir, "range day 1")
	if err != nil {
		t.Fatalf("WriteHTMLFile() error: %v", err)
	}

	want := filepath.Join(outDir, "range_day_1.html")
	if path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Report file not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Expected non-empty report file")
	}
}

func TestWriteHTMLFileSanitizesBaseName(t *testing.T) {
	outDir := t.TempDir()

	path, err := WriteHTMLFile(miniData(), outDir, "../../etc/passwd")
	if err != nil {
		t.Fatalf("WriteHTMLFile() error: %v", err)
	}

	if filepath.Dir(path) != outDir {
		t.Errorf("Expected report inside %s, got %s", outDir, path)
	}
	if filepath.Base(path) != "etc_passwd.html" {
		t.Errorf("Expected sanitized filename etc_passwd.html, got %s", filepath.Base(path))
	}
}

func TestStride(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{4000, 1},
		{4001, 2},
		{8000, 2},
		{40000, 10},
	}

	for _, tt := range tests {
		if got := stride(tt.n); got != tt.want {
			t.Errorf("stride(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
