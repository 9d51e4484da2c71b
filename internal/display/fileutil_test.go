package display

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsWorkflowFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ci.yaml", true},
		{"ci.yml", true},
		{"CI.YAML", true},
		{"ci.yaml.bak", false},
		{"ci.json", false},
		{"README.md", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsWorkflowFile(tt.name); got != tt.want {
			t.Errorf("IsWorkflowFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFindWorkflowFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ci.yaml", "release.yml", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Nested files are out of scope for a flat workflows directory.
	if err := os.MkdirAll(filepath.Join(dir, "archive"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "archive", "old.yaml"), []byte("name: y\n"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := FindWorkflowFiles(dir)
	if err != nil {
		t.Fatalf("FindWorkflowFiles() error: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("got %d files %v, want 2", len(files), files)
	}
	if filepath.Base(files[0]) != "ci.yaml" || filepath.Base(files[1]) != "release.yml" {
		t.Errorf("files = %v, want sorted ci.yaml, release.yml", files)
	}
}

func TestFindWorkflowFilesMissingDir(t *testing.T) {
	if _, err := FindWorkflowFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
