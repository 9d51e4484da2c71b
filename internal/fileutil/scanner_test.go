package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTree creates the given files (relative paths) under dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestScanDirectory_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"ci.yaml":     "",
		"release.YML": "",
		"readme.md":   "",
		"script.sh":   "",
	})

	result, err := ScanDirectory(dir, ScanOptions{Extensions: []string{".yaml", "yml"}})
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	got := baseNames(result.Files)
	if len(got) != 2 {
		t.Fatalf("files = %v, want 2 matches", got)
	}
	if got[0] != "ci.yaml" || got[1] != "release.YML" {
		t.Errorf("files = %v", got)
	}
}

func TestScanDirectory_Recursive(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"ci.yaml":            "",
		"nested/deploy.yaml": "",
	})

	flat, err := ScanDirectory(dir, ScanOptions{Extensions: []string{".yaml"}})
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	if len(flat.Files) != 1 {
		t.Errorf("non-recursive scan found %v", baseNames(flat.Files))
	}

	deep, err := ScanDirectory(dir, ScanOptions{Extensions: []string{".yaml"}, Recursive: true})
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	if len(deep.Files) != 2 {
		t.Errorf("recursive scan found %v", baseNames(deep.Files))
	}
}

func TestScanDirectory_SkipsHiddenAndExcluded(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"ci.yaml":                 "",
		".conveyor/runs/old.yaml": "",
		"vendor/dep.yaml":         "",
	})

	result, err := ScanDirectory(dir, ScanOptions{
		Extensions:  []string{".yaml"},
		Recursive:   true,
		ExcludeDirs: []string{"vendor"},
	})
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}
	if len(result.Files) != 1 || filepath.Base(result.Files[0]) != "ci.yaml" {
		t.Errorf("files = %v, hidden or excluded dir leaked", baseNames(result.Files))
	}
}

func TestScanDirectory_MissingRoot(t *testing.T) {
	if _, err := ScanDirectory(filepath.Join(t.TempDir(), "absent"), ScanOptions{}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "ws", "src")
	writeTree(t, src, map[string]string{
		"app.py":            "print('hi')\n",
		"tests/test_app.py": "def test(): pass\n",
		".git/HEAD":         "ref: refs/heads/main\n",
	})

	n, err := CopyTree(src, dst, CopyOptions{SkipNames: []string{".git"}})
	if err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	if n != 2 {
		t.Errorf("copied %d files, want 2", n)
	}

	data, err := os.ReadFile(filepath.Join(dst, "tests", "test_app.py"))
	if err != nil {
		t.Fatalf("copied file missing: %v", err)
	}
	if string(data) != "def test(): pass\n" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dst, ".git")); !os.IsNotExist(err) {
		t.Error(".git should not be copied")
	}
}

func TestCopyTree_SkipPaths(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"app.py":                        "x",
		".conveyor/runs/run-1/file.txt": "state",
	})

	dst := filepath.Join(t.TempDir(), "src")
	n, err := CopyTree(src, dst, CopyOptions{
		SkipPaths: []string{filepath.Join(src, ".conveyor", "runs")},
	})
	if err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	if n != 1 {
		t.Errorf("copied %d files, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(dst, ".conveyor", "runs")); !os.IsNotExist(err) {
		t.Error("runs dir should not be copied into the checkout")
	}
}

func TestCopyTree_SkipsSymlinks(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"real.txt": "data"})
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "src")
	n, err := CopyTree(src, dst, CopyOptions{})
	if err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	if n != 1 {
		t.Errorf("copied %d files, want 1", n)
	}
	if _, err := os.Lstat(filepath.Join(dst, "link.txt")); !os.IsNotExist(err) {
		t.Error("symlink should not be copied")
	}
}

func TestCopyTree_PreservesExecutableBit(t *testing.T) {
	src := t.TempDir()
	script := filepath.Join(src, "run.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "src")
	if _, err := CopyTree(src, dst, CopyOptions{}); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	if err != nil {
		t.Fatalf("stat copy: %v", err)
	}
	if info.Mode().Perm()&0111 == 0 {
		t.Error("executable bit lost in copy")
	}
}
