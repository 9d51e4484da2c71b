package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/walther/conveyor/internal/runtimes"
)

// fakeToolchain writes an executable python shim reporting version.
func fakeToolchain(t *testing.T, versions ...string) *runtimes.Finder {
	t.Helper()
	dir := t.TempDir()
	for _, v := range versions {
		minor := v[:strings.LastIndex(v, ".")] // "3.10.13" -> "3.10"
		script := fmt.Sprintf("#!/bin/sh\necho \"Python %s\"\n", v)
		path := filepath.Join(dir, "python"+minor)
		if err := os.WriteFile(path, []byte(script), 0755); err != nil {
			t.Fatalf("write toolchain: %v", err)
		}
	}
	f := runtimes.NewFinder([]string{dir})
	f.PathEnv = dir
	return f
}

func TestSetupPython_LinksRequestedVersion(t *testing.T) {
	_, ws := newTestWorkspace(t)
	finder := fakeToolchain(t, "3.10.13", "3.12.1")

	var out bytes.Buffer
	err := NewSetupPython(finder).Run(context.Background(), &Inputs{
		With:      map[string]string{"python-version": "3.10"},
		Workspace: ws,
		Output:    &out,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	shim := filepath.Join(ws.Root, "toolchain", "python")
	target, err := os.Readlink(shim)
	if err != nil {
		t.Fatalf("shim python missing: %v", err)
	}
	if filepath.Base(target) != "python3.10" {
		t.Errorf("shim points at %s, want python3.10", target)
	}

	entries, err := ws.ReadPathFile()
	if err != nil {
		t.Fatalf("ReadPathFile() error = %v", err)
	}
	if len(entries) != 1 || entries[0] != filepath.Join(ws.Root, "toolchain") {
		t.Errorf("path entries = %v", entries)
	}

	env, err := ws.ReadEnvFile()
	if err != nil {
		t.Fatalf("ReadEnvFile() error = %v", err)
	}
	if env["PYTHON_VERSION"] != "3.10.13" {
		t.Errorf("PYTHON_VERSION = %q, want 3.10.13", env["PYTHON_VERSION"])
	}
	if env["pythonLocation"] == "" {
		t.Error("pythonLocation not recorded")
	}
}

func TestSetupPython_NoMatch(t *testing.T) {
	_, ws := newTestWorkspace(t)
	finder := fakeToolchain(t, "3.10.13")

	err := NewSetupPython(finder).Run(context.Background(), &Inputs{
		With:      map[string]string{"python-version": "3.13"},
		Workspace: ws,
	})
	if err == nil {
		t.Fatal("expected error for unavailable version")
	}
	if !errors.Is(err, ErrNoMatchingRuntime) {
		t.Errorf("error = %v, want ErrNoMatchingRuntime", err)
	}
}

func TestSetupPython_RequiresVersion(t *testing.T) {
	_, ws := newTestWorkspace(t)

	err := NewSetupPython(fakeToolchain(t, "3.12.1")).Run(context.Background(), &Inputs{
		Workspace: ws,
	})
	if err == nil {
		t.Error("expected error for missing python-version input")
	}
}
