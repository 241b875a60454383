package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Tutortoise/drowsiness-service/logging"
)

func TestFindOrtLibrary(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("library naming checked on linux only")
	}

	dir := t.TempDir()
	for _, name := range []string{"libonnxruntime.so.1.20.0", "libonnxruntime.so", "README"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := findOrtLibrary(dir)
	if err != nil {
		t.Fatalf("findOrtLibrary: %v", err)
	}
	if filepath.Base(got) != "libonnxruntime.so" {
		t.Errorf("got %s, want unversioned library", got)
	}
}

func TestFindOrtLibraryMissing(t *testing.T) {
	if _, err := findOrtLibrary(""); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := findOrtLibrary(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing dir")
	}
	if _, err := findOrtLibrary(t.TempDir()); err == nil {
		t.Error("expected error for empty dir contents")
	}
}

func TestInitRuntimeWithoutLibrary(t *testing.T) {
	cleanup, ok := initRuntime(t.TempDir(), logging.Discard())
	if ok {
		t.Error("runtime should not initialize without a library")
	}
	cleanup()
}
