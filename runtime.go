package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// ortLibraryPattern returns the glob matching the ONNX Runtime shared
// library for this OS, versioned or not.
func ortLibraryPattern() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime*.dylib"
	case "windows":
		return "onnxruntime*.dll"
	default:
		return "libonnxruntime.so*"
	}
}

// findOrtLibrary looks for the runtime library in dir. The shortest name
// wins, so an unversioned symlink is preferred over versioned files.
func findOrtLibrary(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("no library directory configured")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("library directory not found: %s", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, ortLibraryPattern()))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no onnxruntime library matching %s in %s", ortLibraryPattern(), dir)
	}

	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return matches[0], nil
}

// initRuntime initializes ONNX Runtime from libDir. When it cannot, the
// classifier runs on the pure-Go backbone and ok is false.
func initRuntime(libDir string, log *slog.Logger) (cleanup func(), ok bool) {
	libPath, err := findOrtLibrary(libDir)
	if err != nil {
		log.Warn("onnxruntime not available", "error", err)
		return func() {}, false
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Warn("failed to initialize onnxruntime", "library", libPath, "error", err)
		return func() {}, false
	}

	log.Info("onnxruntime initialized", "library", libPath)
	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Warn("failed to destroy onnxruntime environment", "error", err)
		}
	}, true
}
