package classifier

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Tutortoise/drowsiness-service/logging"

	ort "github.com/yalue/onnxruntime_go"
)

// findArtifact walks up from the package directory looking for dir/name.
func findArtifact(dir, name string) string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for d := wd; ; d = filepath.Dir(d) {
		p := filepath.Join(d, dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		if filepath.Dir(d) == d {
			return ""
		}
	}
}

func TestONNXExtractor(t *testing.T) {
	lib := "libonnxruntime.so"
	if runtime.GOOS == "darwin" {
		lib = "libonnxruntime.dylib"
	}
	libPath := findArtifact("lib", lib)
	modelPath := findArtifact("models", "mobilenet_features.onnx")
	if libPath == "" || modelPath == "" {
		t.Skip("onnxruntime library or backbone model not found")
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		t.Skipf("onnxruntime unavailable: %v", err)
	}
	defer ort.DestroyEnvironment()

	e, err := NewONNXExtractor(modelPath, 1, logging.Discard())
	if err != nil {
		t.Fatalf("NewONNXExtractor: %v", err)
	}
	defer e.Close()

	features, err := e.Extract(context.Background(), inputTensor(0).Data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(features) != e.Dim() {
		t.Errorf("features = %d, want %d", len(features), e.Dim())
	}
}
