// Package classifier runs the drowsiness model: a convolutional backbone
// followed by a single-logit sigmoid head.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/Tutortoise/drowsiness-service/logging"
	"github.com/Tutortoise/drowsiness-service/models"
	"github.com/Tutortoise/drowsiness-service/preprocess"

	"golang.org/x/sys/cpu"
)

// Threshold separates the labels: drowsy only when p > Threshold.
const Threshold = 0.5

const (
	HeadCheckpoint = "checkpoint"
	HeadRandom     = "random"
)

// Options selects the artifacts to load.
type Options struct {
	ModelPath      string
	CheckpointPath string
	PoolSize       int
	Seed           uint64
	// Runtime reports whether the ONNX Runtime environment is initialized.
	Runtime bool
}

// Engine is read-only after construction and safe for concurrent use.
type Engine struct {
	extractor  FeatureExtractor
	head       Head
	headSource string
	log        *slog.Logger
}

// New assembles an engine from a backbone and a head.
func New(extractor FeatureExtractor, head Head, headSource string, log *slog.Logger) (*Engine, error) {
	if head.Dim() != extractor.Dim() {
		return nil, fmt.Errorf("head expects %d features, backbone produces %d", head.Dim(), extractor.Dim())
	}
	return &Engine{
		extractor:  extractor,
		head:       head,
		headSource: headSource,
		log:        logging.Or(log).With("component", "classifier"),
	}, nil
}

// Load builds the engine from disk. Missing artifacts degrade to the
// pure-Go backbone and a randomly initialized head; both are logged.
func Load(opts Options, log *slog.Logger) (*Engine, error) {
	log = logging.Or(log)

	var extractor FeatureExtractor
	if opts.Runtime && opts.ModelPath != "" {
		e, err := NewONNXExtractor(opts.ModelPath, opts.PoolSize, log)
		if err != nil {
			log.Warn("onnx backbone unavailable, using pooled features", "path", opts.ModelPath, "error", err)
		} else {
			extractor = e
		}
	}
	if extractor == nil {
		extractor = NewPooledExtractor()
	}

	source := HeadCheckpoint
	head, err := LoadCheckpoint(opts.CheckpointPath, extractor.Dim())
	if err != nil {
		log.Warn("no usable checkpoint, head is randomly initialized", "path", opts.CheckpointPath, "error", err)
		head = RandomHead(extractor.Dim(), opts.Seed)
		source = HeadRandom
	}

	return New(extractor, head, source, log)
}

// Infer returns the drowsy probability in [0, 1].
func (e *Engine) Infer(ctx context.Context, t models.Tensor) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &models.InferenceError{Message: "cancelled", Cause: err}
	}

	want := [4]int{1, preprocess.Channels, preprocess.InputHeight, preprocess.InputWidth}
	if t.Shape != want || len(t.Data) != want[1]*want[2]*want[3] {
		return 0, &models.InferenceError{Message: fmt.Sprintf("input shape %v with %d values, want %v", t.Shape, len(t.Data), want)}
	}

	features, err := e.extractor.Extract(ctx, t.Data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, &models.InferenceError{Message: "cancelled", Cause: err}
		}
		return 0, &models.InferenceError{Message: "backbone", Cause: err}
	}

	p, err := e.head.Forward(features)
	if err != nil {
		return 0, &models.InferenceError{Message: "head", Cause: err}
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, &models.InferenceError{Message: "non-finite probability"}
	}
	return p, nil
}

// Classify maps a drowsy probability to a raw prediction. The threshold is
// strict, so exactly 0.5 is awake.
func Classify(p float64) models.RawPrediction {
	label := models.Awake
	if p > Threshold {
		label = models.Drowsy
	}
	return models.RawPrediction{Label: label, Confidence: p * 100}
}

// Pool returns the backbone session pool, or nil for the pure-Go backbone.
func (e *Engine) Pool() *SessionPool {
	if p, ok := e.extractor.(interface{ Pool() *SessionPool }); ok {
		return p.Pool()
	}
	return nil
}

func (e *Engine) Close() error {
	return e.extractor.Close()
}

// Info describes the loaded model.
type Info struct {
	Architecture string   `json:"architecture"`
	Backbone     string   `json:"backbone"`
	FeatureDim   int      `json:"feature_dim"`
	HeadSource   string   `json:"head_source"`
	InputSize    [2]int   `json:"input_size"`
	Threshold    float64  `json:"threshold"`
	Device       string   `json:"device"`
	CPUFeatures  []string `json:"cpu_features"`
}

func (e *Engine) Info() Info {
	return Info{
		Architecture: "MobileNetV2",
		Backbone:     e.extractor.Kind(),
		FeatureDim:   e.extractor.Dim(),
		HeadSource:   e.headSource,
		InputSize:    [2]int{preprocess.InputWidth, preprocess.InputHeight},
		Threshold:    Threshold,
		Device:       "cpu/" + runtime.GOARCH,
		CPUFeatures:  cpuFeatures(),
	}
}

func cpuFeatures() []string {
	features := []string{}
	switch runtime.GOARCH {
	case "amd64", "386":
		for _, f := range []struct {
			name string
			has  bool
		}{
			{"sse4.1", cpu.X86.HasSSE41},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"avx512f", cpu.X86.HasAVX512F},
		} {
			if f.has {
				features = append(features, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fphp")
		}
	}
	return features
}
