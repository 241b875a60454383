package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/Tutortoise/drowsiness-service/preprocess"

	ort "github.com/yalue/onnxruntime_go"
)

// ortSession owns one AdvancedSession and its bound tensors.
type ortSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *ortSession) Run(input []float32) ([]float32, error) {
	copy(s.input.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, err
	}
	out := s.output.GetData()
	features := make([]float32, len(out))
	copy(features, out)
	return features, nil
}

func (s *ortSession) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// modelIO describes the backbone graph's single input and output.
type modelIO struct {
	input  string
	output string
	dim    int
}

func inspectModel(modelPath string) (modelIO, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return modelIO{}, fmt.Errorf("read model io: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return modelIO{}, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}

	dims := outputs[0].Dimensions
	if len(dims) != 2 || dims[1] <= 0 {
		return modelIO{}, fmt.Errorf("expected output shape [1, dim], got %v", dims)
	}

	return modelIO{
		input:  inputs[0].Name,
		output: outputs[0].Name,
		dim:    int(dims[1]),
	}, nil
}

func initSession(modelPath string, io modelIO) (Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(1)

	inputShape := ort.NewShape(1, preprocess.Channels, preprocess.InputHeight, preprocess.InputWidth)
	outputShape := ort.NewShape(1, int64(io.dim))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{io.input},
		[]string{io.output},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ortSession{session: session, input: inputTensor, output: outputTensor}, nil
}

// onnxExtractor runs the convolutional backbone through a session pool.
type onnxExtractor struct {
	pool *SessionPool
	dim  int
}

// NewONNXExtractor loads the backbone at modelPath into poolSize sessions.
// The ONNX Runtime environment must already be initialized.
func NewONNXExtractor(modelPath string, poolSize int, log *slog.Logger) (FeatureExtractor, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	io, err := inspectModel(modelPath)
	if err != nil {
		return nil, err
	}

	pool, err := newSessionPool(poolSize, func() (Session, error) {
		return initSession(modelPath, io)
	}, log)
	if err != nil {
		return nil, err
	}

	return &onnxExtractor{pool: pool, dim: io.dim}, nil
}

func (e *onnxExtractor) Kind() string { return BackboneONNX }

func (e *onnxExtractor) Dim() int { return e.dim }

// Pool exposes the session pool for metrics.
func (e *onnxExtractor) Pool() *SessionPool { return e.pool }

func (e *onnxExtractor) Extract(ctx context.Context, input []float32) ([]float32, error) {
	return extractWithPool(ctx, e.pool, input)
}

func extractWithPool(ctx context.Context, pool *SessionPool, input []float32) ([]float32, error) {
	session, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	features, err := session.Run(input)
	if err != nil {
		pool.Discard(session)
		return nil, fmt.Errorf("model inference: %w", err)
	}
	pool.Release(session)

	return features, nil
}

func (e *onnxExtractor) Close() error {
	e.pool.Close()
	return nil
}
