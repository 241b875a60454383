package classifier

import (
	"context"
	"fmt"

	"github.com/Tutortoise/drowsiness-service/preprocess"
)

const (
	BackboneONNX   = "onnx"
	BackbonePooled = "pooled"

	// PooledGrid is the side of the average-pool grid used by the
	// pure-Go backbone.
	PooledGrid = 8
)

// FeatureExtractor maps a normalized 1x3x224x224 tensor to a feature
// vector of length Dim.
type FeatureExtractor interface {
	Kind() string
	Dim() int
	Extract(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

// pooledExtractor average-pools each channel over a PooledGrid x PooledGrid
// grid. It needs no external model and is used when the ONNX backbone is
// unavailable.
type pooledExtractor struct {
	grid int
}

// NewPooledExtractor returns the pure-Go backbone.
func NewPooledExtractor() FeatureExtractor {
	return &pooledExtractor{grid: PooledGrid}
}

func (e *pooledExtractor) Kind() string { return BackbonePooled }

func (e *pooledExtractor) Dim() int { return preprocess.Channels * e.grid * e.grid }

func (e *pooledExtractor) Extract(ctx context.Context, input []float32) ([]float32, error) {
	const (
		w = preprocess.InputWidth
		h = preprocess.InputHeight
	)
	if len(input) != preprocess.Channels*w*h {
		return nil, fmt.Errorf("input length %d, want %d", len(input), preprocess.Channels*w*h)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := make([]float32, e.Dim())
	for c := 0; c < preprocess.Channels; c++ {
		plane := input[c*w*h : (c+1)*w*h]
		for gy := 0; gy < e.grid; gy++ {
			y0, y1 := gy*h/e.grid, (gy+1)*h/e.grid
			for gx := 0; gx < e.grid; gx++ {
				x0, x1 := gx*w/e.grid, (gx+1)*w/e.grid

				var sum float64
				for y := y0; y < y1; y++ {
					row := plane[y*w : (y+1)*w]
					for x := x0; x < x1; x++ {
						sum += float64(row[x])
					}
				}
				features[(c*e.grid+gy)*e.grid+gx] = float32(sum / float64((y1-y0)*(x1-x0)))
			}
		}
	}
	return features, nil
}

func (e *pooledExtractor) Close() error { return nil }
