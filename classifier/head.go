package classifier

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Head is the binary classification layer: Linear(dim, 1) followed by a
// sigmoid.
type Head struct {
	Weight []float32
	Bias   float32
}

// NewHead validates the parameters against the feature dimension.
func NewHead(weight []float32, bias float32, dim int) (Head, error) {
	if len(weight) != dim {
		return Head{}, fmt.Errorf("head weight has %d inputs, backbone produces %d", len(weight), dim)
	}
	return Head{Weight: weight, Bias: bias}, nil
}

// RandomHead initializes the layer uniformly in [-1/sqrt(dim), 1/sqrt(dim)].
// A zero seed draws one from the clock.
func RandomHead(dim int, seed uint64) Head {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	bound := 1 / math.Sqrt(float64(dim))

	uniform := func() float32 {
		return float32((rng.Float64()*2 - 1) * bound)
	}

	weight := make([]float32, dim)
	for i := range weight {
		weight[i] = uniform()
	}
	return Head{Weight: weight, Bias: uniform()}
}

func (h Head) Dim() int { return len(h.Weight) }

// Forward returns the drowsy probability for a feature vector.
func (h Head) Forward(features []float32) (float64, error) {
	if len(features) != len(h.Weight) {
		return 0, fmt.Errorf("feature length %d, head expects %d", len(features), len(h.Weight))
	}

	z := float64(h.Bias)
	for i, f := range features {
		z += float64(h.Weight[i]) * float64(f)
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
