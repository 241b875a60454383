// Package smoothing holds the temporal window of recent raw predictions.
package smoothing

import (
	"math"

	"github.com/Tutortoise/drowsiness-service/models"
)

// DefaultWindow is the number of frames the vote is taken over.
const DefaultWindow = 5

// Buffer is a fixed-capacity ring of raw predictions, oldest first.
// It is not safe for concurrent use; the owner serializes access.
type Buffer struct {
	entries []models.RawPrediction
	start   int
	size    int
}

// New creates a buffer holding at most window entries.
func New(window int) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Buffer{entries: make([]models.RawPrediction, window)}
}

// Push appends p, dropping the oldest entry once the window is full.
func (b *Buffer) Push(p models.RawPrediction) {
	capacity := len(b.entries)
	if b.size < capacity {
		b.entries[(b.start+b.size)%capacity] = p
		b.size++
		return
	}
	b.entries[b.start] = p
	b.start = (b.start + 1) % capacity
}

// Len returns the current occupancy.
func (b *Buffer) Len() int { return b.size }

// Cap returns the window size.
func (b *Buffer) Cap() int { return len(b.entries) }

// Snapshot returns the entries in arrival order.
func (b *Buffer) Snapshot() []models.RawPrediction {
	out := make([]models.RawPrediction, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

// Smooth returns the window verdict and the mean confidence.
// The window reads drowsy once drowsy frames reach half of it (rounded
// down), so a single outlier cannot flip a full window.
func (b *Buffer) Smooth() (models.Label, float64) {
	if b.size == 0 {
		return models.Awake, 0
	}

	drowsy := 0
	sum := 0.0
	for _, p := range b.Snapshot() {
		if p.Label == models.Drowsy {
			drowsy++
		}
		sum += p.Confidence
	}

	label := models.Awake
	if drowsy >= b.size/2 {
		label = models.Drowsy
	}
	return label, sum / float64(b.size)
}

// Observe pushes raw and returns the resulting externally visible result.
func (b *Buffer) Observe(raw models.RawPrediction) models.Result {
	b.Push(raw)
	label, mean := b.Smooth()
	return models.Result{
		Label:         label,
		Confidence:    Round2(mean),
		RawLabel:      raw.Label,
		RawConfidence: Round2(raw.Confidence),
		BufferSize:    b.size,
	}
}

// Round2 rounds to two decimals for reporting.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
