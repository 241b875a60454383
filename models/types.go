package models

import (
	"image"
	"time"
)

// Label is the classifier verdict for a frame.
type Label string

const (
	Awake  Label = "awake"
	Drowsy Label = "drowsy"
)

// ChannelOrder describes how interleaved pixel bytes are laid out.
type ChannelOrder int

const (
	RGB ChannelOrder = iota
	BGR
)

func (o ChannelOrder) String() string {
	switch o {
	case RGB:
		return "rgb"
	case BGR:
		return "bgr"
	default:
		return "unknown"
	}
}

// Payload is an input frame. It is implemented only by Encoded and Pixels.
type Payload interface {
	isPayload()
}

// Encoded is a base64 image, optionally carrying a data-URI header
// such as "data:image/jpeg;base64,".
type Encoded struct {
	Data string
}

// Pixels is a raw interleaved 8-bit, 3-channel frame.
type Pixels struct {
	Pix    []byte
	Width  int
	Height int
	Order  ChannelOrder
}

func (Encoded) isPayload() {}
func (Pixels) isPayload()  {}

// Region is the face area used for cropping. Full means no crop was applied.
type Region struct {
	Rect image.Rectangle `json:"rect"`
	Full bool            `json:"full"`
}

// FullImage is the "no crop" region.
var FullImage = Region{Full: true}

// Tensor is a batched NCHW float tensor.
type Tensor struct {
	Data  []float32
	Shape [4]int
}

// RawPrediction is the unsmoothed outcome for a single frame.
// Confidence is a percentage in [0, 100].
type RawPrediction struct {
	Label      Label
	Confidence float64
}

// Result is the externally visible prediction. A degraded result carries
// a non-empty Error, Label awake and Confidence 0, and serializes as just
// those three fields.
type Result struct {
	Label         Label   `json:"prediction"`
	Confidence    float64 `json:"confidence"`
	RawLabel      Label   `json:"raw_prediction,omitempty"`
	RawConfidence float64 `json:"raw_confidence,omitempty"`
	BufferSize    int     `json:"buffer_size,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Degraded reports whether the result came from a failed prediction.
func (r Result) Degraded() bool {
	return r.Error != ""
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Locate      time.Duration
	Resize      time.Duration
	Normalize   time.Duration
	Inference   time.Duration
	Total       time.Duration
}
