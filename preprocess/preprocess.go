// Package preprocess turns input frames into the classifier's input tensor.
package preprocess

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/Tutortoise/drowsiness-service/detections"
	"github.com/Tutortoise/drowsiness-service/fingerprint"
	"github.com/Tutortoise/drowsiness-service/models"

	"github.com/disintegration/imaging"
)

// Preprocessor decodes, optionally crops to the face, resizes and
// normalizes a frame. It holds no mutable state.
type Preprocessor struct {
	locator *detections.Locator
	channel *channelProcessor
}

// New builds a preprocessor. A nil locator disables face cropping.
func New(locator *detections.Locator) *Preprocessor {
	return &Preprocessor{
		locator: locator,
		channel: newChannelProcessor(InputWidth, InputHeight),
	}
}

// FaceDetection reports whether frames are cropped to the face.
func (p *Preprocessor) FaceDetection() bool { return p.locator != nil }

// Locator returns the face locator, or nil when face detection is off.
func (p *Preprocessor) Locator() *detections.Locator { return p.locator }

// Process produces a 1x3x224x224 tensor for payload.
func (p *Preprocessor) Process(payload models.Payload) (models.Tensor, error) {
	return p.ProcessTimed(payload, &models.ProcessingTimings{})
}

// ProcessTimed is Process with per-step timings recorded into t.
func (p *Preprocessor) ProcessTimed(payload models.Payload, t *models.ProcessingTimings) (models.Tensor, error) {
	decodeStart := time.Now()
	img, err := Decode(payload)
	t.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return models.Tensor{}, err
	}

	var face image.Image = img
	if p.locator != nil {
		locateStart := time.Now()
		face, _ = p.locator.Locate(img)
		t.Locate = time.Since(locateStart)
	}

	resizeStart := time.Now()
	resized := imaging.Resize(face, InputWidth, InputHeight, imaging.Linear)
	t.Resize = time.Since(resizeStart)

	normStart := time.Now()
	tensor := models.Tensor{
		Data:  make([]float32, Channels*InputWidth*InputHeight),
		Shape: [4]int{1, Channels, InputHeight, InputWidth},
	}
	p.channel.process(resized, tensor.Data)
	t.Normalize = time.Since(normStart)

	return tensor, nil
}

// Decode converts a payload into an NRGBA image.
func Decode(payload models.Payload) (*image.NRGBA, error) {
	switch v := payload.(type) {
	case models.Encoded:
		return decodeEncoded(v)
	case models.Pixels:
		return decodePixels(v)
	case nil:
		return nil, &models.DecodeError{Message: "empty payload"}
	default:
		return nil, &models.DecodeError{Message: fmt.Sprintf("unsupported payload %T", payload)}
	}
}

// DecodeBase64 strips an optional data-URI header and decodes the rest.
func DecodeBase64(s string) ([]byte, error) {
	body := strings.TrimSpace(fingerprint.StripHeader(s))
	if body == "" {
		return nil, &models.DecodeError{Message: "empty image data"}
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		// Some clients drop the padding.
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, &models.DecodeError{Message: "invalid base64", Cause: err}
	}
	return data, nil
}

func decodeEncoded(v models.Encoded) (*image.NRGBA, error) {
	data, err := DecodeBase64(v.Data)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &models.DecodeError{Message: "invalid image", Cause: err}
	}
	return imaging.Clone(img), nil
}

func decodePixels(v models.Pixels) (*image.NRGBA, error) {
	if v.Width <= 0 || v.Height <= 0 {
		return nil, &models.DecodeError{Message: fmt.Sprintf("invalid dimensions %dx%d", v.Width, v.Height)}
	}
	if want := v.Width * v.Height * 3; len(v.Pix) != want {
		return nil, &models.DecodeError{Message: fmt.Sprintf("expected %d pixel bytes, got %d", want, len(v.Pix))}
	}

	var ri, bi int
	switch v.Order {
	case models.RGB:
		ri, bi = 0, 2
	case models.BGR:
		ri, bi = 2, 0
	default:
		return nil, &models.DecodeError{Message: fmt.Sprintf("unsupported channel order %d", v.Order)}
	}

	img := image.NewNRGBA(image.Rect(0, 0, v.Width, v.Height))
	for i, j := 0, 0; i < len(v.Pix); i, j = i+3, j+4 {
		img.Pix[j] = v.Pix[i+ri]
		img.Pix[j+1] = v.Pix[i+1]
		img.Pix[j+2] = v.Pix[i+bi]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
