package preprocess

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/Tutortoise/drowsiness-service/detections"
	"github.com/Tutortoise/drowsiness-service/logging"
	"github.com/Tutortoise/drowsiness-service/models"
)

func solidPNG(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

type stubStage struct {
	region models.Region
	found  bool
	calls  int
}

func (s *stubStage) Name() string { return "stub" }

func (s *stubStage) Locate(image.Image) (models.Region, bool, error) {
	s.calls++
	return s.region, s.found, nil
}

func TestDecodeDataURI(t *testing.T) {
	body := solidPNG(t, 8, 6, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	for _, data := range []string{body, "data:image/png;base64," + body} {
		img, err := Decode(models.Encoded{Data: data})
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got := img.Bounds().Size(); got != image.Pt(8, 6) {
			t.Errorf("size = %v, want 8x6", got)
		}
		if c := img.NRGBAAt(3, 3); c.R != 200 || c.G != 100 || c.B != 50 {
			t.Errorf("pixel = %v", c)
		}
	}
}

func TestDecodePixelsBGR(t *testing.T) {
	img, err := Decode(models.Pixels{
		Pix:    []byte{10, 20, 30, 40, 50, 60},
		Width:  2,
		Height: 1,
		Order:  models.BGR,
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if c := img.NRGBAAt(0, 0); c != (color.NRGBA{R: 30, G: 20, B: 10, A: 255}) {
		t.Errorf("pixel 0 = %v", c)
	}
	if c := img.NRGBAAt(1, 0); c != (color.NRGBA{R: 60, G: 50, B: 40, A: 255}) {
		t.Errorf("pixel 1 = %v", c)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload models.Payload
	}{
		{"nil", nil},
		{"empty", models.Encoded{Data: ""}},
		{"header only", models.Encoded{Data: "data:image/png;base64,"}},
		{"not base64", models.Encoded{Data: "!!!not-base64!!!"}},
		{"not an image", models.Encoded{Data: base64.StdEncoding.EncodeToString([]byte("hello world"))}},
		{"short pixels", models.Pixels{Pix: []byte{1, 2}, Width: 1, Height: 1}},
		{"zero size", models.Pixels{Width: 0, Height: 4}},
		{"bad order", models.Pixels{Pix: []byte{1, 2, 3}, Width: 1, Height: 1, Order: models.ChannelOrder(9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			var de *models.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want DecodeError", err)
			}
		})
	}
}

func TestProcessShapeAndNormalization(t *testing.T) {
	p := New(nil)
	if p.FaceDetection() {
		t.Fatal("FaceDetection should be off without a locator")
	}

	tensor, err := p.Process(models.Encoded{Data: solidPNG(t, 40, 30, color.Black)})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if tensor.Shape != [4]int{1, Channels, InputHeight, InputWidth} {
		t.Fatalf("shape = %v", tensor.Shape)
	}
	if len(tensor.Data) != Channels*InputWidth*InputHeight {
		t.Fatalf("len = %d", len(tensor.Data))
	}

	size := InputWidth * InputHeight
	for c := 0; c < Channels; c++ {
		want := -Mean[c] / Std[c]
		for _, i := range []int{0, size / 2, size - 1} {
			got := tensor.Data[c*size+i]
			if math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("channel %d[%d] = %v, want %v", c, i, got, want)
			}
		}
	}
}

func TestProcessChannelOrder(t *testing.T) {
	// Pure red must land in the first plane regardless of input order.
	pix := bytes.Repeat([]byte{0, 0, 255}, 16*16)
	tensor, err := New(nil).Process(models.Pixels{Pix: pix, Width: 16, Height: 16, Order: models.BGR})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	size := InputWidth * InputHeight
	red := tensor.Data[size/2]
	green := tensor.Data[size+size/2]
	if want := (1 - Mean[0]) / Std[0]; math.Abs(float64(red-want)) > 0.02 {
		t.Errorf("red = %v, want %v", red, want)
	}
	if want := -Mean[1] / Std[1]; math.Abs(float64(green-want)) > 1e-5 {
		t.Errorf("green = %v, want %v", green, want)
	}
}

func TestProcessWithoutFaceFallsBack(t *testing.T) {
	stage := &stubStage{}
	p := New(detections.NewLocator(logging.Discard(), stage, nil))

	timings := &models.ProcessingTimings{}
	tensor, err := p.ProcessTimed(models.Encoded{Data: solidPNG(t, 64, 48, color.White)}, timings)
	if err != nil {
		t.Fatalf("ProcessTimed: %v", err)
	}
	if stage.calls != 1 {
		t.Errorf("stage calls = %d, want 1", stage.calls)
	}
	if len(tensor.Data) != Channels*InputWidth*InputHeight {
		t.Errorf("len = %d", len(tensor.Data))
	}
}

func TestProcessCropsToFace(t *testing.T) {
	// Left half black, right half white. Cropping to the right half
	// must yield an all-white tensor.
	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			if x >= 50 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	stage := &stubStage{region: models.Region{Rect: image.Rect(50, 0, 100, 50)}, found: true}
	p := New(detections.NewLocator(logging.Discard(), stage, nil))

	tensor, err := p.Process(models.Encoded{Data: base64.StdEncoding.EncodeToString(buf.Bytes())})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := (1 - Mean[0]) / Std[0]
	for _, i := range []int{0, InputWidth / 2, InputWidth*InputHeight - 1} {
		if got := tensor.Data[i]; math.Abs(float64(got-want)) > 0.02 {
			t.Errorf("red[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestDecodeBase64Unpadded(t *testing.T) {
	data, err := DecodeBase64("aGVsbG8")
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q", data)
	}
}
