package fingerprint

import (
	"testing"

	"github.com/Tutortoise/drowsiness-service/models"
)

func TestOf_Deterministic(t *testing.T) {
	p := models.Encoded{Data: "aGVsbG8gd29ybGQ="}

	a := Of(p)
	b := Of(p)
	if a != b {
		t.Errorf("Fingerprint is not deterministic. Got %s, then %s", a, b)
	}
}

func TestOf_StripsDataURIHeader(t *testing.T) {
	body := "/9j/4AAQSkZJRgABAQAAAQABAAD"

	plain := Of(models.Encoded{Data: body})
	prefixed := Of(models.Encoded{Data: "data:image/jpeg;base64," + body})
	if plain != prefixed {
		t.Errorf("Expected prefixed payload to hash like the bare body, got %s vs %s", prefixed, plain)
	}
}

func TestOf_Sensitivity(t *testing.T) {
	a := Of(models.Encoded{Data: "AAAA"})
	b := Of(models.Encoded{Data: "AAAB"})
	if a == b {
		t.Error("Different payloads produced the same fingerprint")
	}
}

func TestOf_Pixels(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6}
	rgb := models.Pixels{Pix: pix, Width: 2, Height: 1, Order: models.RGB}
	bgr := models.Pixels{Pix: pix, Width: 2, Height: 1, Order: models.BGR}
	tall := models.Pixels{Pix: pix, Width: 1, Height: 2, Order: models.RGB}

	if Of(rgb) != Of(rgb) {
		t.Error("Pixel fingerprint is not deterministic")
	}
	if Of(rgb) == Of(bgr) {
		t.Error("Channel order should change the fingerprint")
	}
	if Of(rgb) == Of(tall) {
		t.Error("Dimensions should change the fingerprint")
	}
}

func TestStripHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no header", "QUJD", "QUJD"},
		{"jpeg header", "data:image/jpeg;base64,QUJD", "QUJD"},
		{"first marker only", "xbase64,QUJDbase64,RA==", "QUJDbase64,RA=="},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripHeader(tc.in); got != tc.want {
				t.Errorf("StripHeader(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestShort(t *testing.T) {
	f := Of(models.Encoded{Data: "QUJD"})
	if len(f.Short()) != 12 {
		t.Errorf("Expected 12 characters, got %q", f.Short())
	}
	if len(f.String()) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(f.String()))
	}
}
