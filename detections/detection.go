// Package detections narrows a frame to the most likely face region.
package detections

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/Tutortoise/drowsiness-service/logging"
	"github.com/Tutortoise/drowsiness-service/models"

	"github.com/disintegration/imaging"
)

// Stage is one face detection backend in the fallback chain.
// Locate reports found=false when the backend sees no face; err is set
// only when the backend itself failed.
type Stage interface {
	Name() string
	Locate(img image.Image) (region models.Region, found bool, err error)
}

// Candidate is a scored detection produced by a backend.
type Candidate struct {
	Rect  image.Rectangle
	Score float64
}

// Largest returns the rectangle with maximum area. The first one wins ties.
func Largest(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}
	best := rects[0]
	for _, r := range rects[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best, true
}

// BestScored returns the highest scoring candidate.
func BestScored(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

// Locator runs the primary stage, then the optional secondary stage, and
// falls back to the full image. It never fails.
type Locator struct {
	primary   Stage
	secondary Stage
	log       *slog.Logger
}

// NewLocator builds the chain. Either stage may be nil when unavailable.
func NewLocator(log *slog.Logger, primary, secondary Stage) *Locator {
	return &Locator{
		primary:   primary,
		secondary: secondary,
		log:       logging.Or(log).With("component", "locator"),
	}
}

// HasSecondary reports whether the secondary stage is wired.
func (l *Locator) HasSecondary() bool { return l.secondary != nil }

// Stages returns the configured stages in chain order.
func (l *Locator) Stages() []Stage {
	var stages []Stage
	if l.primary != nil {
		stages = append(stages, l.primary)
	}
	if l.secondary != nil {
		stages = append(stages, l.secondary)
	}
	return stages
}

// Locate returns the cropped face, or img itself with models.FullImage.
func (l *Locator) Locate(img image.Image) (image.Image, models.Region) {
	for _, stage := range l.Stages() {
		region, found, err := run(stage, img)
		if err != nil {
			l.log.Debug("stage failed", "stage", stage.Name(), "error", err)
			continue
		}
		if !found {
			l.log.Debug("no face", "stage", stage.Name())
			continue
		}

		rect := region.Rect.Intersect(img.Bounds())
		if rect.Empty() {
			l.log.Debug("region outside image", "stage", stage.Name(), "rect", region.Rect)
			continue
		}

		l.log.Debug("face located", "stage", stage.Name(), "rect", rect)
		return imaging.Crop(img, rect), models.Region{Rect: rect}
	}

	l.log.Debug("no face located, using full image", "stage", StageFallback)
	return img, models.FullImage
}

// Probe is the outcome of a single stage, for diagnostics.
type Probe struct {
	Stage  string         `json:"stage"`
	Found  bool           `json:"detected"`
	Region *models.Region `json:"region,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Probe runs every stage independently without cropping. When no stage
// finds a face the last entry is the full-image fallback.
func (l *Locator) Probe(img image.Image) []Probe {
	var out []Probe
	detected := false
	for _, stage := range l.Stages() {
		p := Probe{Stage: stage.Name()}
		region, found, err := run(stage, img)
		switch {
		case err != nil:
			p.Error = err.Error()
		case found:
			p.Found = true
			p.Region = &region
			detected = true
		}
		out = append(out, p)
	}
	if !detected {
		full := models.FullImage
		out = append(out, Probe{Stage: StageFallback, Region: &full})
	}
	return out
}

// run contains backend panics so they surface as a LocatorError.
func run(stage Stage, img image.Image) (region models.Region, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			region, found = models.Region{}, false
			err = &models.LocatorError{Stage: stage.Name(), Message: "backend panic", Cause: fmt.Errorf("%v", r)}
		}
	}()
	return stage.Locate(img)
}
