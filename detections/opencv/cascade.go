// Package opencv implements face locator stages on top of GoCV.
package opencv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/Tutortoise/drowsiness-service/detections"
	"github.com/Tutortoise/drowsiness-service/models"

	"gocv.io/x/gocv"
)

// CascadeFile is the frontal face model shipped with OpenCV.
const CascadeFile = "haarcascade_frontalface_default.xml"

// cascadeSearchPaths are tried when the configured path does not exist.
var cascadeSearchPaths = []string{
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// Cascade is the primary stage: a Haar cascade over the grayscale frame.
type Cascade struct {
	classifier gocv.CascadeClassifier
	path       string
	mu         sync.Mutex // Protects detection
}

// NewCascade loads the cascade at path, falling back to the usual
// OpenCV install locations.
func NewCascade(path string) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()

	candidates := []string{path}
	for _, dir := range cascadeSearchPaths {
		candidates = append(candidates, filepath.Join(dir, CascadeFile))
	}

	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if classifier.Load(p) {
			return &Cascade{classifier: classifier, path: p}, nil
		}
	}

	classifier.Close()
	return nil, fmt.Errorf("failed to load face cascade from %s or alternative paths", path)
}

func (c *Cascade) Name() string { return detections.StagePrimary }

// Path returns the file the cascade was loaded from.
func (c *Cascade) Path() string { return c.path }

// Locate returns the largest face found by the cascade.
func (c *Cascade) Locate(img image.Image) (models.Region, bool, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return models.Region{}, false, &models.LocatorError{Stage: c.Name(), Message: "convert image", Cause: err}
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	c.mu.Lock()
	faces := c.classifier.DetectMultiScaleWithParams(
		gray,
		detections.CascadeScaleFactor,
		detections.CascadeMinNeighbors,
		0,
		image.Pt(detections.CascadeMinSize, detections.CascadeMinSize),
		image.Pt(0, 0),
	)
	c.mu.Unlock()

	best, ok := detections.Largest(faces)
	if !ok {
		return models.Region{}, false, nil
	}
	return models.Region{Rect: best.Add(img.Bounds().Min)}, true, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifier.Close()
	return nil
}
