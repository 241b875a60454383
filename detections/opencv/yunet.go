package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/Tutortoise/drowsiness-service/detections"
	"github.com/Tutortoise/drowsiness-service/models"

	"gocv.io/x/gocv"
)

// YuNet is the secondary stage: OpenCV's learned FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the YuNet ONNX model.
func NewYuNet(modelPath string) (*YuNet, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"",
		image.Pt(detections.YuNetInputSize, detections.YuNetInputSize),
		detections.YuNetScoreThreshold,
		detections.YuNetNMSThreshold,
		detections.YuNetTopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector}, nil
}

func (d *YuNet) Name() string { return detections.StageSecondary }

// Locate returns the highest scoring face.
func (d *YuNet) Locate(img image.Image) (models.Region, bool, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return models.Region{}, false, &models.LocatorError{Stage: d.Name(), Message: "convert image", Cause: err}
	}
	defer mat.Close()

	if mat.Empty() {
		return models.Region{}, false, &models.LocatorError{Stage: d.Name(), Message: "empty image"}
	}

	faces := gocv.NewMat()
	defer faces.Close()

	d.mu.Lock()
	d.detector.SetInputSize(image.Pt(mat.Cols(), mat.Rows()))
	d.detector.Detect(mat, &faces)
	d.mu.Unlock()

	// Each row: x, y, w, h, five landmark pairs, score.
	cands := make([]detections.Candidate, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		cands = append(cands, detections.Candidate{
			Rect:  image.Rect(x, y, x+w, y+h),
			Score: float64(faces.GetFloatAt(r, 14)),
		})
	}

	best, ok := detections.BestScored(cands)
	if !ok {
		return models.Region{}, false, nil
	}
	return models.Region{Rect: best.Rect.Add(img.Bounds().Min)}, true, nil
}

// Close releases the detector resources.
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
