package detections

// Cascade parameters, tuned permissively.
const (
	CascadeScaleFactor  = 1.1
	CascadeMinNeighbors = 3
	CascadeMinSize      = 30

	// YuNet parameters for the secondary stage.
	YuNetInputSize      = 320
	YuNetScoreThreshold = 0.6
	YuNetNMSThreshold   = 0.3
	YuNetTopK           = 5000
)

// Stage names as reported in logs and probes.
const (
	StagePrimary   = "cascade"
	StageSecondary = "yunet"
	StageFallback  = "full_image"
)
