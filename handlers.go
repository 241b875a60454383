package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Tutortoise/drowsiness-service/classifier"
	"github.com/Tutortoise/drowsiness-service/detections"
	"github.com/Tutortoise/drowsiness-service/fingerprint"
	"github.com/Tutortoise/drowsiness-service/models"
	"github.com/Tutortoise/drowsiness-service/predictor"
	"github.com/Tutortoise/drowsiness-service/preprocess"
	"github.com/Tutortoise/drowsiness-service/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxUploadBytes = 10 << 20

// frameStore is the persistence the HTTP host records sessions into.
type frameStore interface {
	RecordFrame(ctx context.Context, sessionID string, frameNumber int, fingerprint string, r models.Result) (int64, error)
	SessionFrames(ctx context.Context, sessionID string, limit int) ([]store.Frame, error)
}

type server struct {
	detector      *predictor.Detector
	engine        *classifier.Engine
	locator       *detections.Locator
	store         frameStore
	faceDetection bool
	log           *slog.Logger
	started       time.Time
}

func newServer(a *app, log *slog.Logger) *server {
	s := &server{
		detector:      a.detector,
		engine:        a.engine,
		locator:       a.locator,
		faceDetection: a.locator != nil,
		log:           log.With("component", "http"),
		started:       time.Now(),
	}
	if a.store != nil {
		s.store = a.store
	}
	return s
}

func (s *server) routes(r *mux.Router) {
	r.HandleFunc("/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/face_detection_test", s.handleFaceDetectionTest).Methods("POST")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/model_info", s.handleModelInfo).Methods("GET")
	r.HandleFunc("/performance", s.handlePerformance).Methods("GET")
	r.HandleFunc("/sessions/{id}/frames", s.handleSessionFrames).Methods("GET")
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type PredictResponse struct {
	models.Result
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Cached    bool      `json:"cached"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latency_ms"`
	CacheSize int       `json:"cache_size"`
}

// frameRequest is a decoded request body.
type frameRequest struct {
	payload     models.Payload
	sessionID   string
	frameNumber int
}

func (s *server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	timings := &models.ProcessingTimings{RequestID: requestID}

	req, err := readFrameRequest(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	result, cached := s.detector.PredictTimed(r.Context(), req.payload, timings)
	logTimings(s.log, timings)

	if req.sessionID != "" && s.store != nil {
		fp := fingerprint.Of(req.payload).String()
		if _, err := s.store.RecordFrame(r.Context(), req.sessionID, req.frameNumber, fp, result); err != nil {
			s.log.Warn("failed to record frame", "request_id", requestID, "session_id", req.sessionID, "error", err)
		}
	}

	sendJSON(w, http.StatusOK, PredictResponse{
		Result:    result,
		Success:   !result.Degraded(),
		Message:   resultMessage(result),
		Cached:    cached,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
		CacheSize: s.detector.State().CacheLen(),
	})
}

type FaceDetectionResponse struct {
	FaceDetection bool               `json:"face_detection_enabled"`
	Secondary     bool               `json:"secondary_detector_enabled"`
	Detected      bool               `json:"face_detected"`
	ImageWidth    int                `json:"image_width"`
	ImageHeight   int                `json:"image_height"`
	Stages        []detections.Probe `json:"stages"`
}

func (s *server) handleFaceDetectionTest(w http.ResponseWriter, r *http.Request) {
	req, err := readFrameRequest(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, err := preprocess.Decode(req.payload)
	if err != nil {
		sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
		return
	}

	resp := FaceDetectionResponse{
		FaceDetection: s.faceDetection,
		ImageWidth:    img.Bounds().Dx(),
		ImageHeight:   img.Bounds().Dy(),
		Stages:        []detections.Probe{},
	}
	if s.locator != nil {
		resp.Secondary = s.locator.HasSecondary()
		resp.Stages = s.locator.Probe(img)
		for _, p := range resp.Stages {
			if p.Found {
				resp.Detected = true
			}
		}
	}

	sendJSON(w, http.StatusOK, resp)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"model_loaded":   s.engine != nil,
		"face_detection": s.faceDetection,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

func (s *server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	snap := s.detector.State().Snapshot()
	sendJSON(w, http.StatusOK, map[string]any{
		"model":              s.engine.Info(),
		"face_detection":     s.faceDetection,
		"secondary_detector": s.locator != nil && s.locator.HasSecondary(),
		"smoothing_window":   snap.Window,
		"buffer_size":        snap.BufferSize,
		"cache_capacity":     snap.Cache.Capacity,
	})
}

func (s *server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	snap := s.detector.State().Snapshot()
	response := map[string]any{
		"cache":          snap.Cache,
		"buffer_size":    snap.BufferSize,
		"window":         snap.Window,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}
	if pool := s.engine.Pool(); pool != nil {
		response["session_pool"] = pool.Metrics()
	}
	sendJSON(w, http.StatusOK, response)
}

func (s *server) handleSessionFrames(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendErrorResponse(w, "persistence_disabled", "Session history requires DATABASE_URL", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			sendErrorResponse(w, "invalid_request", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	id := mux.Vars(r)["id"]
	frames, err := s.store.SessionFrames(r.Context(), id, limit)
	if err != nil {
		sendErrorResponse(w, "storage_error", err.Error(), http.StatusInternalServerError)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"frames":     frames,
	})
}

// readFrameRequest accepts a JSON body with a base64 "image", a multipart
// form with a "file" part, or the raw image bytes.
func readFrameRequest(r *http.Request) (frameRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		return handleJSONRequest(r)
	case "multipart/form-data":
		return handleMultipartRequest(r)
	default:
		return handleRawRequest(r)
	}
}

func handleJSONRequest(r *http.Request) (frameRequest, error) {
	var req struct {
		Image       string `json:"image"`
		SessionID   string `json:"session_id"`
		FrameNumber int    `json:"frame_number"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		return frameRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if req.Image == "" {
		return frameRequest{}, errors.New("no image provided")
	}
	return frameRequest{
		payload:     models.Encoded{Data: req.Image},
		sessionID:   req.SessionID,
		frameNumber: req.FrameNumber,
	}, nil
}

func handleMultipartRequest(r *http.Request) (frameRequest, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return frameRequest{}, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return frameRequest{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return frameRequest{}, err
	}
	if len(data) == 0 {
		return frameRequest{}, errors.New("no image provided")
	}

	frameNumber, _ := strconv.Atoi(r.FormValue("frame_number"))
	return frameRequest{
		payload:     models.Encoded{Data: base64.StdEncoding.EncodeToString(data)},
		sessionID:   r.FormValue("session_id"),
		frameNumber: frameNumber,
	}, nil
}

func handleRawRequest(r *http.Request) (frameRequest, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return frameRequest{}, err
	}
	if len(data) == 0 {
		return frameRequest{}, errors.New("no image provided")
	}
	return frameRequest{payload: models.Encoded{Data: base64.StdEncoding.EncodeToString(data)}}, nil
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
