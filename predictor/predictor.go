// Package predictor is the single entry point of the inference core. It
// turns a frame into a smoothed result and never fails: every error ends
// up as a degraded result.
package predictor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tutortoise/drowsiness-service/cache"
	"github.com/Tutortoise/drowsiness-service/classifier"
	"github.com/Tutortoise/drowsiness-service/fingerprint"
	"github.com/Tutortoise/drowsiness-service/logging"
	"github.com/Tutortoise/drowsiness-service/models"
	"github.com/Tutortoise/drowsiness-service/smoothing"

	"golang.org/x/sync/singleflight"
)

// Preprocessor turns a payload into the model input tensor.
type Preprocessor interface {
	ProcessTimed(payload models.Payload, t *models.ProcessingTimings) (models.Tensor, error)
}

// Classifier returns the drowsy probability for a tensor.
type Classifier interface {
	Infer(ctx context.Context, t models.Tensor) (float64, error)
}

// State is the mutable part of a detector: the smoothing window and the
// result cache. Both are only touched with mu held.
type State struct {
	mu     sync.Mutex
	buffer *smoothing.Buffer
	cache  *cache.FIFO
}

// NewState creates empty state. Non-positive sizes select the defaults.
func NewState(window, capacity int) *State {
	return &State{
		buffer: smoothing.New(window),
		cache:  cache.New(capacity),
	}
}

// Snapshot is a consistent read of State.
type Snapshot struct {
	Cache      cache.Stats            `json:"cache"`
	BufferSize int                    `json:"buffer_size"`
	Window     int                    `json:"window"`
	Recent     []models.RawPrediction `json:"-"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Cache:      s.cache.Stats(),
		BufferSize: s.buffer.Len(),
		Window:     s.buffer.Cap(),
		Recent:     s.buffer.Snapshot(),
	}
}

// CacheLen returns the number of cached results.
func (s *State) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *State) lookup(fp fingerprint.Fingerprint) (models.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(fp)
}

// settled returns a result another call stored after our lookup missed.
// It leaves the hit and miss counters alone.
func (s *State) settled(fp fingerprint.Fingerprint) (models.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Peek(fp)
}

// commit records a completed prediction. The buffer append and the cache
// insert happen together so the window follows completion order. A frame
// already cached keeps its stored result and does not advance the window.
func (s *State) commit(fp fingerprint.Fingerprint, raw models.RawPrediction) (result models.Result, fresh bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.cache.Peek(fp); ok {
		return r, false, nil
	}
	result = s.buffer.Observe(raw)
	s.cache.Put(fp, result)
	return result, true, s.cache.Verify()
}

// Detector is safe for concurrent use.
type Detector struct {
	pre    Preprocessor
	engine Classifier
	state  *State
	group  singleflight.Group
	log    *slog.Logger
}

// New wires a detector. A nil state starts with default sizes.
func New(pre Preprocessor, engine Classifier, state *State, log *slog.Logger) *Detector {
	if state == nil {
		state = NewState(smoothing.DefaultWindow, cache.DefaultCapacity)
	}
	return &Detector{
		pre:    pre,
		engine: engine,
		state:  state,
		log:    logging.Or(log).With("component", "predictor"),
	}
}

// State returns the detector's mutable state.
func (d *Detector) State() *State { return d.state }

// Predict classifies one frame.
func (d *Detector) Predict(ctx context.Context, payload models.Payload) models.Result {
	result, _ := d.PredictTimed(ctx, payload, &models.ProcessingTimings{})
	return result
}

// PredictTimed is Predict with step timings recorded into t. cached
// reports whether the result came from the cache. Identical frames that
// miss the cache concurrently are computed once and advance the window
// once; every caller of a collapsed call receives the step timings of the
// call that did the work.
func (d *Detector) PredictTimed(ctx context.Context, payload models.Payload, t *models.ProcessingTimings) (result models.Result, cached bool) {
	start := time.Now()
	defer func() {
		t.Total = time.Since(start)
		if r := recover(); r != nil {
			d.log.Error("prediction panicked", "panic", r)
			result, cached = Degraded(fmt.Errorf("internal error: %v", r)), false
		}
	}()

	fp := fingerprint.Of(payload)
	if r, ok := d.state.lookup(fp); ok {
		return r, true
	}

	v, err, _ := d.group.Do(fp.String(), func() (any, error) {
		return d.resolve(ctx, fp, payload)
	})
	o := v.(*outcome)
	copySteps(t, &o.timings)
	if err != nil {
		d.log.Warn("prediction failed", "fingerprint", fp.Short(), "error", err)
		return Degraded(err), false
	}
	return o.result, o.cached
}

// outcome is what a collapsed call hands to all of its callers.
type outcome struct {
	result  models.Result
	cached  bool
	timings models.ProcessingTimings
}

// copySteps copies the per-step durations, leaving RequestID and Total.
func copySteps(dst, src *models.ProcessingTimings) {
	dst.ImageDecode = src.ImageDecode
	dst.Locate = src.Locate
	dst.Resize = src.Resize
	dst.Normalize = src.Normalize
	dst.Inference = src.Inference
}

// resolve runs under the singleflight key. The cache is checked again
// because a previous call for the same frame may have finished between
// the caller's lookup and joining the group.
func (d *Detector) resolve(ctx context.Context, fp fingerprint.Fingerprint, payload models.Payload) (*outcome, error) {
	o := &outcome{}
	if r, ok := d.state.settled(fp); ok {
		o.result, o.cached = r, true
		return o, nil
	}

	result, fresh, err := d.compute(ctx, fp, payload, &o.timings)
	o.result, o.cached = result, !fresh
	return o, err
}

func (d *Detector) compute(ctx context.Context, fp fingerprint.Fingerprint, payload models.Payload, t *models.ProcessingTimings) (models.Result, bool, error) {
	tensor, err := d.pre.ProcessTimed(payload, t)
	if err != nil {
		return models.Result{}, false, err
	}

	inferStart := time.Now()
	p, err := d.engine.Infer(ctx, tensor)
	t.Inference = time.Since(inferStart)
	if err != nil {
		return models.Result{}, false, err
	}

	result, fresh, err := d.state.commit(fp, classifier.Classify(p))
	if err != nil {
		// The result is still valid; the cache bookkeeping is not.
		d.log.Error("cache invariant", "error", err)
	}
	return result, fresh, nil
}

// Degraded is the result returned for a failed prediction.
func Degraded(err error) models.Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return models.Result{Label: models.Awake, Confidence: 0, Error: msg}
}

