// Package config holds the service settings. Values come from the
// environment and may be overridden by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Tutortoise/drowsiness-service/cache"
	"github.com/Tutortoise/drowsiness-service/smoothing"
)

type Config struct {
	FaceDetection     bool
	SecondaryDetector bool
	CacheCapacity     int
	SmoothingWindow   int

	ModelPath      string
	CheckpointPath string
	CascadePath    string
	YuNetPath      string
	OrtLibDir      string
	PoolSize       int
	Seed           uint64

	Addr        string
	DatabaseURL string
	LogLevel    string
	Debug       bool
}

func Default() Config {
	return Config{
		FaceDetection:     true,
		SecondaryDetector: false,
		CacheCapacity:     cache.DefaultCapacity,
		SmoothingWindow:   smoothing.DefaultWindow,
		ModelPath:         "models/mobilenet_features.onnx",
		CheckpointPath:    "models/drowsiness_head.json",
		CascadePath:       "models/haarcascade_frontalface_default.xml",
		YuNetPath:         "models/face_detection_yunet.onnx",
		OrtLibDir:         "lib",
		PoolSize:          4,
		Addr:              "127.0.0.1:8080",
		LogLevel:          "info",
	}
}

// FromEnv starts from Default and applies any variables that are set.
// Malformed values are reported together.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	boolean("FACE_DETECTION", &c.FaceDetection)
	boolean("SECONDARY_DETECTOR", &c.SecondaryDetector)
	integer("CACHE_SIZE", &c.CacheCapacity)
	integer("SMOOTHING_WINDOW", &c.SmoothingWindow)
	str("MODEL_PATH", &c.ModelPath)
	str("CHECKPOINT_PATH", &c.CheckpointPath)
	str("CASCADE_PATH", &c.CascadePath)
	str("YUNET_PATH", &c.YuNetPath)
	str("ORT_LIB_DIR", &c.OrtLibDir)
	integer("POOL_SIZE", &c.PoolSize)
	str("ADDR", &c.Addr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("LOG_LEVEL", &c.LogLevel)
	boolean("DEBUG", &c.Debug)

	if v, ok := lookup("MODEL_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MODEL_SEED: %w", err))
		} else {
			c.Seed = seed
		}
	}

	return c, errors.Join(errs...)
}

// Validate rejects settings the detector cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.CacheCapacity <= 0 {
		errs = append(errs, fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity))
	}
	if c.SmoothingWindow <= 0 {
		errs = append(errs, fmt.Errorf("smoothing window must be positive, got %d", c.SmoothingWindow))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool size must be positive, got %d", c.PoolSize))
	}
	if c.SecondaryDetector && !c.FaceDetection {
		errs = append(errs, errors.New("secondary detector requires face detection"))
	}
	return errors.Join(errs...)
}
