package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/drowsiness-service/classifier"
	"github.com/Tutortoise/drowsiness-service/config"
	"github.com/Tutortoise/drowsiness-service/detections"
	"github.com/Tutortoise/drowsiness-service/detections/opencv"
	"github.com/Tutortoise/drowsiness-service/logging"
	"github.com/Tutortoise/drowsiness-service/models"
	"github.com/Tutortoise/drowsiness-service/predictor"
	"github.com/Tutortoise/drowsiness-service/preprocess"
	"github.com/Tutortoise/drowsiness-service/store"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg     config.Config
	flagCfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:           "drowsiness",
	Short:         "Real-time drowsiness classification service",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
		cfg = applyFlags(cmd, env)
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.LogLevel
		if cfg.Debug {
			level = "debug"
		}
		logging.Init(level)
		return nil
	},
}

// applyFlags overrides env values with the flags given on the command line.
func applyFlags(cmd *cobra.Command, c config.Config) config.Config {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("face-detection", func() { c.FaceDetection = flagCfg.FaceDetection })
	set("secondary-detector", func() { c.SecondaryDetector = flagCfg.SecondaryDetector })
	set("cache-size", func() { c.CacheCapacity = flagCfg.CacheCapacity })
	set("window", func() { c.SmoothingWindow = flagCfg.SmoothingWindow })
	set("model", func() { c.ModelPath = flagCfg.ModelPath })
	set("checkpoint", func() { c.CheckpointPath = flagCfg.CheckpointPath })
	set("cascade", func() { c.CascadePath = flagCfg.CascadePath })
	set("yunet", func() { c.YuNetPath = flagCfg.YuNetPath })
	set("ort-lib-dir", func() { c.OrtLibDir = flagCfg.OrtLibDir })
	set("pool-size", func() { c.PoolSize = flagCfg.PoolSize })
	set("seed", func() { c.Seed = flagCfg.Seed })
	set("addr", func() { c.Addr = flagCfg.Addr })
	set("db", func() { c.DatabaseURL = flagCfg.DatabaseURL })
	set("log-level", func() { c.LogLevel = flagCfg.LogLevel })
	set("debug", func() { c.Debug = flagCfg.Debug })
	return c
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagCfg.FaceDetection, "face-detection", flagCfg.FaceDetection, "Crop frames to the detected face (env FACE_DETECTION)")
	pf.BoolVar(&flagCfg.SecondaryDetector, "secondary-detector", flagCfg.SecondaryDetector, "Enable the YuNet fallback detector (env SECONDARY_DETECTOR)")
	pf.IntVar(&flagCfg.CacheCapacity, "cache-size", flagCfg.CacheCapacity, "Result cache capacity (env CACHE_SIZE)")
	pf.IntVar(&flagCfg.SmoothingWindow, "window", flagCfg.SmoothingWindow, "Smoothing window length (env SMOOTHING_WINDOW)")
	pf.StringVar(&flagCfg.ModelPath, "model", flagCfg.ModelPath, "Backbone ONNX model (env MODEL_PATH)")
	pf.StringVar(&flagCfg.CheckpointPath, "checkpoint", flagCfg.CheckpointPath, "Classifier head weights, JSON (env CHECKPOINT_PATH)")
	pf.StringVar(&flagCfg.CascadePath, "cascade", flagCfg.CascadePath, "Haar cascade XML (env CASCADE_PATH)")
	pf.StringVar(&flagCfg.YuNetPath, "yunet", flagCfg.YuNetPath, "YuNet face detector ONNX (env YUNET_PATH)")
	pf.StringVar(&flagCfg.OrtLibDir, "ort-lib-dir", flagCfg.OrtLibDir, "Directory holding the onnxruntime library (env ORT_LIB_DIR)")
	pf.IntVar(&flagCfg.PoolSize, "pool-size", flagCfg.PoolSize, "Number of inference sessions (env POOL_SIZE)")
	pf.Uint64Var(&flagCfg.Seed, "seed", 0, "Seed for an untrained head, 0 for random (env MODEL_SEED)")
	pf.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "debug, info, warn or error (env LOG_LEVEL)")
	pf.BoolVar(&flagCfg.Debug, "debug", flagCfg.Debug, "Log per-request timings (env DEBUG)")

	serveCmd.Flags().StringVar(&flagCfg.Addr, "addr", flagCfg.Addr, "Listen address (env ADDR)")
	serveCmd.Flags().StringVar(&flagCfg.DatabaseURL, "db", "", "PostgreSQL connection string for session history (env DATABASE_URL)")

	rootCmd.AddCommand(serveCmd, predictCmd)
}

// app is the assembled inference core plus its optional collaborators.
type app struct {
	cfg      config.Config
	detector *predictor.Detector
	engine   *classifier.Engine
	locator  *detections.Locator
	store    *store.Store
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// bootstrap loads every component. Missing artifacts degrade the service
// instead of stopping it; only the database is fatal once configured.
func bootstrap(ctx context.Context, c config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: c}

	cleanup, runtimeReady := initRuntime(c.OrtLibDir, log)
	a.closers = append(a.closers, cleanup)

	engine, err := classifier.Load(classifier.Options{
		ModelPath:      c.ModelPath,
		CheckpointPath: c.CheckpointPath,
		PoolSize:       c.PoolSize,
		Seed:           c.Seed,
		Runtime:        runtimeReady,
	}, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, func() { engine.Close() })

	if c.FaceDetection {
		a.locator = a.buildLocator(c, log)
	}

	pre := preprocess.New(a.locator)
	a.detector = predictor.New(pre, engine, predictor.NewState(c.SmoothingWindow, c.CacheCapacity), log)

	if c.DatabaseURL != "" {
		s, err := store.New(ctx, c.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	}

	info := engine.Info()
	log.Info("detector ready",
		"backbone", info.Backbone,
		"head", info.HeadSource,
		"face_detection", c.FaceDetection,
		"secondary_detector", a.locator != nil && a.locator.HasSecondary(),
		"window", c.SmoothingWindow,
		"cache_capacity", c.CacheCapacity,
	)
	return a, nil
}

func (a *app) buildLocator(c config.Config, log *slog.Logger) *detections.Locator {
	var primary, secondary detections.Stage

	cascade, err := opencv.NewCascade(c.CascadePath)
	if err != nil {
		log.Warn("face cascade unavailable, using full frames", "error", err)
	} else {
		primary = cascade
		a.closers = append(a.closers, func() { cascade.Close() })
		log.Info("face cascade loaded", "path", cascade.Path())
	}

	if c.SecondaryDetector {
		yunet, err := opencv.NewYuNet(c.YuNetPath)
		if err != nil {
			log.Warn("secondary face detector unavailable", "error", err)
		} else {
			secondary = yunet
			a.closers = append(a.closers, func() { yunet.Close() })
		}
	}

	return detections.NewLocator(log, primary, secondary)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP prediction server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.L()
		ctx := cmd.Context()

		a, err := bootstrap(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		r := mux.NewRouter()
		newServer(a, log).routes(r)

		srv := &http.Server{
			Handler:      r,
			Addr:         cfg.Addr,
			WriteTimeout: 60 * time.Second,
			ReadTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting server", "addr", srv.Addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func logTimings(log *slog.Logger, t *models.ProcessingTimings) {
	log.Debug("processing times",
		"request_id", t.RequestID,
		"image_decode", t.ImageDecode,
		"locate", t.Locate,
		"resize", t.Resize,
		"normalize", t.Normalize,
		"inference", t.Inference,
		"total", t.Total,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
