package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/edgesight/object-detection-service/detections"
	"github.com/edgesight/object-detection-service/pipeline"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg.Debug)

	libPath, err := resolveSharedLibrary(cfg.OnnxLibPath)
	if err != nil {
		logger.Fatalf("Failed to locate ONNX Runtime: %v", err)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		logger.Fatalf("Failed to initialize ONNX environment: %v", err)
	}
	defer ort.DestroyEnvironment()

	session, err := detections.NewSession(detections.Config{
		ModelPath:     cfg.ModelPath,
		ConfThreshold: cfg.ConfThreshold,
		IoUThreshold:  cfg.IoUThreshold,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create model session: %v", err)
	}
	defer session.Close()

	// The model must prove it can run before the first request is served.
	warmup, err := session.Warmup()
	if err != nil {
		logger.Fatalf("Model warmup failed: %v", err)
	}
	logger.WithField("objects", len(warmup)).Info("Model loaded and warmed up")

	pipe := pipeline.New(session, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pipe.Start(ctx); err != nil {
		logger.Fatalf("Failed to start pipeline: %v", err)
	}

	state := &AppState{
		Pipeline:       pipe,
		Warmup:         warmup,
		Log:            logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Debug:          cfg.Debug,
	}

	srv := &http.Server{
		Handler:      state.Routes(),
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	logger.Infof("Starting server on %s", srv.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatalf("Server error: %v", err)
	case err := <-pipe.Fatal():
		logger.Fatalf("Inference worker failed: %v", err)
	case <-sigChan:
		logger.Info("Shutting down server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown: %v", err)
	}
	_ = pipe.Stop()
}
