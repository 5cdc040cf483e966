package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/edgesight/object-detection-service/detections"
)

// Config is the process configuration, read once at startup. A .env file is
// honored when present; real environment variables win.
type Config struct {
	Addr           string
	ModelPath      string
	OnnxLibPath    string
	ConfThreshold  float32
	IoUThreshold   float32
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	Debug          bool
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // optional

	confThreshold, err := envFloat("CONF_THRESHOLD", detections.DefaultConfThreshold)
	if err != nil {
		return nil, err
	}
	iouThreshold, err := envFloat("IOU_THRESHOLD", detections.DefaultIoUThreshold)
	if err != nil {
		return nil, err
	}
	readTimeout, err := envDuration("SERVER_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := envDuration("SERVER_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	maxUpload, err := envInt64("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}

	return &Config{
		Addr:           envString("SERVER_ADDR", "127.0.0.1:8080"),
		ModelPath:      envString("MODEL_PATH", "models/yolo11n.onnx"),
		OnnxLibPath:    os.Getenv("ONNX_LIB_PATH"),
		ConfThreshold:  confThreshold,
		IoUThreshold:   iouThreshold,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		MaxUploadBytes: maxUpload,
		Debug:          os.Getenv("DEBUG") == "true",
	}, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float32) (float32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return float32(f), nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
