package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesight/object-detection-service/detections"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_ADDR", "MODEL_PATH", "ONNX_LIB_PATH", "CONF_THRESHOLD",
		"IOU_THRESHOLD", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"MAX_UPLOAD_BYTES", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, float32(detections.DefaultConfThreshold), cfg.ConfThreshold)
	assert.Equal(t, float32(detections.DefaultIoUThreshold), cfg.IoUThreshold)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("CONF_THRESHOLD", "0.6")
	t.Setenv("SERVER_READ_TIMEOUT", "5s")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, float32(0.6), cfg.ConfThreshold)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONF_THRESHOLD", "not-a-number")

	_, err := LoadConfig()
	require.Error(t, err)
}
