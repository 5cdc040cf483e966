package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesight/object-detection-service/models"
	"github.com/edgesight/object-detection-service/pipeline"
)

type stubDetector struct {
	detections []models.Detection
	err        error
}

func (d *stubDetector) Infer(image.Image) ([]models.Detection, error) {
	return d.detections, d.err
}

func newTestState(t *testing.T, det pipeline.Detector) *AppState {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p := pipeline.New(det, logger)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })

	return &AppState{
		Pipeline:       p,
		Warmup:         []models.Detection{{ClassName: "person", Confidence: 0.9, BBox: [4]float32{1, 2, 3, 4}}},
		Log:            logger,
		MaxUploadBytes: 10 << 20,
	}
}

func doRequest(state *AppState, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	state.Routes().ServeHTTP(rec, req)
	return rec
}

func jpegUpload(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(5, 5, color.RGBA{R: 255, A: 255})

	var encoded bytes.Buffer
	require.NoError(t, jpeg.Encode(&encoded, img, nil))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "frame.jpg")
	require.NoError(t, err)
	_, err = part.Write(encoded.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestRootReturnsWarmupDetectionsWithoutBBox(t *testing.T) {
	state := newTestState(t, &stubDetector{})

	rec := doRequest(state, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["detections"], 1)

	det := body["detections"][0]
	assert.Equal(t, "person", det["class_name"])
	assert.InDelta(t, 0.9, det["confidence"], 1e-6)
	assert.NotContains(t, det, "bbox")
}

func TestResultBeforeFirstInference(t *testing.T) {
	state := newTestState(t, &stubDetector{})

	rec := doRequest(state, httptest.NewRequest(http.MethodGet, "/result/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["timestamp"])
	assert.Equal(t, MsgNoPrediction, body["message"])
	assert.Empty(t, body["detections"])
	assert.NotContains(t, body, "total_objects")
}

func TestResultAfterZeroDetectionInference(t *testing.T) {
	state := newTestState(t, &stubDetector{detections: []models.Detection{}})

	state.Pipeline.Submit(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Eventually(t, func() bool {
		_, ok := state.Pipeline.Snapshot()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	rec := doRequest(state, httptest.NewRequest(http.MethodGet, "/result/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body["timestamp"], "a zero-detection batch is a real result")
	assert.Equal(t, float64(0), body["total_objects"])
	assert.Equal(t, MsgNoObjects, body["message"])
	assert.Empty(t, body["detections"])
}

func TestPredictAndResultEndToEnd(t *testing.T) {
	state := newTestState(t, &stubDetector{detections: []models.Detection{
		{ClassName: "person", Confidence: 0.95, BBox: [4]float32{100, 50, 200, 300}},
	}})

	body, contentType := jpegUpload(t, "image")
	req := httptest.NewRequest(http.MethodPost, "/predict/", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(state, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var ack statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, MsgAccepted, ack.Status)

	require.Eventually(t, func() bool {
		_, ok := state.Pipeline.Snapshot()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	rec = doRequest(state, httptest.NewRequest(http.MethodGet, "/result/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Detections   []models.Detection `json:"detections"`
		Timestamp    *float64           `json:"timestamp"`
		TotalObjects int                `json:"total_objects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Timestamp)
	assert.Equal(t, 1, result.TotalObjects)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "person", result.Detections[0].ClassName)
	assert.InDelta(t, 0.95, result.Detections[0].Confidence, 1e-6)
	assert.Equal(t, [4]float32{100, 50, 200, 300}, result.Detections[0].BBox)
}

func TestPredictRejectsMissingImageField(t *testing.T) {
	state := newTestState(t, &stubDetector{})

	body, contentType := jpegUpload(t, "file")
	req := httptest.NewRequest(http.MethodPost, "/predict/", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(state, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "missing_image", errResp.Code)
	assert.Equal(t, uint64(0), state.Pipeline.Stats().Submitted, "pipeline state must be unaffected")
}

func TestPredictRejectsUndecodablePayload(t *testing.T) {
	state := newTestState(t, &stubDetector{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "garbage.bin")
	require.NoError(t, err)
	_, err = part.Write([]byte("not an image at all"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := doRequest(state, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid_image", errResp.Code)
	assert.Equal(t, uint64(0), state.Pipeline.Stats().Submitted)
}

func TestMetricsExposesPipelineStats(t *testing.T) {
	state := newTestState(t, &stubDetector{detections: []models.Detection{}})

	state.Pipeline.Submit(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Eventually(t, func() bool {
		return state.Pipeline.Stats().Processed == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec := doRequest(state, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats pipeline.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Submitted)
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failures)
}
