package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/edgesight/object-detection-service/models"
	"github.com/edgesight/object-detection-service/pipeline"
)

const (
	MsgAccepted     = "Image received for prediction"
	MsgNoPrediction = "No prediction available yet"
	MsgNoObjects    = "No objects detected in the image"
)

// AppState is shared by every request handler: the pipeline handle and the
// warmup detections computed before the server came up. Handlers hold no
// pipeline state of their own.
type AppState struct {
	Pipeline       *pipeline.Pipeline
	Warmup         []models.Detection
	Log            *logrus.Logger
	MaxUploadBytes int64
	Debug          bool
}

func (s *AppState) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/predict/", s.handlePredict).Methods("POST")
	r.HandleFunc("/result/", s.handleResult).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	return r
}

type requestIDKey struct{}

// requestIDMiddleware tags every inbound call with an id, honoring one the
// client already carries.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "unknown"
}

// warmupDetection is the health-endpoint view of a detection: boxes on a
// noise bitmap carry no information, so bbox is omitted.
type warmupDetection struct {
	ClassName  string  `json:"class_name"`
	Confidence float32 `json:"confidence"`
}

type warmupResponse struct {
	Detections []warmupDetection `json:"detections"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// resultResponse covers the three result shapes: detections present, a
// published batch with zero detections, and no batch published yet
// (timestamp null).
type resultResponse struct {
	Detections   []models.Detection `json:"detections"`
	Timestamp    *float64           `json:"timestamp"`
	TotalObjects *int               `json:"total_objects,omitempty"`
	Message      string             `json:"message,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *AppState) handleRoot(w http.ResponseWriter, _ *http.Request) {
	detections := make([]warmupDetection, 0, len(s.Warmup))
	for _, d := range s.Warmup {
		detections = append(detections, warmupDetection{
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
		})
	}
	s.writeJSON(w, http.StatusOK, warmupResponse{Detections: detections})
}

func (s *AppState) handlePredict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	requestID := requestIDFrom(r.Context())
	timings := models.ProcessingTimings{RequestID: requestID}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.MaxUploadBytes); err != nil {
		s.sendError(w, requestID, "invalid_request", "Expected multipart form data", http.StatusBadRequest, err)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.sendError(w, requestID, "missing_image", `Multipart field "image" is required`, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		s.sendError(w, requestID, "invalid_request", "Failed to read image payload", http.StatusBadRequest, err)
		return
	}

	decodeStart := time.Now()
	img, err := imaging.Decode(bytes.NewReader(payload))
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		s.sendError(w, requestID, "invalid_image", "Failed to decode image", http.StatusBadRequest, err)
		return
	}

	// Hand off and acknowledge. Acceptance, not completion: the pipeline
	// may still replace this image before the worker claims it.
	s.Pipeline.Submit(img)

	timings.Total = time.Since(startTotal)
	if s.Debug {
		s.Log.WithFields(logrus.Fields{
			"request_id": timings.RequestID,
			"decode":     timings.ImageDecode,
			"total":      timings.Total,
			"bytes":      len(payload),
		}).Debug("image accepted for prediction")
	}

	s.writeJSON(w, http.StatusOK, statusResponse{Status: MsgAccepted})
}

func (s *AppState) handleResult(w http.ResponseWriter, _ *http.Request) {
	batch, ok := s.Pipeline.Snapshot()
	if !ok {
		s.writeJSON(w, http.StatusOK, resultResponse{
			Detections: []models.Detection{},
			Message:    MsgNoPrediction,
		})
		return
	}

	timestamp := float64(batch.Timestamp.UnixNano()) / float64(time.Second)
	total := len(batch.Detections)

	response := resultResponse{
		Detections:   batch.Detections,
		Timestamp:    &timestamp,
		TotalObjects: &total,
	}
	if total == 0 {
		response.Detections = []models.Detection{}
		response.Message = MsgNoObjects
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Pipeline.Stats())
}

func (s *AppState) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Log.WithError(err).Error("failed to encode response")
	}
}

func (s *AppState) sendError(w http.ResponseWriter, requestID, code, message string, status int, err error) {
	s.Log.WithFields(logrus.Fields{
		"request_id": requestID,
		"code":       code,
		"error":      err.Error(),
	}).Warn(message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}
