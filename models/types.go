package models

import (
	"sort"
	"time"
)

// Detection is a single object found by the model, in source-image pixel
// coordinates. BBox is [x1, y1, x2, y2] with x1 < x2 and y1 < y2.
type Detection struct {
	ClassName  string     `json:"class_name"`
	Confidence float32    `json:"confidence"`
	BBox       [4]float32 `json:"bbox"`
}

// DetectionBatch is the output of one completed inference pass. Detections
// are ordered by confidence descending; ties keep model-output order.
type DetectionBatch struct {
	Detections []Detection
	Timestamp  time.Time
}

// SortByConfidence orders detections by confidence descending in place.
// Stable, so equal confidences keep their model-output order.
func SortByConfidence(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}
