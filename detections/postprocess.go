package detections

import (
	"fmt"

	"github.com/edgesight/object-detection-service/models"
)

// decodePredictions converts the raw (4+NumClasses) x NumAnchors output
// tensor into detections in source-image pixel coordinates: per-anchor best
// class, confidence filter, scale from model space, clamp to image bounds,
// then class-aware non-maximum suppression. The result is ordered by
// confidence descending.
func decodePredictions(predictions []float32, origWidth, origHeight int, confThreshold, iouThreshold float32) ([]models.Detection, error) {
	expected := (4 + NumClasses) * NumAnchors
	if len(predictions) != expected {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expected)
	}

	scaleX := float32(origWidth) / InputWidth
	scaleY := float32(origHeight) / InputHeight

	candidates := make([]models.Detection, 0, 64)
	for i := 0; i < NumAnchors; i++ {
		classID := 0
		best := float32(0)
		for c := 0; c < NumClasses; c++ {
			if score := predictions[(4+c)*NumAnchors+i]; score > best {
				best = score
				classID = c
			}
		}
		if best < confThreshold {
			continue
		}

		// Box coords are center/size in model input pixels.
		cx := predictions[i]
		cy := predictions[NumAnchors+i]
		w := predictions[2*NumAnchors+i]
		h := predictions[3*NumAnchors+i]

		x1 := clamp((cx-w/2)*scaleX, 0, float32(origWidth))
		y1 := clamp((cy-h/2)*scaleY, 0, float32(origHeight))
		x2 := clamp((cx+w/2)*scaleX, 0, float32(origWidth))
		y2 := clamp((cy+h/2)*scaleY, 0, float32(origHeight))
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		candidates = append(candidates, models.Detection{
			ClassName:  Labels[classID],
			Confidence: best,
			BBox:       [4]float32{x1, y1, x2, y2},
		})
	}

	return nonMaxSuppression(candidates, iouThreshold), nil
}

// nonMaxSuppression keeps the highest-confidence box among same-class boxes
// that overlap beyond iouThreshold.
func nonMaxSuppression(detections []models.Detection, iouThreshold float32) []models.Detection {
	models.SortByConfidence(detections)

	kept := make([]models.Detection, 0, len(detections))
	for _, det := range detections {
		suppressed := false
		for _, k := range kept {
			if k.ClassName == det.ClassName && iou(k.BBox, det.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, det)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	interX1 := max32(a[0], b[0])
	interY1 := max32(a[1], b[1])
	interX2 := min32(a[2], b[2])
	interY2 := min32(a[3], b[3])

	interW := interX2 - interX1
	interH := interY2 - interY1
	if interW <= 0 || interH <= 0 {
		return 0
	}

	interArea := interW * interH
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	return interArea / (areaA + areaB - interArea)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
