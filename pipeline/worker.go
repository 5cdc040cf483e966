package pipeline

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edgesight/object-detection-service/models"
)

// run is the single inference worker: claim the pending image, infer,
// publish. It is the sole reader of the mailbox and the sole writer of the
// store, so no inference ever runs concurrently with another.
func (p *Pipeline) run() {
	defer p.wg.Done()

	for {
		img := p.mailbox.Take(p.ctx)
		if img == nil {
			return // shutdown
		}

		start := time.Now()
		detections, err := p.detector.Infer(img)
		elapsed := time.Since(start)

		if err != nil {
			atomic.AddUint64(&p.failures, 1)
			if errors.Is(err, ErrDetectorFatal) {
				p.log.WithError(err).Error("inference engine lost, stopping worker")
				p.fatal <- err
				return
			}
			// Recoverable: keep the previously published batch visible
			// and go back to waiting.
			p.log.WithFields(logrus.Fields{
				"error":        err.Error(),
				"inference_ms": elapsed.Milliseconds(),
			}).Warn("inference failed, result not published")
			continue
		}

		models.SortByConfidence(detections)
		p.store.Publish(models.DetectionBatch{
			Detections: detections,
			Timestamp:  time.Now(),
		})

		atomic.AddUint64(&p.processed, 1)
		atomic.StoreInt64(&p.lastInferNanos, int64(elapsed))

		p.log.WithFields(logrus.Fields{
			"objects":      len(detections),
			"inference_ms": elapsed.Milliseconds(),
		}).Debug("published detection batch")
	}
}
