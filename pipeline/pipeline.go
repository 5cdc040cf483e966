// Package pipeline implements the asynchronous single-slot inference
// pipeline: a non-blocking ingestion mailbox, one serialized inference
// worker, and a tear-free latest-result store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edgesight/object-detection-service/models"
)

// ErrDetectorFatal marks inference failures the worker cannot recover from,
// such as a lost device or a closed session. The worker stops and reports
// them on Fatal; everything else is logged and dropped.
var ErrDetectorFatal = errors.New("detector failure is fatal")

// Detector runs one inference pass over a decoded image. Implementations
// are not required to be safe for concurrent use; after startup the worker
// is the only caller.
type Detector interface {
	Infer(img image.Image) ([]models.Detection, error)
}

// Pipeline owns the mailbox, the result store and the single inference
// worker. Construct once at process startup, after the model has been
// loaded and warmed.
type Pipeline struct {
	mailbox  *Mailbox
	store    *Store
	detector Detector
	log      logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool

	fatal chan error

	processed      uint64 // atomic
	failures       uint64 // atomic
	lastInferNanos int64  // atomic
}

func New(detector Detector, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		mailbox:  NewMailbox(),
		store:    NewStore(),
		detector: detector,
		log:      log,
		fatal:    make(chan error, 1),
	}
}

// Start spawns the worker goroutine. Only the first call succeeds.
func (p *Pipeline) Start(ctx context.Context) error {
	p.startedMu.Lock()
	defer p.startedMu.Unlock()

	if p.started {
		return fmt.Errorf("pipeline already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	p.wg.Add(1)
	go p.run()

	return nil
}

// Stop cancels the worker and waits for it to exit. Idempotent. An
// inference already in flight runs to completion first.
func (p *Pipeline) Stop() error {
	p.startedMu.Lock()
	if !p.started {
		p.startedMu.Unlock()
		return nil
	}
	p.startedMu.Unlock()

	p.cancel()
	p.mailbox.wake()
	p.wg.Wait()

	return nil
}

// Submit hands an image to the pipeline, replacing any unclaimed pending
// image. Never blocks. The acknowledgement is acceptance, not completion.
func (p *Pipeline) Submit(img image.Image) {
	p.mailbox.Submit(img)
}

// Snapshot returns the latest published batch, or false before the first
// successful inference.
func (p *Pipeline) Snapshot() (models.DetectionBatch, bool) {
	return p.store.Snapshot()
}

// Fatal delivers the error that stopped the worker, if any. Main treats a
// receive as a process-level fault.
func (p *Pipeline) Fatal() <-chan error {
	return p.fatal
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Submitted       uint64  `json:"submitted"`
	Dropped         uint64  `json:"dropped"`
	Processed       uint64  `json:"processed"`
	Failures        uint64  `json:"failures"`
	Pending         bool    `json:"pending"`
	LastInferenceMs float64 `json:"last_inference_ms"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted:       p.mailbox.Submits(),
		Dropped:         p.mailbox.Drops(),
		Processed:       atomic.LoadUint64(&p.processed),
		Failures:        atomic.LoadUint64(&p.failures),
		Pending:         p.mailbox.Pending(),
		LastInferenceMs: float64(atomic.LoadInt64(&p.lastInferNanos)) / float64(time.Millisecond),
	}
}
