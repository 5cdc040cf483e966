// Package detections wraps the ONNX Runtime inference engine behind the
// pipeline's Detector interface: fixed-shape session, planar preprocess,
// YOLO head decode with non-maximum suppression.
package detections

import (
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/edgesight/object-detection-service/models"
	"github.com/edgesight/object-detection-service/pipeline"
)

type Config struct {
	ModelPath     string
	ConfThreshold float32
	IoUThreshold  float32
}

// Session is the ONNX model adapter. It owns one AdvancedSession with
// fixed input/output tensors and is not safe for concurrent use: after
// warmup the inference worker is its only caller.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	pre     *Preprocessor
	log     logrus.FieldLogger

	confThreshold float32
	iouThreshold  float32
	closed        bool
}

// NewSession loads the model and prepares the input/output tensors. The
// ONNX Runtime environment must already be initialized.
func NewSession(cfg Config, log logrus.FieldLogger) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(1, 3, InputWidth, InputHeight)
	outputShape := ort.NewShape(1, 4+NumClasses, NumAnchors)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	confThreshold := cfg.ConfThreshold
	if confThreshold == 0 {
		confThreshold = DefaultConfThreshold
	}
	iouThreshold := cfg.IoUThreshold
	if iouThreshold == 0 {
		iouThreshold = DefaultIoUThreshold
	}

	return &Session{
		session:       session,
		input:         inputTensor,
		output:        outputTensor,
		pre:           NewPreprocessor(),
		log:           log,
		confThreshold: confThreshold,
		iouThreshold:  iouThreshold,
	}, nil
}

// Infer runs one detection pass over img and returns detections in source
// pixel coordinates, ordered by confidence descending.
func (s *Session) Infer(img image.Image) ([]models.Detection, error) {
	if s.closed {
		return nil, fmt.Errorf("model session closed: %w", pipeline.ErrDetectorFatal)
	}

	var timings models.ProcessingTimings

	resizeStart := time.Now()
	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
	timings.Resize = time.Since(resizeStart)

	prepStart := time.Now()
	s.pre.Process(resized, s.input.GetData())
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	bounds := img.Bounds()
	detections, err := decodePredictions(s.output.GetData(), bounds.Dx(), bounds.Dy(), s.confThreshold, s.iouThreshold)
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}
	timings.Postprocess = time.Since(postStart)

	if s.log != nil {
		s.log.WithFields(logrus.Fields{
			"resize":      timings.Resize,
			"preprocess":  timings.Preprocess,
			"inference":   timings.Inference,
			"postprocess": timings.Postprocess,
			"objects":     len(detections),
		}).Debug("inference pass")
	}

	return detections, nil
}

// Warmup runs one inference over the fixed warmup image. A failure here
// means the model never became servable.
func (s *Session) Warmup() ([]models.Detection, error) {
	detections, err := s.Infer(WarmupImage())
	if err != nil {
		return nil, fmt.Errorf("warmup inference: %w", err)
	}
	return detections, nil
}

// Close destroys the session and its tensors. Any later Infer fails with
// pipeline.ErrDetectorFatal.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}
