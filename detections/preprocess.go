package detections

import (
	"image"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// directPixelPath gates the stride-indexed NRGBA loop. The resize stage
// hands us *image.NRGBA; on CPUs without SSE4.1 the bounds-check-heavy
// direct loop is no faster than the generic one, so keep the fallback.
var directPixelPath = runtime.GOARCH != "amd64" || cpu.X86.HasSSE41

// Preprocessor converts a resized frame into the model's planar NCHW
// float32 layout, splitting rows across workers.
type Preprocessor struct {
	width, height int
	numWorkers    int
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		width:      InputWidth,
		height:     InputHeight,
		numWorkers: runtime.GOMAXPROCS(0),
	}
}

// Process fills dst (length width*height*3, channel-planar RGB) with
// normalized [0,1] pixel values from img. img must already be resized to
// the model input dimensions.
func (p *Preprocessor) Process(img image.Image, dst []float32) {
	if nrgba, ok := img.(*image.NRGBA); ok && directPixelPath {
		p.processRows(dst, func(y int) {
			p.processRowNRGBA(nrgba, dst, y)
		})
		return
	}
	p.processRows(dst, func(y int) {
		p.processRowGeneric(img, dst, y)
	})
}

func (p *Preprocessor) processRows(dst []float32, processRow func(y int)) {
	rowsPerWorker := p.height / p.numWorkers
	if rowsPerWorker == 0 {
		rowsPerWorker = p.height
	}

	var wg sync.WaitGroup
	for start := 0; start < p.height; start += rowsPerWorker {
		end := start + rowsPerWorker
		if end > p.height {
			end = p.height
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				processRow(y)
			}
		}(start, end)
	}
	wg.Wait()
}

func (p *Preprocessor) processRowNRGBA(img *image.NRGBA, dst []float32, y int) {
	channelSize := p.width * p.height
	row := img.Pix[y*img.Stride:]
	offset := y * p.width
	for x := 0; x < p.width; x++ {
		px := row[x*4 : x*4+3 : x*4+3]
		i := offset + x
		dst[i] = float32(px[0]) / 255.0
		dst[channelSize+i] = float32(px[1]) / 255.0
		dst[channelSize*2+i] = float32(px[2]) / 255.0
	}
}

func (p *Preprocessor) processRowGeneric(img image.Image, dst []float32, y int) {
	channelSize := p.width * p.height
	offset := y * p.width
	for x := 0; x < p.width; x++ {
		i := offset + x
		r, g, b, _ := img.At(x, y).RGBA()
		dst[i] = float32(r>>8) / 255.0
		dst[channelSize+i] = float32(g>>8) / 255.0
		dst[channelSize*2+i] = float32(b>>8) / 255.0
	}
}
