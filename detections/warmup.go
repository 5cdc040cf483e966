package detections

import (
	"image"
	"math/rand"
)

// warmupSeed fixes the noise pattern so the health endpoint reports the
// same warmup detections across restarts.
const warmupSeed = 1

// WarmupImage returns the fixed 256x256 noise bitmap run through the model
// once at startup, before the service accepts traffic.
func WarmupImage() image.Image {
	rng := rand.New(rand.NewSource(warmupSeed))
	img := image.NewNRGBA(image.Rect(0, 0, WarmupWidth, WarmupHeight))
	for y := 0; y < WarmupHeight; y++ {
		for x := 0; x < WarmupWidth; x++ {
			i := y*img.Stride + x*4
			img.Pix[i] = uint8(rng.Intn(256))
			img.Pix[i+1] = uint8(rng.Intn(256))
			img.Pix[i+2] = uint8(rng.Intn(256))
			img.Pix[i+3] = 0xff
		}
	}
	return img
}
