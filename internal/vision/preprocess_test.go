package vision

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestToCHWLayoutAndNormalisation(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	out := toCHW(img, 2, embNorm)
	gt.A(t, out).Length(12)
	gt.True(t, math.Abs(float64(out[0]-1)) < 1e-5)
	gt.True(t, math.Abs(float64(out[4]+1)) < 1e-5)
	gt.True(t, math.Abs(float64(out[8]-(128-127.5)/127.5)) < 1e-5)
}

func TestCropFacePadsAndClamps(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := cropFace(img, [4]float32{10, 10, 60, 60})
	gt.Equal(t, crop.Bounds().Dx(), 60)

	edge := cropFace(img, [4]float32{0, 0, 50, 50})
	gt.Equal(t, edge.Bounds().Dx(), 55)

	gt.True(t, cropFace(img, [4]float32{200, 200, 300, 300}) == nil)
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	l2Normalize(v)
	gt.True(t, math.Abs(float64(v[0])-0.6) < 1e-6)
	gt.True(t, math.Abs(float64(v[1])-0.8) < 1e-6)

	zero := []float32{0, 0}
	l2Normalize(zero)
	gt.Equal(t, zero, []float32{0, 0})
}

func TestNMSSuppressesOverlaps(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}

	kept := nms(dets, 0.4)
	gt.A(t, kept).Length(2)
	gt.Equal(t, kept[0].Confidence, float32(0.9))
	gt.Equal(t, kept[1].Confidence, float32(0.8))
}
