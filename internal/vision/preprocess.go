package vision

import (
	"image"

	"golang.org/x/image/draw"
)

// normalisation constants: pixel' = (pixel - mean) / std
type norm struct{ mean, std float32 }

var (
	detNorm = norm{mean: 127.5, std: 128.0}
	embNorm = norm{mean: 127.5, std: 127.5}
)

// toCHW resizes img to size x size and lays it out as planar RGB floats.
func toCHW(img image.Image, size int, n norm) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			i := y*size + x
			out[i] = (float32(dst.Pix[off]) - n.mean) / n.std
			out[plane+i] = (float32(dst.Pix[off+1]) - n.mean) / n.std
			out[2*plane+i] = (float32(dst.Pix[off+2]) - n.mean) / n.std
		}
	}
	return out
}

// cropFace cuts bbox out of img with 10% padding on every side, clamped to
// the image. It returns nil for empty boxes.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(b)
	if r.Empty() {
		return nil
	}

	padW, padH := r.Dx()/10, r.Dy()/10
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(b)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
