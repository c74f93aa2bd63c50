package vision

import (
	"fmt"
	"slices"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face box produced by the detector, in source pixel coordinates.
type Detection struct {
	BBox       [4]float32
	Confidence float32
}

// Detector runs RetinaFace (det_10g) face detection.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32]
	boxes     []*ort.Tensor[float32]
	threshold float32
	size      int
}

// det_10g output node names per stride, in the order scores, boxes.
var detOutputs = []struct {
	stride      int
	score, bbox string
}{
	{8, "448", "451"},
	{16, "471", "474"},
	{32, "494", "497"},
}

const (
	detInputSize     = 640
	anchorsPerCell   = 2
	detNMSThreshold  = 0.4
	detInputNodeName = "input.1"
)

func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	d := &Detector{threshold: threshold, size: detInputSize}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var names []string
	var outputs []ort.Value
	for _, o := range detOutputs {
		anchors := int64((detInputSize / o.stride) * (detInputSize / o.stride) * anchorsPerCell)
		s, err := ort.NewEmptyTensor[float32](ort.NewShape(anchors, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create score tensor (stride %d): %w", o.stride, err)
		}
		b, err := ort.NewEmptyTensor[float32](ort.NewShape(anchors, 4))
		if err != nil {
			s.Destroy()
			d.Close()
			return nil, fmt.Errorf("create bbox tensor (stride %d): %w", o.stride, err)
		}
		d.scores = append(d.scores, s)
		d.boxes = append(d.boxes, b)
		names = append(names, o.score, o.bbox)
		outputs = append(outputs, s, b)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{detInputNodeName}, names,
		[]ort.Value{d.input}, outputs, nil)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect runs detection on a CHW tensor of size 640x640 and maps boxes back
// to an origW x origH image.
func (d *Detector) Detect(chw []float32, origW, origH int) ([]Detection, error) {
	copy(d.input.GetData(), chw)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	sx := float32(origW) / float32(d.size)
	sy := float32(origH) / float32(d.size)

	var dets []Detection
	for i, o := range detOutputs {
		dets = d.decodeStride(dets, o.stride, d.scores[i].GetData(), d.boxes[i].GetData(), sx, sy, origW, origH)
	}
	return nms(dets, detNMSThreshold), nil
}

// decodeStride converts anchor distances at one stride into boxes above threshold.
func (d *Detector) decodeStride(dst []Detection, stride int, scores, boxes []float32, sx, sy float32, w, h int) []Detection {
	cells := d.size / stride
	st := float32(stride)
	idx := 0
	for cy := 0; cy < cells; cy++ {
		for cx := 0; cx < cells; cx++ {
			ax, ay := float32(cx)*st, float32(cy)*st
			for a := 0; a < anchorsPerCell; a, idx = a+1, idx+1 {
				if scores[idx] < d.threshold {
					continue
				}
				b := boxes[idx*4 : idx*4+4]
				dst = append(dst, Detection{
					BBox: [4]float32{
						clamp((ax-b[0]*st)*sx, 0, float32(w)),
						clamp((ay-b[1]*st)*sy, 0, float32(h)),
						clamp((ax+b[2]*st)*sx, 0, float32(w)),
						clamp((ay+b[3]*st)*sy, 0, float32(h)),
					},
					Confidence: scores[idx],
				})
			}
		}
	}
	return dst
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.scores {
		t.Destroy()
	}
	for _, t := range d.boxes {
		t.Destroy()
	}
}

// nms keeps the most confident box of every overlapping group.
func nms(dets []Detection, iouThreshold float32) []Detection {
	slices.SortStableFunc(dets, func(a, b Detection) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	var kept []Detection
	for _, d := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(k.BBox, d.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	iw := min(a[2], b[2]) - max(a[0], b[0])
	ih := min(a[3], b[3]) - max(a[1], b[1])
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
