package tracker

import "github.com/swdee/go-nightjar/postprocess/result"

// DetectionsToObjects takes canonical detections and converts them into
// tracker objects using (x, y, width, height) boxes
func DetectionsToObjects(dets []result.Detection) []Object {

	objs := make([]Object, 0, len(dets))

	for _, det := range dets {
		objs = append(objs, Object{
			Rect: NewRect(float32(det.Box.XMin), float32(det.Box.YMin),
				float32(det.Box.Width()), float32(det.Box.Height())),
			Label:     det.ClassID,
			LabelName: det.ClassName,
			Prob:      det.Confidence,
			ID:        det.ID,
		})
	}

	return objs
}
