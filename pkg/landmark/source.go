package landmark

import (
	"MaskFit/internal/entity"
	"context"
	"image"
)

// Source turns one image into zero or more landmark sets. Sets are ordered
// by detection confidence.
type Source interface {
	Detect(ctx context.Context, img image.Image) (entity.Detection, error)
	Close() error
}

// Options mirrors the setup parameters face mesh detectors accept.
type Options struct {
	MaxFaces               int     `json:"max_num_faces"`
	RefineLandmarks        bool    `json:"refine_landmarks"`
	MinDetectionConfidence float64 `json:"min_detection_confidence"`
	MinTrackingConfidence  float64 `json:"min_tracking_confidence"`
}

func DefaultOptions() Options {
	return Options{
		MaxFaces:               1,
		RefineLandmarks:        true,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}

func viewportOf(img image.Image) entity.Viewport {
	b := img.Bounds()
	return entity.Viewport{Width: b.Dx(), Height: b.Dy()}
}
