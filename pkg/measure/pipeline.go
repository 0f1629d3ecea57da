package measure

import (
	"MaskFit/internal/entity"
	"errors"
	"fmt"
	"time"
)

const (
	MessageNoFace         = "Face not detected."
	MessageCameraNotReady = "Camera not ready."
	MessageMalformed      = "Face landmarks incomplete, hold still."
	MessageDetectorFailed = "Face detector unavailable."
)

type Option func(*options)

type options struct {
	landmarks bool
}

// WithLandmarks echoes every landmark of the measured face in viewport pixels
// so the presentation side can draw the whole mesh.
func WithLandmarks() Option {
	return func(o *options) {
		o.landmarks = true
	}
}

// Measure runs extractor, calibration and classifier for one detection and
// always returns an outcome the presentation side can render. Errors are
// folded into the outcome status.
func Measure(d entity.Detection, spec Spec, now time.Time, opts ...Option) entity.Outcome {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	out := entity.Outcome{
		Profile:   spec.Name,
		Label:     entity.SizeUnknown,
		Timestamp: now,
	}

	face, ok := d.FirstFace()
	if !ok {
		out.Status = entity.StatusNoFace
		out.Message = MessageNoFace
		return out
	}
	if o.landmarks {
		out.Landmarks = ProjectAll(face, d.Viewport)
	}

	pixels, mm, err := Estimate(face, d.Viewport, spec)
	if err != nil {
		return withError(out, err)
	}

	out.Status = entity.StatusOK
	out.Label = spec.Thresholds.Classify(mm)
	out.PixelDistance = &pixels
	out.EstimateMM = &mm
	out.Message = Recommendation(out.Label, mm)
	out.Points, _ = PixelPoints(face, spec.Pair, d.Viewport)

	return out
}

// Failed builds the outcome for a frame that never reached measurement.
func Failed(profile string, err error, now time.Time) entity.Outcome {
	return withError(entity.Outcome{Profile: profile, Label: entity.SizeUnknown, Timestamp: now}, err)
}

func withError(out entity.Outcome, err error) entity.Outcome {
	var rangeErr *OutOfRangeError
	var missingErr *MissingLandmarksError

	switch {
	case errors.As(err, &rangeErr):
		out.Status = entity.StatusOutOfRange
		out.Message = rangeErr.Prompt()
	case errors.As(err, &missingErr):
		out.Status = entity.StatusMissingLandmarks
		out.Message = MessageMalformed
	case errors.Is(err, ErrNoFaceDetected):
		out.Status = entity.StatusNoFace
		out.Message = MessageNoFace
	case errors.Is(err, ErrCameraNotReady):
		out.Status = entity.StatusCameraNotReady
		out.Message = MessageCameraNotReady
	default:
		out.Status = entity.StatusDetectorError
		out.Message = MessageDetectorFailed
	}

	return out
}

func Recommendation(label entity.SizeLabel, mm float64) string {
	return fmt.Sprintf("Recommended Mask Size: %s (%.1f mm)", label, mm)
}
