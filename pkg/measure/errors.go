package measure

import (
	"errors"
	"fmt"
)

var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrCameraNotReady = errors.New("camera not ready")
)

// MissingLandmarksError reports a landmark set that does not contain an index
// the measurement refers to. An empty set reports Available == 0.
type MissingLandmarksError struct {
	Index     int
	Available int
}

func (e *MissingLandmarksError) Error() string {
	if e.Available == 0 {
		return "landmark set is empty"
	}
	return fmt.Sprintf("landmark %d not present in set of %d points", e.Index, e.Available)
}

type RangeDirection string

const (
	TooClose RangeDirection = "too_close"
	TooFar   RangeDirection = "too_far"
)

// OutOfRangeError is returned by the distance gate when the subject is not at
// the distance the calibration assumes.
type OutOfRangeError struct {
	Direction   RangeDirection
	ProxyPixels float64
	MinPixels   float64
	MaxPixels   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("subject %s: distance proxy %.1fpx outside [%.1f, %.1f]",
		e.Direction, e.ProxyPixels, e.MinPixels, e.MaxPixels)
}

// Prompt is the corrective message shown to the user.
func (e *OutOfRangeError) Prompt() string {
	if e.Direction == TooClose {
		return "Move back from the camera."
	}
	return "Move closer to the camera."
}

type InvalidSpecError struct {
	Name   string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid measurement profile %q: %s", e.Name, e.Reason)
}
