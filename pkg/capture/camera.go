package capture

import (
	"MaskFit/internal/entity"
	"MaskFit/pkg/measure"
	"context"
	"fmt"
	"image"
)

type Constraints struct {
	Facing entity.FacingMode
	Width  int
	Height int
}

// Camera acquires a live frame stream. Implementations must fail with a
// *CameraUnavailableError when the device cannot be opened.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open capture resource. Read blocks until the next frame; the
// returned release func must be called once the frame is no longer used.
type Stream interface {
	Read() (img image.Image, release func(), err error)
	Close() error
}

type CameraUnavailableError struct {
	Facing entity.FacingMode
	Err    error
}

func (e *CameraUnavailableError) Error() string {
	return fmt.Sprintf("camera (%s) unavailable: %v", e.Facing, e.Err)
}

func (e *CameraUnavailableError) Unwrap() []error {
	return []error{measure.ErrCameraNotReady, e.Err}
}
