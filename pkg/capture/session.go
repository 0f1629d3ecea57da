package capture

import (
	"MaskFit/internal/entity"
	"MaskFit/pkg/measure"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrSessionClosed = errors.New("capture session closed")
	ErrNotStarted    = fmt.Errorf("capture session not started: %w", measure.ErrCameraNotReady)
)

// Session owns the single active stream of a camera. At most one stream is
// open at any time: switching facing mode closes the current stream before
// the next one is requested.
type Session struct {
	mu          sync.Mutex
	camera      Camera
	constraints Constraints
	stream      Stream
	closed      bool
	log         *logrus.Logger
}

func NewSession(camera Camera, c Constraints, log *logrus.Logger) *Session {
	if c.Facing == "" {
		c.Facing = entity.FacingFront
	}
	return &Session{camera: camera, constraints: c, log: log}
}

// Start opens a stream for the configured facing mode. A running stream is
// released first.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reacquire(ctx, s.constraints.Facing)
}

// Toggle switches to the opposite facing mode.
func (s *Session) Toggle(ctx context.Context) (entity.FacingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.constraints.Facing.Opposite()
	if err := s.reacquire(ctx, next); err != nil {
		return next, err
	}

	return next, nil
}

func (s *Session) reacquire(ctx context.Context, facing entity.FacingMode) error {
	if s.closed {
		return ErrSessionClosed
	}

	s.releaseLocked()
	s.constraints.Facing = facing

	stream, err := s.camera.Open(ctx, s.constraints)
	if err != nil {
		var camErr *CameraUnavailableError
		if !errors.As(err, &camErr) {
			err = &CameraUnavailableError{Facing: facing, Err: err}
		}
		s.log.WithFields(logrus.Fields{
			"facing": facing,
			"error":  err.Error(),
		}).Warn("Camera acquisition failed")
		return err
	}

	s.stream = stream
	s.log.WithFields(logrus.Fields{
		"facing": facing,
		"width":  s.constraints.Width,
		"height": s.constraints.Height,
	}).Info("Camera stream acquired")

	return nil
}

func (s *Session) releaseLocked() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.log.WithField("error", err.Error()).Warn("Error closing camera stream")
	}
	s.stream = nil
}

func (s *Session) Facing() entity.FacingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraints.Facing
}

// Read returns the next frame of the current stream together with the
// viewport it was captured at.
func (s *Session) Read() (Frame, error) {
	s.mu.Lock()
	stream := s.stream
	closed := s.closed
	facing := s.constraints.Facing
	s.mu.Unlock()

	if closed {
		return Frame{}, ErrSessionClosed
	}
	if stream == nil {
		return Frame{}, ErrNotStarted
	}

	// a toggle may close the stream while this read is in flight
	img, release, err := stream.Read()
	if err != nil {
		return Frame{}, &CameraUnavailableError{Facing: facing, Err: err}
	}

	b := img.Bounds()
	return Frame{
		Image:    img,
		Viewport: entity.Viewport{Width: b.Dx(), Height: b.Dy()},
		release:  release,
	}, nil
}

// Stop releases the stream. The session can be started again.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Close releases the stream and refuses further use.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
}
