package capture

import (
	"MaskFit/internal/entity"
	"MaskFit/pkg/measure"
	"context"
	"errors"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Frame struct {
	Image    image.Image
	Viewport entity.Viewport
	release  func()
}

func (f Frame) Release() {
	if f.release != nil {
		f.release()
	}
}

type FrameReader interface {
	Read() (Frame, error)
}

// Detector is the landmark source boundary.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (entity.Detection, error)
}

type SpecFunc func() measure.Spec

type Sink func(entity.Outcome)

type frameItem struct {
	frame Frame
	err   error
}

type detectionItem struct {
	detection entity.Detection
	err       error
}

// Pipeline moves frames from a reader through a detector into the
// measurement chain. Frames and detections travel over single-slot channels
// where a newer item replaces one that has not been picked up yet, so a slow
// detector always works on the most recent frame. A single consumer
// publishes outcomes in delivery order.
type Pipeline struct {
	reader     FrameReader
	detector   Detector
	spec       SpecFunc
	sink       Sink
	log        *logrus.Logger
	retryDelay time.Duration
	now        func() time.Time
}

type PipelineOption func(*Pipeline)

func WithRetryDelay(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.retryDelay = d
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(reader FrameReader, detector Detector, spec SpecFunc, sink Sink, log *logrus.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		reader:     reader,
		detector:   detector,
		spec:       spec,
		sink:       sink,
		log:        log,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	frames := make(chan frameItem, 1)
	detections := make(chan detectionItem, 1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer drainFrames(frames)
		return p.produce(ctx, frames)
	})

	g.Go(func() error {
		return p.detect(ctx, frames, detections)
	})

	g.Go(func() error {
		return p.consume(ctx, detections)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// CaptureOnce runs a single detection pass against the next frame.
func (p *Pipeline) CaptureOnce(ctx context.Context) entity.Outcome {
	spec := p.spec()

	frame, err := p.reader.Read()
	if err != nil {
		return measure.Failed(spec.Name, err, p.now())
	}
	defer frame.Release()

	d, err := p.detector.Detect(ctx, frame.Image)
	if err != nil {
		return measure.Failed(spec.Name, err, p.now())
	}

	return measure.Measure(d, spec, p.now())
}

func (p *Pipeline) produce(ctx context.Context, out chan frameItem) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		frame, err := p.reader.Read()
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			offer(out, frameItem{err: err}, releaseFrame)
			if err := sleep(ctx, p.retryDelay); err != nil {
				return err
			}
			continue
		}

		offer(out, frameItem{frame: frame}, releaseFrame)
	}
}

func (p *Pipeline) detect(ctx context.Context, in chan frameItem, out chan detectionItem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-in:
			if item.err != nil {
				offer(out, detectionItem{err: item.err}, nil)
				continue
			}

			d, err := p.detector.Detect(ctx, item.frame.Image)
			vp := item.frame.Viewport
			item.frame.Release()
			if err == nil && d.Viewport.Width == 0 {
				d.Viewport = vp
			}

			offer(out, detectionItem{detection: d, err: err}, nil)
		}
	}
}

func (p *Pipeline) consume(ctx context.Context, in chan detectionItem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-in:
			spec := p.spec()

			var outcome entity.Outcome
			if item.err != nil {
				p.log.WithFields(logrus.Fields{
					"profile": spec.Name,
					"error":   item.err.Error(),
				}).Debug("Frame skipped")
				outcome = measure.Failed(spec.Name, item.err, p.now())
			} else {
				outcome = measure.Measure(item.detection, spec, p.now())
			}

			p.sink(outcome)
		}
	}
}

// offer places v in a single-slot channel, evicting whatever is waiting
// there. Only one goroutine may write to ch.
func offer[T any](ch chan T, v T, drop func(T)) {
	for {
		select {
		case ch <- v:
			return
		default:
		}

		select {
		case old := <-ch:
			if drop != nil {
				drop(old)
			}
		default:
		}
	}
}

func releaseFrame(item frameItem) {
	item.frame.Release()
}

func drainFrames(ch chan frameItem) {
	for {
		select {
		case item := <-ch:
			item.frame.Release()
		default:
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
