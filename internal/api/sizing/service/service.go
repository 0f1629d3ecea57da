package sizingService

import (
	"MaskFit/internal/api/sizing"
	sizingRepository "MaskFit/internal/api/sizing/repository"
	"MaskFit/internal/entity"
	"MaskFit/pkg/landmark"
	"MaskFit/pkg/measure"
	"MaskFit/pkg/redis"
	"MaskFit/pkg/s3"
	"MaskFit/pkg/utils"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type ISizingService interface {
	Profiles() sizing.ProfileListResponse
	Estimate(ctx context.Context, req sizing.EstimateRequest) (entity.Outcome, error)
	ProcessLandmarks(ctx context.Context, sessionID, profile string, d entity.Detection) (entity.Outcome, error)
	ProcessFrame(ctx context.Context, sessionID, profile string, frame []byte) (entity.Outcome, error)
	Capture(ctx context.Context, req sizing.CaptureRequest, userID string, frame []byte) (sizing.CaptureResponse, error)
	Latest(ctx context.Context, sessionID string) (entity.Outcome, error)
	GetRecord(ctx context.Context, id, callerID string) (sizing.RecordResponse, error)
	ListRecords(ctx context.Context, userID string) ([]sizing.RecordResponse, error)
	SessionRecords(ctx context.Context, sessionID, callerID string) ([]sizing.RecordResponse, error)
}

const (
	DefaultResultTTL  = 5 * time.Second
	snapshotMaxSide   = 640
	snapshotQuality   = 85
	snapshotMediaType = "image/jpeg"
)

type sizingService struct {
	log        *logrus.Logger
	profiles   *measure.Registry
	source     landmark.Source
	repository sizingRepository.Repository
	cache      redis.IRedis
	s3         s3.ItfS3
	utils      utils.IUtils
	resultTTL  time.Duration
	measureBy  []measure.Option
	now        func() time.Time
}

type Option func(*sizingService)

func WithResultTTL(ttl time.Duration) Option {
	return func(s *sizingService) {
		if ttl > 0 {
			s.resultTTL = ttl
		}
	}
}

// WithLandmarkOverlay adds the full landmark mesh to every outcome.
func WithLandmarkOverlay(enabled bool) Option {
	return func(s *sizingService) {
		if enabled {
			s.measureBy = append(s.measureBy, measure.WithLandmarks())
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *sizingService) {
		s.now = now
	}
}

// NewSizingService wires the measurement core to its collaborators. source,
// cache and s3 may be nil: frame endpoints then report the source as
// unavailable, latest results are not kept and snapshots are not archived.
func NewSizingService(
	log *logrus.Logger,
	profiles *measure.Registry,
	source landmark.Source,
	repository sizingRepository.Repository,
	cache redis.IRedis,
	s3 s3.ItfS3,
	utils utils.IUtils,
	opts ...Option,
) ISizingService {
	s := &sizingService{
		log:        log,
		profiles:   profiles,
		source:     source,
		repository: repository,
		cache:      cache,
		s3:         s3,
		utils:      utils,
		resultTTL:  DefaultResultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
