package sizingService

import (
	"MaskFit/internal/api/sizing"
	"MaskFit/internal/entity"
	contextPkg "MaskFit/pkg/context"
	"MaskFit/pkg/log"
	"MaskFit/pkg/measure"
	"MaskFit/pkg/redis"
	"MaskFit/pkg/response"
	"MaskFit/pkg/utils"
	"context"
	"errors"
	"fmt"
	"image"
)

func (s *sizingService) decodeFrame(frame []byte) (image.Image, error) {
	img, err := s.utils.DecodeFrame(frame)
	if errors.Is(err, utils.ErrImageTooBig) {
		return nil, response.Wrap(sizing.ErrImageTooLarge, err)
	} else if err != nil {
		return nil, response.Wrap(sizing.ErrInvalidImage, err)
	}
	return img, nil
}

func (s *sizingService) Profiles() sizing.ProfileListResponse {
	specs := s.profiles.List()

	res := sizing.ProfileListResponse{
		Default:  s.profiles.Default(),
		Profiles: make([]sizing.ProfileResponse, 0, len(specs)),
	}
	for _, spec := range specs {
		p := sizing.ProfileResponse{
			Name:           spec.Name,
			From:           spec.Pair.From,
			To:             spec.Pair.To,
			BaselinePixels: spec.Calibration.BaselinePixels,
			ReferenceMM:    spec.Calibration.ReferenceMM,
			MediumMM:       spec.Thresholds.Medium,
			LargeMM:        spec.Thresholds.Large,
		}
		if g := spec.Gate; g != nil {
			p.Gate = &sizing.GateResponse{
				From:      g.Pair.From,
				To:        g.Pair.To,
				MinPixels: g.MinPixels,
				MaxPixels: g.MaxPixels,
			}
		}
		res.Profiles = append(res.Profiles, p)
	}

	return res
}

func (s *sizingService) spec(name string) (measure.Spec, error) {
	spec, ok := s.profiles.Get(name)
	if !ok {
		return measure.Spec{}, response.Wrap(sizing.ErrUnknownProfile, fmt.Errorf("profile %q", name))
	}
	return spec, nil
}

func (s *sizingService) Estimate(ctx context.Context, req sizing.EstimateRequest) (entity.Outcome, error) {
	return s.ProcessLandmarks(ctx, req.SessionID, req.Profile, req.Detection())
}

func (s *sizingService) ProcessLandmarks(ctx context.Context, sessionID, profile string, d entity.Detection) (entity.Outcome, error) {
	spec, err := s.spec(profile)
	if err != nil {
		return entity.Outcome{}, err
	}

	out := measure.Measure(d, spec, s.now(), s.measureBy...)
	s.remember(ctx, sessionID, out)

	return out, nil
}

func (s *sizingService) ProcessFrame(ctx context.Context, sessionID, profile string, frame []byte) (entity.Outcome, error) {
	spec, err := s.spec(profile)
	if err != nil {
		return entity.Outcome{}, err
	}

	img, err := s.decodeFrame(frame)
	if err != nil {
		return entity.Outcome{}, err
	}

	out := s.measureImage(ctx, img, spec)
	s.remember(ctx, sessionID, out)

	return out, nil
}

// measureImage runs one detection pass. Detector failures become a
// detector_error outcome rather than an error so streaming clients keep
// receiving frames.
func (s *sizingService) measureImage(ctx context.Context, img image.Image, spec measure.Spec) entity.Outcome {
	if s.source == nil {
		return measure.Failed(spec.Name, sizing.ErrSourceUnavailable, s.now())
	}

	d, err := s.source.Detect(ctx, img)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"session_id": contextPkg.GetSessionID(ctx),
			"profile":    spec.Name,
			"error":      err.Error(),
		}).Warn("Landmark detection failed")
		return measure.Failed(spec.Name, err, s.now())
	}

	return measure.Measure(d, spec, s.now(), s.measureBy...)
}

func (s *sizingService) remember(ctx context.Context, sessionID string, out entity.Outcome) {
	if s.cache == nil || sessionID == "" {
		return
	}

	if err := s.cache.SetOutcome(ctx, sessionID, out, s.resultTTL); err != nil {
		s.log.WithFields(log.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"session_id": sessionID,
			"error":      err.Error(),
		}).Warn("Failed to cache latest outcome")
	}
}

func (s *sizingService) Capture(ctx context.Context, req sizing.CaptureRequest, userID string, frame []byte) (sizing.CaptureResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	spec, err := s.spec(req.Profile)
	if err != nil {
		return sizing.CaptureResponse{}, err
	}

	img, err := s.decodeFrame(frame)
	if err != nil {
		return sizing.CaptureResponse{}, err
	}

	out := s.measureImage(ctx, img, spec)
	s.remember(ctx, req.SessionID, out)

	res := sizing.CaptureResponse{Outcome: out}
	if out.Status != entity.StatusOK {
		s.log.WithFields(log.Fields{
			"request_id": requestID,
			"session_id": req.SessionID,
			"status":     out.Status,
		}).Info("Capture did not produce a measurement")
		return res, sizing.ErrMeasurementRejected
	}

	id, err := s.utils.NewULIDFromTimestamp(out.Timestamp)
	if err != nil {
		return res, response.Wrap(sizing.ErrInternalServerError, err)
	}

	record := entity.FitRecord{
		ID:            id,
		SessionID:     req.SessionID,
		UserID:        userID,
		Profile:       out.Profile,
		Label:         out.Label.String(),
		EstimateMM:    *out.EstimateMM,
		PixelDistance: *out.PixelDistance,
		SnapshotURL:   s.archive(ctx, id, img),
		CreatedAt:     out.Timestamp,
	}

	client, err := s.repository.NewClient(false)
	if err != nil {
		return res, response.Wrap(sizing.ErrCreateRecord, err)
	}
	if err := client.Records.CreateRecord(ctx, record); err != nil {
		return res, response.Wrap(sizing.ErrCreateRecord, err)
	}

	s.log.WithFields(log.Fields{
		"request_id":  requestID,
		"record_id":   record.ID,
		"profile":     record.Profile,
		"label":       record.Label,
		"estimate_mm": record.EstimateMM,
	}).Info("Fit record stored")

	recordRes := sizing.NewRecordResponse(record)
	res.Record = &recordRes
	return res, nil
}

// archive uploads the snapshot and returns its location. A failed upload
// leaves the record without a snapshot.
func (s *sizingService) archive(ctx context.Context, id string, img image.Image) string {
	if s.s3 == nil {
		return ""
	}

	data, err := s.utils.EncodeSnapshot(img, snapshotMaxSide, snapshotMaxSide, snapshotQuality)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to encode snapshot")
		return ""
	}

	location, err := s.s3.UploadSnapshot(ctx, "snapshots/"+id+".jpg", data, snapshotMediaType)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"record_id":  id,
			"error":      err.Error(),
		}).Warn("Failed to archive snapshot")
		return ""
	}

	return location
}

func (s *sizingService) Latest(ctx context.Context, sessionID string) (entity.Outcome, error) {
	if s.cache == nil {
		return entity.Outcome{}, sizing.ErrResultNotFound
	}

	out, err := s.cache.GetOutcome(ctx, sessionID)
	if errors.Is(err, redis.ErrResultNotFound) {
		return entity.Outcome{}, sizing.ErrResultNotFound
	} else if err != nil {
		return entity.Outcome{}, response.Wrap(sizing.ErrInternalServerError, err)
	}

	return out, nil
}

// GetRecord hides records owned by another user behind the same not found
// error as a missing id.
func (s *sizingService) GetRecord(ctx context.Context, id, callerID string) (sizing.RecordResponse, error) {
	client, err := s.repository.NewClient(false)
	if err != nil {
		return sizing.RecordResponse{}, err
	}

	record, err := client.Records.GetRecordByID(ctx, id)
	if err != nil {
		return sizing.RecordResponse{}, err
	}
	if !visibleTo(record, callerID) {
		return sizing.RecordResponse{}, sizing.ErrRecordNotFound
	}

	return s.present(ctx, record), nil
}

// SessionRecords lists the captures of one capture session that the caller
// may see: anonymous captures plus the caller's own.
func (s *sizingService) SessionRecords(ctx context.Context, sessionID, callerID string) ([]sizing.RecordResponse, error) {
	client, err := s.repository.NewClient(false)
	if err != nil {
		return nil, err
	}

	records, err := client.Records.GetRecordsBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res := make([]sizing.RecordResponse, 0, len(records))
	for _, record := range records {
		if visibleTo(record, callerID) {
			res = append(res, s.present(ctx, record))
		}
	}

	return res, nil
}

func visibleTo(record entity.FitRecord, callerID string) bool {
	return record.UserID == "" || record.UserID == callerID
}

func (s *sizingService) ListRecords(ctx context.Context, userID string) ([]sizing.RecordResponse, error) {
	client, err := s.repository.NewClient(false)
	if err != nil {
		return nil, err
	}

	records, err := client.Records.GetRecordsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]sizing.RecordResponse, 0, len(records))
	for _, record := range records {
		res = append(res, s.present(ctx, record))
	}

	return res, nil
}

// present swaps the stored snapshot location for a short-lived signed URL.
func (s *sizingService) present(ctx context.Context, record entity.FitRecord) sizing.RecordResponse {
	res := sizing.NewRecordResponse(record)
	if s.s3 == nil || record.SnapshotURL == "" {
		return res
	}

	signed, err := s.s3.PresignUrl(record.SnapshotURL)
	if err != nil {
		s.log.WithFields(log.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"record_id":  record.ID,
			"error":      err.Error(),
		}).Warn("Failed to presign snapshot url")
		res.SnapshotURL = ""
		return res
	}

	res.SnapshotURL = signed
	return res
}
