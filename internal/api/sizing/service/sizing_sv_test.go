package sizingService

import (
	"MaskFit/internal/api/sizing"
	sizingRepository "MaskFit/internal/api/sizing/repository"
	"MaskFit/internal/entity"
	"MaskFit/pkg/measure"
	"MaskFit/pkg/redis"
	"MaskFit/pkg/utils"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	detection entity.Detection
	err       error
	calls     int
}

func (f *fakeSource) Detect(ctx context.Context, img image.Image) (entity.Detection, error) {
	f.calls++
	return f.detection, f.err
}

func (f *fakeSource) Close() error { return nil }

type fakeCache struct {
	mu       sync.Mutex
	outcomes map[string]entity.Outcome
	ttl      time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{outcomes: map[string]entity.Outcome{}}
}

func (f *fakeCache) SetOutcome(ctx context.Context, sessionID string, outcome entity.Outcome, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[sessionID] = outcome
	f.ttl = ttl
	return nil
}

func (f *fakeCache) GetOutcome(ctx context.Context, sessionID string) (entity.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outcomes[sessionID]
	if !ok {
		return entity.Outcome{}, redis.ErrResultNotFound
	}
	return out, nil
}

type fakeS3 struct {
	uploads map[string][]byte
	failing bool
}

func (f *fakeS3) UploadSnapshot(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if f.failing {
		return "", errors.New("bucket unreachable")
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = body
	return "https://bucket.s3.amazonaws.com/" + key, nil
}

func (f *fakeS3) PresignUrl(fileUrl string) (string, error) {
	return fileUrl + "?signed=1", nil
}

func meshFace(left, right float64) entity.LandmarkSet {
	set := make(entity.LandmarkSet, entity.MeshPointsBase)
	set[entity.MeshLeftCheek] = entity.LandmarkPoint{X: left, Y: 0.5}
	set[entity.MeshRightCheek] = entity.LandmarkPoint{X: right, Y: 0.5}
	return set
}

func pngFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))))
	return buf.Bytes()
}

func newRepository(t *testing.T, logger *logrus.Logger) sizingRepository.Repository {
	t.Helper()

	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE fit_records (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		user_id TEXT,
		profile TEXT NOT NULL,
		label TEXT NOT NULL,
		estimate_mm REAL NOT NULL,
		pixel_distance REAL NOT NULL,
		snapshot_url TEXT,
		created_at DATETIME NOT NULL
	)`)
	require.NoError(t, err)

	return sizingRepository.New(db, logger)
}

type fixture struct {
	svc    ISizingService
	source *fakeSource
	cache  *fakeCache
	s3     *fakeS3
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry, err := measure.NewRegistry(validator.New(), measure.ProfileFaceWidth, measure.Defaults()...)
	require.NoError(t, err)

	f := fixture{source: &fakeSource{}, cache: newFakeCache(), s3: &fakeS3{}}
	f.svc = NewSizingService(logger, registry, f.source, newRepository(t, logger), f.cache, f.s3, utils.New(),
		WithResultTTL(3*time.Second),
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func TestProfiles(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Profiles()

	assert.Equal(t, measure.ProfileFaceWidth, res.Default)
	require.Len(t, res.Profiles, len(measure.Defaults()))
	for i := 1; i < len(res.Profiles); i++ {
		assert.Less(t, res.Profiles[i-1].Name, res.Profiles[i].Name)
	}
	for _, p := range res.Profiles {
		if p.Name == measure.ProfileFaceWidthGated {
			require.NotNil(t, p.Gate)
			assert.Equal(t, entity.MeshLeftIris, p.Gate.From)
		}
	}
}

func TestEstimateCachesOutcome(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Estimate(context.Background(), sizing.EstimateRequest{
		SessionID: "kiosk-1",
		Viewport:  entity.Viewport{Width: 300, Height: 300},
		Faces:     []entity.LandmarkSet{meshFace(0.1, 0.85)},
	})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusOK, out.Status)
	assert.Equal(t, entity.SizeMedium, out.Label)
	require.NotNil(t, out.EstimateMM)
	assert.InDelta(t, 112.5, *out.EstimateMM, 1e-9)
	assert.Equal(t, fixedNow, out.Timestamp)

	latest, err := f.svc.Latest(context.Background(), "kiosk-1")
	require.NoError(t, err)
	assert.Equal(t, out.Label, latest.Label)
	assert.Equal(t, 3*time.Second, f.cache.ttl)
}

func TestEstimateLandmarkOverlay(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry, err := measure.NewRegistry(validator.New(), measure.ProfileFaceWidth, measure.Defaults()...)
	require.NoError(t, err)

	svc := NewSizingService(logger, registry, nil, newRepository(t, logger), nil, nil, utils.New(),
		WithLandmarkOverlay(true))

	out, err := svc.Estimate(context.Background(), sizing.EstimateRequest{
		Viewport: entity.Viewport{Width: 300, Height: 300},
		Faces:    []entity.LandmarkSet{meshFace(0.1, 0.85)},
	})
	require.NoError(t, err)
	require.Len(t, out.Landmarks, entity.MeshPointsBase)
	assert.Equal(t, entity.PixelPoint{X: 30, Y: 150}, out.Landmarks[entity.MeshLeftCheek])
}

func TestEstimateUnknownProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Estimate(context.Background(), sizing.EstimateRequest{
		Profile:  "chin-strap",
		Viewport: entity.Viewport{Width: 300, Height: 300},
	})
	assert.ErrorIs(t, err, sizing.ErrUnknownProfile)
}

func TestEstimateWithoutFace(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Estimate(context.Background(), sizing.EstimateRequest{
		Viewport: entity.Viewport{Width: 300, Height: 300},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusNoFace, out.Status)
	assert.Equal(t, entity.SizeUnknown, out.Label)
}

func TestProcessFrameRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessFrame(context.Background(), "", "", []byte("not an image"))
	assert.ErrorIs(t, err, sizing.ErrInvalidImage)
	assert.Zero(t, f.source.calls)
}

// hugePNG returns a small PNG whose header claims width x height pixels.
func hugePNG(t *testing.T, width, height uint32) []byte {
	t.Helper()

	data := pngFrame(t)
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestProcessFrameRejectsOversizedFrame(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ProcessFrame(context.Background(), "", "", hugePNG(t, 12000, 12000))
	assert.ErrorIs(t, err, sizing.ErrImageTooLarge)
	assert.ErrorIs(t, err, utils.ErrImageTooBig)
	assert.Zero(t, f.source.calls)
}

func TestProcessFrameDetectorFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("model crashed")

	out, err := f.svc.ProcessFrame(context.Background(), "", "", pngFrame(t))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDetectorError, out.Status)
	assert.Nil(t, out.EstimateMM)
}

func TestProcessFrameWithoutSource(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry, err := measure.NewRegistry(validator.New(), measure.ProfileFaceWidth, measure.Defaults()...)
	require.NoError(t, err)

	svc := NewSizingService(logger, registry, nil, newRepository(t, logger), nil, nil, utils.New())

	out, err := svc.ProcessFrame(context.Background(), "s", "", pngFrame(t))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDetectorError, out.Status)

	_, err = svc.Latest(context.Background(), "s")
	assert.ErrorIs(t, err, sizing.ErrResultNotFound)
}

func TestCaptureStoresRecord(t *testing.T) {
	f := newFixture(t)
	f.source.detection = entity.Detection{
		Faces:    []entity.LandmarkSet{meshFace(0.1, 0.4)},
		Viewport: entity.Viewport{Width: 300, Height: 300},
	}
	ctx := context.Background()

	res, err := f.svc.Capture(ctx, sizing.CaptureRequest{SessionID: "kiosk-2"}, "user-7", pngFrame(t))
	require.NoError(t, err)

	assert.Equal(t, entity.StatusOK, res.Outcome.Status)
	require.NotNil(t, res.Record)
	assert.Equal(t, "Small", res.Record.Label)
	assert.InDelta(t, 45.0, res.Record.EstimateMM, 1e-9)
	assert.Len(t, f.s3.uploads, 1)

	got, err := f.svc.GetRecord(ctx, res.Record.ID, "user-7")
	require.NoError(t, err)
	assert.Equal(t, "kiosk-2", got.SessionID)
	assert.Contains(t, got.SnapshotURL, "?signed=1")

	_, err = f.svc.GetRecord(ctx, res.Record.ID, "")
	assert.ErrorIs(t, err, sizing.ErrRecordNotFound)
	_, err = f.svc.GetRecord(ctx, res.Record.ID, "someone-else")
	assert.ErrorIs(t, err, sizing.ErrRecordNotFound)

	list, err := f.svc.ListRecords(ctx, "user-7")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Record.ID, list[0].ID)

	empty, err := f.svc.ListRecords(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCaptureKeepsRecordWhenArchiveFails(t *testing.T) {
	f := newFixture(t)
	f.s3.failing = true
	f.source.detection = entity.Detection{
		Faces:    []entity.LandmarkSet{meshFace(0.1, 0.85)},
		Viewport: entity.Viewport{Width: 300, Height: 300},
	}

	res, err := f.svc.Capture(context.Background(), sizing.CaptureRequest{}, "", pngFrame(t))
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Empty(t, res.Record.SnapshotURL)
}

func TestCaptureRejectedWithoutFace(t *testing.T) {
	f := newFixture(t)
	f.source.detection = entity.Detection{Viewport: entity.Viewport{Width: 300, Height: 300}}

	res, err := f.svc.Capture(context.Background(), sizing.CaptureRequest{SessionID: "kiosk-3"}, "", pngFrame(t))
	assert.ErrorIs(t, err, sizing.ErrMeasurementRejected)
	assert.Equal(t, entity.StatusNoFace, res.Outcome.Status)
	assert.Nil(t, res.Record)
	assert.Empty(t, f.s3.uploads)

	latest, err := f.svc.Latest(context.Background(), "kiosk-3")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusNoFace, latest.Status)
}

func TestGetRecordNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetRecord(context.Background(), "missing", "")
	assert.ErrorIs(t, err, sizing.ErrRecordNotFound)
}

func TestSessionRecordsVisibility(t *testing.T) {
	f := newFixture(t)
	f.source.detection = entity.Detection{
		Faces:    []entity.LandmarkSet{meshFace(0.1, 0.4)},
		Viewport: entity.Viewport{Width: 300, Height: 300},
	}
	ctx := context.Background()
	req := sizing.CaptureRequest{SessionID: "kiosk-4"}

	anon, err := f.svc.Capture(ctx, req, "", pngFrame(t))
	require.NoError(t, err)
	owned, err := f.svc.Capture(ctx, req, "user-9", pngFrame(t))
	require.NoError(t, err)

	ids := func(records []sizing.RecordResponse) []string {
		out := []string{}
		for _, r := range records {
			out = append(out, r.ID)
		}
		return out
	}

	public, err := f.svc.SessionRecords(ctx, "kiosk-4", "")
	require.NoError(t, err)
	assert.Equal(t, []string{anon.Record.ID}, ids(public))

	mine, err := f.svc.SessionRecords(ctx, "kiosk-4", "user-9")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{anon.Record.ID, owned.Record.ID}, ids(mine))

	none, err := f.svc.SessionRecords(ctx, "kiosk-unknown", "user-9")
	require.NoError(t, err)
	assert.Empty(t, none)
}
