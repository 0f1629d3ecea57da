package sizingHandler

import (
	"MaskFit/internal/api/sizing"
	"MaskFit/internal/entity"
	"MaskFit/internal/middleware"
	jwtPkg "MaskFit/pkg/jwt"
	"MaskFit/pkg/utils"
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu          sync.Mutex
	lastEstim   sizing.EstimateRequest
	lastUser    string
	captureRes  sizing.CaptureResponse
	captureErr  error
	latest      map[string]entity.Outcome
	records     map[string]sizing.RecordResponse
	owners      map[string]string
	userRecords map[string][]sizing.RecordResponse
	sessions    map[string][]sizing.RecordResponse
	lastCaller  string
}

func okOutcome(profile string) entity.Outcome {
	mm, px := 112.5, 225.0
	return entity.Outcome{
		Status:        entity.StatusOK,
		Profile:       profile,
		Label:         entity.SizeMedium,
		EstimateMM:    &mm,
		PixelDistance: &px,
		Message:       "Recommended Mask Size: Medium (112.5 mm)",
	}
}

func (f *fakeService) Profiles() sizing.ProfileListResponse {
	return sizing.ProfileListResponse{
		Default:  "face-width",
		Profiles: []sizing.ProfileResponse{{Name: "face-height"}, {Name: "face-width"}},
	}
}

func (f *fakeService) Estimate(ctx context.Context, req sizing.EstimateRequest) (entity.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEstim = req
	if req.Profile == "unknown" {
		return entity.Outcome{}, sizing.ErrUnknownProfile
	}
	return okOutcome(req.Profile), nil
}

func (f *fakeService) ProcessLandmarks(ctx context.Context, sessionID, profile string, d entity.Detection) (entity.Outcome, error) {
	if len(d.Faces) == 0 {
		return entity.Outcome{Status: entity.StatusNoFace, Profile: profile, Message: "Face not detected."}, nil
	}
	return okOutcome(profile), nil
}

func (f *fakeService) ProcessFrame(ctx context.Context, sessionID, profile string, frame []byte) (entity.Outcome, error) {
	if len(frame) == 0 {
		return entity.Outcome{}, sizing.ErrInvalidImage
	}
	return okOutcome(profile), nil
}

func (f *fakeService) Capture(ctx context.Context, req sizing.CaptureRequest, userID string, frame []byte) (sizing.CaptureResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser = userID
	return f.captureRes, f.captureErr
}

func (f *fakeService) Latest(ctx context.Context, sessionID string) (entity.Outcome, error) {
	out, ok := f.latest[sessionID]
	if !ok {
		return entity.Outcome{}, sizing.ErrResultNotFound
	}
	return out, nil
}

func (f *fakeService) GetRecord(ctx context.Context, id, callerID string) (sizing.RecordResponse, error) {
	r, ok := f.records[id]
	if owner := f.owners[id]; !ok || (owner != "" && owner != callerID) {
		return sizing.RecordResponse{}, sizing.ErrRecordNotFound
	}
	return r, nil
}

func (f *fakeService) SessionRecords(ctx context.Context, sessionID, callerID string) ([]sizing.RecordResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCaller = callerID
	return f.sessions[sessionID], nil
}

func (f *fakeService) ListRecords(ctx context.Context, userID string) ([]sizing.RecordResponse, error) {
	return f.userRecords[userID], nil
}

func newApp(t *testing.T, svc *fakeService) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mw := middleware.New(logger)
	app := fiber.New(fiber.Config{
		JSONEncoder: jsoniter.Marshal,
		JSONDecoder: jsoniter.Unmarshal,
	})
	app.Use(mw.NewRequestIDMiddleware())
	New(logger, validator.New(), mw, svc, utils.New()).Start(app.Group("/api/v1"))
	return app
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(v))
}

func TestListProfiles(t *testing.T) {
	app := newApp(t, &fakeService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sizing/profiles", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body sizing.ProfileListResponse
	decode(t, resp, &body)
	assert.Equal(t, "face-width", body.Default)
	assert.Len(t, body.Profiles, 2)
}

func TestEstimate(t *testing.T) {
	svc := &fakeService{}
	app := newApp(t, svc)

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sizing/estimate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"profile":"face-width","session_id":"k1","viewport":{"width":300,"height":300},"faces":[[{"x":0.1,"y":0.5},{"x":0.85,"y":0.5}]]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	decode(t, resp, &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "Medium", out["label"])
	assert.Equal(t, "k1", svc.lastEstim.SessionID)
	require.Len(t, svc.lastEstim.Faces, 1)

	resp = post(`{"viewport":{"width":0,"height":300}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(`{"profile":"unknown","viewport":{"width":300,"height":300}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errBody map[string]string
	decode(t, resp, &errBody)
	assert.Equal(t, "unknown measurement profile", errBody["error"])

	resp = post(`{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func captureRequest(t *testing.T, withImage bool, token string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("session_id", "kiosk-9"))
	if withImage {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="face.png"`)
		header.Set("Content-Type", "image/png")
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		require.NoError(t, png.Encode(part, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sizing/capture", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestCapture(t *testing.T) {
	t.Setenv(middleware.AccessTokenSecret, "test-secret")

	record := sizing.RecordResponse{ID: "01HZ", Label: "Medium"}
	svc := &fakeService{captureRes: sizing.CaptureResponse{Outcome: okOutcome("face-width"), Record: &record}}
	app := newApp(t, svc)

	token, _, err := jwtPkg.Sign(map[string]interface{}{"id": "user-5"}, time.Hour)
	require.NoError(t, err)

	resp, err := app.Test(captureRequest(t, true, token))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var res sizing.CaptureResponse
	decode(t, resp, &res)
	require.NotNil(t, res.Record)
	assert.Equal(t, "01HZ", res.Record.ID)
	assert.Equal(t, "user-5", svc.lastUser)

	resp, err = app.Test(captureRequest(t, false, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCaptureRejected(t *testing.T) {
	svc := &fakeService{
		captureRes: sizing.CaptureResponse{Outcome: entity.Outcome{Status: entity.StatusOutOfRange, Message: "Move back from the camera."}},
		captureErr: sizing.ErrMeasurementRejected,
	}
	app := newApp(t, svc)

	resp, err := app.Test(captureRequest(t, true, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var res sizing.CaptureResponse
	decode(t, resp, &res)
	assert.Equal(t, entity.StatusOutOfRange, res.Outcome.Status)
	assert.Nil(t, res.Record)
	assert.Empty(t, svc.lastUser)
}

func TestLatestAndRecords(t *testing.T) {
	t.Setenv(middleware.AccessTokenSecret, "test-secret")

	svc := &fakeService{
		latest:      map[string]entity.Outcome{"k1": okOutcome("face-width")},
		records:     map[string]sizing.RecordResponse{"r1": {ID: "r1", Label: "Small"}},
		userRecords: map[string][]sizing.RecordResponse{"user-1": {{ID: "r1", Label: "Small"}}},
	}
	app := newApp(t, svc)

	get := func(path, token string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, http.StatusOK, get("/api/v1/sizing/sessions/k1/latest", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/sizing/sessions/k2/latest", "").StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/v1/sizing/records/r1", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/sizing/records/zz", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/sizing/records", "").StatusCode)

	token, _, err := jwtPkg.Sign(map[string]interface{}{"id": "user-1"}, time.Hour)
	require.NoError(t, err)
	resp := get("/api/v1/sizing/records", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list sizing.RecordListResponse
	decode(t, resp, &list)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "r1", list.Records[0].ID)
}

func TestRecordOwnership(t *testing.T) {
	t.Setenv(middleware.AccessTokenSecret, "test-secret")

	svc := &fakeService{
		records:  map[string]sizing.RecordResponse{"r1": {ID: "r1"}, "r2": {ID: "r2"}},
		owners:   map[string]string{"r2": "user-1"},
		sessions: map[string][]sizing.RecordResponse{"kiosk-1": {{ID: "r1"}}},
	}
	app := newApp(t, svc)

	get := func(path, token string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	owner, _, err := jwtPkg.Sign(map[string]interface{}{"id": "user-1"}, time.Hour)
	require.NoError(t, err)
	other, _, err := jwtPkg.Sign(map[string]interface{}{"id": "user-2"}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get("/api/v1/sizing/records/r1", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/sizing/records/r2", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/sizing/records/r2", other).StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/v1/sizing/records/r2", owner).StatusCode)

	resp := get("/api/v1/sizing/sessions/kiosk-1/records", owner)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list sizing.RecordListResponse
	decode(t, resp, &list)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "user-1", svc.lastCaller)

	resp = get("/api/v1/sizing/sessions/kiosk-1/records", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, svc.lastCaller)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app := newApp(t, &fakeService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/sizing/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocketStream(t *testing.T) {
	svc := &fakeService{}
	app := newApp(t, svc)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/sizing/ws?session_id=s1&profile=face-width", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello sizing.StreamHello
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "s1", hello.SessionID)
	assert.Equal(t, "face-width", hello.Profile)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage,
		[]byte(`{"type":"landmarks","viewport":{"width":300,"height":300},"faces":[[{"x":0.1,"y":0.5}]]}`)))
	var out map[string]interface{}
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "face-width", out["profile"])

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"profile","profile":"face-height"}`)))
	var switched sizing.StreamHello
	require.NoError(t, conn.ReadJSON(&switched))
	assert.Equal(t, "face-height", switched.Profile)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"landmarks","viewport":{"width":300,"height":300}}`)))
	out = nil
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "no_face", out["status"])
	assert.Equal(t, "face-height", out["profile"])

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"profile","profile":"nope"}`)))
	var streamErr sizing.StreamError
	require.NoError(t, conn.ReadJSON(&streamErr))
	assert.Equal(t, "unknown measurement profile", streamErr.Error)

	require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, []byte{0x01}))
	out = nil
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "ok", out["status"])
}
