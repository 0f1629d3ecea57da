package landmark

import (
	"MaskFit/internal/entity"
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestFaceLandmarks(t *testing.T) {
	vp := entity.Viewport{Width: 400, Height: 200}
	det := pigo.Detection{Row: 100, Col: 200, Scale: 120, Q: 20}

	t.Run("With Pupils", func(t *testing.T) {
		left := &pigo.Puploc{Row: 90, Col: 170}
		right := &pigo.Puploc{Row: 90, Col: 230}

		set := faceLandmarks(det, left, right, vp)
		require.Len(t, set, entity.PigoPoints)

		assert.InDelta(t, 140.0/400, set[entity.PigoFaceLeft].X, 1e-9)
		assert.InDelta(t, 260.0/400, set[entity.PigoFaceRight].X, 1e-9)
		assert.InDelta(t, 0.5, set[entity.PigoFaceRight].Y, 1e-9)
		assert.InDelta(t, 170.0/400, set[entity.PigoLeftPupil].X, 1e-9)
		assert.InDelta(t, 230.0/400, set[entity.PigoRightPupil].X, 1e-9)
		assert.InDelta(t, 40.0/200, set[entity.PigoFaceTop].Y, 1e-9)
		assert.InDelta(t, 160.0/200, set[entity.PigoFaceBottom].Y, 1e-9)
	})

	t.Run("Without Pupils", func(t *testing.T) {
		set := faceLandmarks(det, nil, &pigo.Puploc{Row: 1, Col: 1}, vp)
		assert.Len(t, set, 2)
	})
}

func landmarkServer(t *testing.T, reply func(configured Options) remoteResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cfg remoteConfig
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if mt == websocket.TextMessage {
				_ = jsoniter.Unmarshal(msg, &cfg)
				continue
			}

			body, _ := jsoniter.Marshal(reply(cfg.Options))
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestRemoteSourceDetect(t *testing.T) {
	srv := landmarkServer(t, func(cfg Options) remoteResponse {
		face := entity.LandmarkSet{{X: 0.3, Y: 0.5}, {X: 0.7, Y: 0.5}}
		if !cfg.RefineLandmarks {
			return remoteResponse{Error: "options not received"}
		}
		return remoteResponse{Faces: []entity.LandmarkSet{face, face}}
	})
	defer srv.Close()

	src := NewRemoteSource(wsURL(srv), DefaultOptions(), quietLogger())
	defer src.Close()

	d, err := src.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 64, 48)))
	require.NoError(t, err)

	assert.Equal(t, entity.Viewport{Width: 64, Height: 48}, d.Viewport)
	require.Len(t, d.Faces, 1)
	assert.Equal(t, 0.7, d.Faces[0][1].X)
	assert.True(t, src.IsConnected())
}

func TestRemoteSourceServiceError(t *testing.T) {
	srv := landmarkServer(t, func(Options) remoteResponse {
		return remoteResponse{Error: "model not loaded"}
	})
	defer srv.Close()

	src := NewRemoteSource(wsURL(srv), DefaultOptions(), quietLogger())
	defer src.Close()

	_, err := src.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRemoteSourceUnreachable(t *testing.T) {
	src := NewRemoteSource("", DefaultOptions(), quietLogger())

	_, err := src.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.Error(t, err)
	assert.False(t, src.IsConnected())
}
