package capture

import (
	"MaskFit/internal/entity"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	// registers the local camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)

// MediaDevicesCamera opens local cameras through pion/mediadevices. Facing
// modes are mapped to device ids; an empty id for the front camera means the
// first camera the driver finds.
type MediaDevicesCamera struct {
	DeviceIDs map[entity.FacingMode]string
}

func NewMediaDevicesCamera(frontID, backID string) *MediaDevicesCamera {
	return &MediaDevicesCamera{
		DeviceIDs: map[entity.FacingMode]string{
			entity.FacingFront: frontID,
			entity.FacingBack:  backID,
		},
	}
}

func (m *MediaDevicesCamera) Open(_ context.Context, c Constraints) (Stream, error) {
	deviceID := m.DeviceIDs[c.Facing]
	if deviceID == "" && c.Facing == entity.FacingBack {
		return nil, &CameraUnavailableError{Facing: c.Facing, Err: errors.New("no back camera configured")}
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				mc.DeviceID = prop.StringExact(deviceID)
			}
			if c.Width > 0 {
				mc.Width = prop.Int(c.Width)
			}
			if c.Height > 0 {
				mc.Height = prop.Int(c.Height)
			}
		},
	})
	if err != nil {
		return nil, &CameraUnavailableError{Facing: c.Facing, Err: err}
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, &CameraUnavailableError{Facing: c.Facing, Err: errors.New("no video track")}
	}

	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		_ = tracks[0].Close()
		return nil, &CameraUnavailableError{Facing: c.Facing, Err: fmt.Errorf("unexpected track type %T", tracks[0])}
	}

	return &mediaStream{track: track, reader: track.NewReader(false)}, nil
}

type mediaStream struct {
	track  *mediadevices.VideoTrack
	reader video.Reader
}

func (s *mediaStream) Read() (image.Image, func(), error) {
	return s.reader.Read()
}

func (s *mediaStream) Close() error {
	return s.track.Close()
}
