package sizing

import (
	"MaskFit/internal/entity"
	"time"
)

type EstimateRequest struct {
	SessionID string               `json:"session_id" validate:"omitempty,max=64"`
	Profile   string               `json:"profile" validate:"omitempty,max=64"`
	Viewport  entity.Viewport      `json:"viewport"`
	Faces     []entity.LandmarkSet `json:"faces" validate:"max=8"`
}

func (r EstimateRequest) Detection() entity.Detection {
	return entity.Detection{Faces: r.Faces, Viewport: r.Viewport}
}

type CaptureRequest struct {
	SessionID string `form:"session_id" validate:"omitempty,max=64"`
	Profile   string `form:"profile" validate:"omitempty,max=64"`
}

// StreamMessage is a text frame on the sizing websocket. "landmarks" carries
// a detection produced client-side, "profile" switches the active profile.
type StreamMessage struct {
	Type     string               `json:"type" validate:"required,oneof=landmarks profile"`
	Profile  string               `json:"profile,omitempty"`
	Viewport *entity.Viewport     `json:"viewport,omitempty" validate:"required_if=Type landmarks"`
	Faces    []entity.LandmarkSet `json:"faces,omitempty" validate:"max=8"`
}

const (
	StreamMessageLandmarks = "landmarks"
	StreamMessageProfile   = "profile"
)

type GateResponse struct {
	From      int     `json:"from"`
	To        int     `json:"to"`
	MinPixels float64 `json:"min_pixels"`
	MaxPixels float64 `json:"max_pixels"`
}

type ProfileResponse struct {
	Name           string        `json:"name"`
	From           int           `json:"from"`
	To             int           `json:"to"`
	BaselinePixels float64       `json:"baseline_pixels"`
	ReferenceMM    float64       `json:"reference_mm"`
	MediumMM       float64       `json:"medium_mm"`
	LargeMM        float64       `json:"large_mm"`
	Gate           *GateResponse `json:"gate,omitempty"`
}

type ProfileListResponse struct {
	Default  string            `json:"default"`
	Profiles []ProfileResponse `json:"profiles"`
}

type RecordResponse struct {
	ID            string  `json:"id"`
	SessionID     string  `json:"session_id,omitempty"`
	Profile       string  `json:"profile"`
	Label         string  `json:"label"`
	EstimateMM    float64 `json:"estimate_mm"`
	PixelDistance float64 `json:"pixel_distance"`
	SnapshotURL   string  `json:"snapshot_url,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}

type CaptureResponse struct {
	Outcome entity.Outcome  `json:"outcome"`
	Record  *RecordResponse `json:"record,omitempty"`
}

func NewRecordResponse(r entity.FitRecord) RecordResponse {
	return RecordResponse{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Profile:       r.Profile,
		Label:         r.Label,
		EstimateMM:    r.EstimateMM,
		PixelDistance: r.PixelDistance,
		SnapshotURL:   r.SnapshotURL,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
}

// StreamHello is the first message on the sizing websocket.
type StreamHello struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Profile   string `json:"profile"`
}

type StreamError struct {
	Error string `json:"error"`
}
