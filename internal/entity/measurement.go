package entity

import (
	"fmt"
	"time"
)

type SizeLabel uint8

const (
	SizeUnknown SizeLabel = 0
	SizeSmall   SizeLabel = 1
	SizeMedium  SizeLabel = 2
	SizeLarge   SizeLabel = 3
)

var SizeLabelMap = map[SizeLabel]string{
	SizeUnknown: "Unknown",
	SizeSmall:   "Small",
	SizeMedium:  "Medium",
	SizeLarge:   "Large",
}

func (s SizeLabel) String() string {
	if name, ok := SizeLabelMap[s]; ok {
		return name
	}
	return SizeLabelMap[SizeUnknown]
}

func (s SizeLabel) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SizeLabel) UnmarshalText(text []byte) error {
	for label, name := range SizeLabelMap {
		if name == string(text) {
			*s = label
			return nil
		}
	}
	return fmt.Errorf("unknown size label %q", text)
}

type FacingMode string

const (
	FacingFront FacingMode = "front"
	FacingBack  FacingMode = "back"
)

func (f FacingMode) Opposite() FacingMode {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

type OutcomeStatus string

const (
	StatusOK               OutcomeStatus = "ok"
	StatusNoFace           OutcomeStatus = "no_face"
	StatusOutOfRange       OutcomeStatus = "out_of_range"
	StatusMissingLandmarks OutcomeStatus = "missing_landmarks"
	StatusCameraNotReady   OutcomeStatus = "camera_not_ready"
	StatusDetectorError    OutcomeStatus = "detector_error"
)

type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Outcome is the per-frame result handed to the presentation side.
type Outcome struct {
	Status        OutcomeStatus `json:"status"`
	Profile       string        `json:"profile"`
	Label         SizeLabel     `json:"label"`
	EstimateMM    *float64      `json:"estimate_mm,omitempty"`
	PixelDistance *float64      `json:"pixel_distance,omitempty"`
	Message       string        `json:"message"`
	Points        []PixelPoint  `json:"points,omitempty"`
	Landmarks     []PixelPoint  `json:"landmarks,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

type FitRecord struct {
	ID            string    `db:"id"`
	SessionID     string    `db:"session_id"`
	UserID        string    `db:"user_id"`
	Profile       string    `db:"profile"`
	Label         string    `db:"label"`
	EstimateMM    float64   `db:"estimate_mm"`
	PixelDistance float64   `db:"pixel_distance"`
	SnapshotURL   string    `db:"snapshot_url"`
	CreatedAt     time.Time `db:"created_at"`
}
