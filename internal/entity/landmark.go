package entity

// LandmarkPoint is a detected point in normalised frame coordinates.
type LandmarkPoint struct {
	X float64  `json:"x"`
	Y float64  `json:"y"`
	Z *float64 `json:"z,omitempty"`
}

// LandmarkSet is the ordered point list of a single face. Index meaning is
// fixed by the scheme of the source that produced it.
type LandmarkSet []LandmarkPoint

func (s LandmarkSet) Has(index int) bool {
	return index >= 0 && index < len(s)
}

type Viewport struct {
	Width  int `json:"width" validate:"required,gt=0"`
	Height int `json:"height" validate:"required,gt=0"`
}

// Detection is what a landmark source yields for one frame. Faces is empty
// when nothing was found.
type Detection struct {
	Faces    []LandmarkSet `json:"faces"`
	Viewport Viewport      `json:"viewport"`
}

// FirstFace returns the first detected face. Additional subjects are ignored.
func (d Detection) FirstFace() (LandmarkSet, bool) {
	if len(d.Faces) == 0 || len(d.Faces[0]) == 0 {
		return nil, false
	}
	return d.Faces[0], true
}

// MediaPipe face mesh indices used by the built-in profiles.
const (
	MeshLeftCheek  = 234
	MeshRightCheek = 454
	MeshNoseBridge = 168
	MeshChin       = 152
	MeshLeftIris   = 468
	MeshRightIris  = 473
	MeshPointsBase = 468
	MeshPointsIris = 478
)

// Indices produced by the pigo landmark source.
const (
	PigoFaceLeft = iota
	PigoFaceRight
	PigoLeftPupil
	PigoRightPupil
	PigoFaceTop
	PigoFaceBottom
	PigoPoints
)
