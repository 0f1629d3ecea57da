package landmark

import (
	"MaskFit/internal/entity"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	pigo "github.com/esimov/pigo/core"
)

const (
	pupilPerturbs = 63
	// pigo detection scores are unbounded; this maps a 0..1 confidence onto
	// the score range the facefinder cascade produces in practice.
	pigoScoreScale = 10.0
)

// PigoSource detects faces and pupils locally with the pigo cascades and
// reports them in the compact pigo landmark scheme (see entity.Pigo*).
type PigoSource struct {
	face     *pigo.Pigo
	puploc   *pigo.PuplocCascade
	opts     Options
	minScore float32
}

// NewPigoSource loads the facefinder and puploc cascades from dir.
func NewPigoSource(dir string, opts Options) (*PigoSource, error) {
	faceData, err := os.ReadFile(filepath.Join(dir, "facefinder"))
	if err != nil {
		return nil, fmt.Errorf("read facefinder cascade: %w", err)
	}

	face, err := pigo.NewPigo().Unpack(faceData)
	if err != nil {
		return nil, fmt.Errorf("unpack facefinder cascade: %w", err)
	}

	puplocData, err := os.ReadFile(filepath.Join(dir, "puploc"))
	if err != nil {
		return nil, fmt.Errorf("read puploc cascade: %w", err)
	}

	puploc, err := pigo.NewPuplocCascade().UnpackCascade(puplocData)
	if err != nil {
		return nil, fmt.Errorf("unpack puploc cascade: %w", err)
	}

	if opts.MaxFaces <= 0 {
		opts.MaxFaces = 1
	}

	return &PigoSource{
		face:     face,
		puploc:   puploc,
		opts:     opts,
		minScore: float32(opts.MinDetectionConfidence * pigoScoreScale),
	}, nil
}

func (p *PigoSource) Detect(ctx context.Context, img image.Image) (entity.Detection, error) {
	vp := viewportOf(img)
	result := entity.Detection{Viewport: vp}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	pixels := pigo.RgbToGrayscale(pigo.ImgToNRGBA(img))
	params := pigo.ImageParams{
		Pixels: pixels,
		Rows:   vp.Height,
		Cols:   vp.Width,
		Dim:    vp.Width,
	}

	minSize := min(vp.Width, vp.Height) / 6
	dets := p.face.RunCascade(pigo.CascadeParams{
		MinSize:     max(minSize, 20),
		MaxSize:     max(vp.Width, vp.Height),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: params,
	}, 0.0)
	dets = p.face.ClusterDetections(dets, 0.2)

	sort.Slice(dets, func(i, j int) bool { return dets[i].Q > dets[j].Q })

	for _, det := range dets {
		if len(result.Faces) >= p.opts.MaxFaces {
			break
		}
		if det.Q < p.minScore {
			continue
		}

		left := p.pupil(det, params, -1)
		right := p.pupil(det, params, 1)
		result.Faces = append(result.Faces, faceLandmarks(det, left, right, vp))
	}

	return result, nil
}

// pupil searches one eye region; side is -1 for the subject's left eye as
// seen in the image and 1 for the right.
func (p *PigoSource) pupil(det pigo.Detection, params pigo.ImageParams, side int) *pigo.Puploc {
	loc := p.puploc.RunDetector(pigo.Puploc{
		Row:      det.Row - int(0.085*float32(det.Scale)),
		Col:      det.Col + side*int(0.185*float32(det.Scale)),
		Scale:    float32(det.Scale) * 0.4,
		Perturbs: pupilPerturbs,
	}, params, 0.0, false)

	if loc == nil || loc.Row <= 0 || loc.Col <= 0 {
		return nil
	}
	return loc
}

func (p *PigoSource) Close() error {
	return nil
}

// faceLandmarks converts a detection into normalised pigo-scheme points.
// Without both pupils only the two face edges are reported, which makes
// any pupil based gate fail as missing landmarks for that frame.
func faceLandmarks(det pigo.Detection, left, right *pigo.Puploc, vp entity.Viewport) entity.LandmarkSet {
	w, h := float64(vp.Width), float64(vp.Height)
	row, col, half := float64(det.Row), float64(det.Col), float64(det.Scale)/2

	set := entity.LandmarkSet{
		entity.PigoFaceLeft:  {X: (col - half) / w, Y: row / h},
		entity.PigoFaceRight: {X: (col + half) / w, Y: row / h},
	}

	if left == nil || right == nil {
		return set
	}

	return append(set,
		entity.LandmarkPoint{X: float64(left.Col) / w, Y: float64(left.Row) / h},
		entity.LandmarkPoint{X: float64(right.Col) / w, Y: float64(right.Row) / h},
		entity.LandmarkPoint{X: col / w, Y: (row - half) / h},
		entity.LandmarkPoint{X: col / w, Y: (row + half) / h},
	)
}
