package measure

import (
	"MaskFit/internal/entity"
	"math"
)

// Pair names the two landmark indices a distance is measured between.
type Pair struct {
	From int `json:"from" validate:"gte=0"`
	To   int `json:"to" validate:"gte=0,nefield=From"`
}

// Distance returns the pixel distance between the two landmarks of pair.
// Each axis is scaled by its own viewport dimension, so non-square frames
// are measured correctly.
func Distance(set entity.LandmarkSet, pair Pair, vp entity.Viewport) (float64, error) {
	a, b, err := endpoints(set, pair)
	if err != nil {
		return 0, err
	}

	dx := (b.X - a.X) * float64(vp.Width)
	dy := (b.Y - a.Y) * float64(vp.Height)

	return math.Hypot(dx, dy), nil
}

// PixelPoints projects the two landmarks of pair into viewport pixels.
func PixelPoints(set entity.LandmarkSet, pair Pair, vp entity.Viewport) ([]entity.PixelPoint, error) {
	a, b, err := endpoints(set, pair)
	if err != nil {
		return nil, err
	}

	return []entity.PixelPoint{
		{X: a.X * float64(vp.Width), Y: a.Y * float64(vp.Height)},
		{X: b.X * float64(vp.Width), Y: b.Y * float64(vp.Height)},
	}, nil
}

// ProjectAll maps every landmark of set into viewport pixels.
func ProjectAll(set entity.LandmarkSet, vp entity.Viewport) []entity.PixelPoint {
	out := make([]entity.PixelPoint, len(set))
	for i, p := range set {
		out[i] = entity.PixelPoint{X: p.X * float64(vp.Width), Y: p.Y * float64(vp.Height)}
	}
	return out
}

func endpoints(set entity.LandmarkSet, pair Pair) (entity.LandmarkPoint, entity.LandmarkPoint, error) {
	if len(set) == 0 {
		return entity.LandmarkPoint{}, entity.LandmarkPoint{}, &MissingLandmarksError{Index: pair.From}
	}

	for _, idx := range []int{pair.From, pair.To} {
		if !set.Has(idx) {
			return entity.LandmarkPoint{}, entity.LandmarkPoint{}, &MissingLandmarksError{Index: idx, Available: len(set)}
		}
	}

	return set[pair.From], set[pair.To], nil
}
