package measure

import "MaskFit/internal/entity"

// Calibration is a fixed-ratio model: BaselinePixels on screen correspond to
// ReferenceMM in the real world at the assumed subject distance.
type Calibration struct {
	BaselinePixels float64 `json:"baseline_pixels" validate:"gt=0"`
	ReferenceMM    float64 `json:"reference_mm" validate:"gt=0"`
}

func (c Calibration) ToMillimetres(pixels float64) float64 {
	return (pixels / c.BaselinePixels) * c.ReferenceMM
}

// DistanceGate accepts a frame only when the auxiliary distance, a proxy for
// how far the subject sits from the camera, is inside [MinPixels, MaxPixels].
type DistanceGate struct {
	Pair      Pair    `json:"pair"`
	MinPixels float64 `json:"min_pixels" validate:"gte=0"`
	MaxPixels float64 `json:"max_pixels" validate:"gtfield=MinPixels"`
}

func (g DistanceGate) Check(proxyPixels float64) error {
	switch {
	case proxyPixels > g.MaxPixels:
		return &OutOfRangeError{Direction: TooClose, ProxyPixels: proxyPixels, MinPixels: g.MinPixels, MaxPixels: g.MaxPixels}
	case proxyPixels < g.MinPixels:
		return &OutOfRangeError{Direction: TooFar, ProxyPixels: proxyPixels, MinPixels: g.MinPixels, MaxPixels: g.MaxPixels}
	}
	return nil
}

// Estimate converts the measured pair of spec into millimetres. When the spec
// carries a gate the proxy distance is checked first and the size pair is not
// measured at all if the check fails.
func Estimate(set entity.LandmarkSet, vp entity.Viewport, spec Spec) (pixels, mm float64, err error) {
	if spec.Gate != nil {
		proxy, err := Distance(set, spec.Gate.Pair, vp)
		if err != nil {
			return 0, 0, err
		}
		if err := spec.Gate.Check(proxy); err != nil {
			return 0, 0, err
		}
	}

	pixels, err = Distance(set, spec.Pair, vp)
	if err != nil {
		return 0, 0, err
	}

	return pixels, spec.Calibration.ToMillimetres(pixels), nil
}
