package measure

import (
	"MaskFit/internal/entity"
	"math"
)

// Thresholds holds the two cut points T1 (Medium) < T2 (Large). Bands are
// half-open and lower-inclusive.
type Thresholds struct {
	Medium float64 `json:"medium" validate:"gt=0"`
	Large  float64 `json:"large" validate:"gtfield=Medium"`
}

func (t Thresholds) Classify(mm float64) entity.SizeLabel {
	switch {
	case math.IsNaN(mm):
		return entity.SizeUnknown
	case mm < t.Medium:
		return entity.SizeSmall
	case mm < t.Large:
		return entity.SizeMedium
	default:
		return entity.SizeLarge
	}
}
