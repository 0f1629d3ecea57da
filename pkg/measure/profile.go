package measure

import (
	"MaskFit/internal/entity"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

// Spec is a named measurement profile. Width based and height based profiles
// use different calibrations and thresholds and are kept apart.
type Spec struct {
	Name        string        `json:"name" validate:"required"`
	Pair        Pair          `json:"pair"`
	Calibration Calibration   `json:"calibration"`
	Thresholds  Thresholds    `json:"thresholds"`
	Gate        *DistanceGate `json:"gate,omitempty"`
}

// Validate runs the struct tags of s through v and reports the first
// violated rule.
func (s Spec) Validate(v *validator.Validate) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.TrimPrefix(fe.Namespace(), "Spec.")
		reason := fmt.Sprintf("%s failed %s", field, fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return &InvalidSpecError{Name: s.Name, Reason: reason}
	}

	return &InvalidSpecError{Name: s.Name, Reason: err.Error()}
}

const (
	ProfileFaceWidth      = "face-width"
	ProfileFaceHeight     = "face-height"
	ProfileFaceWidthGated = "face-width-gated"
	ProfilePigoWidth      = "pigo-width"
)

// Defaults are tuned for a 300x300 viewport with the subject at arm's length.
func Defaults() []Spec {
	widthCal := Calibration{BaselinePixels: 300, ReferenceMM: 150}

	return []Spec{
		{
			Name:        ProfileFaceWidth,
			Pair:        Pair{From: entity.MeshLeftCheek, To: entity.MeshRightCheek},
			Calibration: widthCal,
			Thresholds:  Thresholds{Medium: 106, Large: 121},
		},
		{
			Name:        ProfileFaceHeight,
			Pair:        Pair{From: entity.MeshNoseBridge, To: entity.MeshChin},
			Calibration: Calibration{BaselinePixels: 300, ReferenceMM: 150},
			Thresholds:  Thresholds{Medium: 105, Large: 120},
		},
		{
			Name:        ProfileFaceWidthGated,
			Pair:        Pair{From: entity.MeshLeftCheek, To: entity.MeshRightCheek},
			Calibration: widthCal,
			Thresholds:  Thresholds{Medium: 106, Large: 121},
			Gate: &DistanceGate{
				Pair:      Pair{From: entity.MeshLeftIris, To: entity.MeshRightIris},
				MinPixels: 45,
				MaxPixels: 75,
			},
		},
		{
			Name:        ProfilePigoWidth,
			Pair:        Pair{From: entity.PigoFaceLeft, To: entity.PigoFaceRight},
			Calibration: widthCal,
			Thresholds:  Thresholds{Medium: 106, Large: 121},
			Gate: &DistanceGate{
				Pair:      Pair{From: entity.PigoLeftPupil, To: entity.PigoRightPupil},
				MinPixels: 40,
				MaxPixels: 90,
			},
		},
	}
}

// Registry holds the profiles available to a running service.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]Spec
	fallback string
	validate *validator.Validate
}

func NewRegistry(validate *validator.Validate, fallback string, specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs)), fallback: fallback, validate: validate}

	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}

	if _, ok := r.specs[fallback]; !ok {
		return nil, fmt.Errorf("default profile %q is not registered", fallback)
	}

	return r, nil
}

func (r *Registry) Register(s Spec) error {
	if err := s.Validate(r.validate); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[s.Name] = s

	return nil
}

// Get returns the named profile, or the default profile when name is empty.
func (r *Registry) Get(name string) (Spec, bool) {
	if name == "" {
		name = r.fallback
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]

	return s, ok
}

func (r *Registry) Default() string {
	return r.fallback
}

func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// LoadFile reads a JSON array of profiles and validates each of them.
func LoadFile(validate *validator.Validate, path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var specs []Spec
	if err := jsoniter.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}

	for _, s := range specs {
		if err := s.Validate(validate); err != nil {
			return nil, err
		}
	}

	return specs, nil
}
