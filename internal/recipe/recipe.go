// Package recipe holds the non-destructive edit a user is preparing: one
// active mode plus the parameters of every mode, validated and serialized
// into a request payload on commit.
package recipe

import (
	"fmt"
	"math"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/media"
)

// Mode is the edit operation a recipe applies
type Mode string

const (
	ModeTrim        Mode = "trim"
	ModeSpeed       Mode = "speed"
	ModeEffect      Mode = "effect"
	ModeSplitScreen Mode = "split-screen"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTrim, ModeSpeed, ModeEffect, ModeSplitScreen:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown edit mode %q", domain.ErrInvalidInput, s)
}

// Effect names a visual effect. EffectNormal is the identity.
type Effect string

const (
	EffectNormal     Effect = "normal"
	EffectVintage    Effect = "vintage"
	EffectDramatic   Effect = "dramatic"
	EffectBlackWhite Effect = "blackwhite"
	EffectSepia      Effect = "sepia"
	EffectVHS        Effect = "vhs"
	EffectGlitch     Effect = "glitch"
	EffectBlur       Effect = "blur"
)

// Effects lists the effect catalogue in display order
func Effects() []Effect {
	return []Effect{
		EffectNormal, EffectVintage, EffectDramatic, EffectBlackWhite,
		EffectSepia, EffectVHS, EffectGlitch, EffectBlur,
	}
}

func (e Effect) known() bool {
	for _, k := range Effects() {
		if e == k {
			return true
		}
	}
	return false
}

// Layout arranges the two sources of a split-screen edit
type Layout string

const (
	LayoutHorizontal Layout = "horizontal"
	LayoutVertical   Layout = "vertical"
)

const (
	MinSpeed = 0.25
	MaxSpeed = 4.0

	// DefaultTrimEnd caps the initial trim window, in seconds
	DefaultTrimEnd = 30.0
)

// Recipe holds one edit configuration per mode; only the active mode is
// submitted. Parameters of inactive modes are kept across mode switches.
// A Recipe is not safe for concurrent use.
type Recipe struct {
	mode     Mode
	duration float64

	trimStart   float64
	trimEnd     float64
	trimTouched bool

	speed  float64
	effect Effect

	partner *media.Reference
	layout  Layout
}

// New creates a trim recipe with the editor defaults
func New() *Recipe {
	return &Recipe{
		mode:    ModeTrim,
		trimEnd: DefaultTrimEnd,
		speed:   1,
		effect:  EffectNormal,
		layout:  LayoutHorizontal,
	}
}

// Mode returns the active mode
func (r *Recipe) Mode() Mode {
	return r.mode
}

// SetMode switches the active mode without clearing any parameters
func (r *Recipe) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	r.mode = m
	return nil
}

// Duration returns the media duration trim bounds are checked against
func (r *Recipe) Duration() float64 {
	return r.duration
}

// SetDuration records the media duration. Until the user sets trim bounds,
// the trim end follows min(DefaultTrimEnd, duration).
func (r *Recipe) SetDuration(d float64) {
	if d < 0 || math.IsNaN(d) {
		d = 0
	}
	r.duration = d
	if !r.trimTouched && d > 0 {
		r.trimStart = 0
		r.trimEnd = math.Min(DefaultTrimEnd, d)
	}
}

// SetTrim stores the trim window in seconds
func (r *Recipe) SetTrim(start, end float64) {
	r.trimStart = start
	r.trimEnd = end
	r.trimTouched = true
}

// Trim returns the trim window
func (r *Recipe) Trim() (start, end float64) {
	return r.trimStart, r.trimEnd
}

// SetSpeed stores the speed factor
func (r *Recipe) SetSpeed(factor float64) {
	r.speed = factor
}

// Speed returns the speed factor
func (r *Recipe) Speed() float64 {
	return r.speed
}

// SetEffect stores the effect selection
func (r *Recipe) SetEffect(e Effect) {
	r.effect = e
}

// Effect returns the effect selection
func (r *Recipe) Effect() Effect {
	return r.effect
}

// SetSplitScreen stores the partner media and layout. A previous partner is
// released; the recipe owns its partner until Release.
func (r *Recipe) SetSplitScreen(partner *media.Reference, layout Layout) {
	if prev := r.SwapSplitScreen(partner, layout); prev != nil {
		prev.Release()
	}
}

// SwapSplitScreen is SetSplitScreen for callers that decide when the
// displaced partner is released. It returns the previous partner, or nil
// when there was none or it is partner itself.
func (r *Recipe) SwapSplitScreen(partner *media.Reference, layout Layout) *media.Reference {
	prev := r.partner
	r.partner = partner
	r.layout = layout
	if prev == partner {
		return nil
	}
	return prev
}

// SetLayout changes the split-screen layout and keeps the partner
func (r *Recipe) SetLayout(layout Layout) {
	r.layout = layout
}

// SplitScreen returns the partner media and layout
func (r *Recipe) SplitScreen() (*media.Reference, Layout) {
	return r.partner, r.layout
}

// Release releases the partner media, if any
func (r *Recipe) Release() {
	if partner := r.TakePartner(); partner != nil {
		partner.Release()
	}
}

// TakePartner hands the partner to the caller without releasing it
func (r *Recipe) TakePartner() *media.Reference {
	partner := r.partner
	r.partner = nil
	return partner
}

// Validate reports whether the active mode is submittable
func (r *Recipe) Validate() bool {
	return r.check() == nil
}

// Check returns the reason the active mode is not submittable, or nil
func (r *Recipe) Check() error {
	return r.check()
}

func (r *Recipe) check() error {
	invalid := func(format string, args ...interface{}) error {
		return &domain.InvalidRecipeError{Mode: string(r.mode), Reason: fmt.Sprintf(format, args...)}
	}

	switch r.mode {
	case ModeTrim:
		if r.duration <= 0 {
			return invalid("media duration unknown")
		}
		if math.IsNaN(r.trimStart) || math.IsNaN(r.trimEnd) {
			return invalid("trim bounds are not numbers")
		}
		if r.trimStart < 0 || r.trimStart >= r.trimEnd || r.trimEnd > r.duration {
			return invalid("need 0 <= start < end <= %g, got start=%g end=%g", r.duration, r.trimStart, r.trimEnd)
		}
	case ModeSpeed:
		if math.IsNaN(r.speed) || r.speed < MinSpeed || r.speed > MaxSpeed {
			return invalid("speed factor %g outside [%g, %g]", r.speed, MinSpeed, MaxSpeed)
		}
	case ModeEffect:
		if !r.effect.known() {
			return invalid("unknown effect %q", r.effect)
		}
		if r.effect == EffectNormal {
			return invalid("no effect selected")
		}
	case ModeSplitScreen:
		if r.partner == nil || r.partner.Released() {
			return invalid("second video is required")
		}
		if r.layout != LayoutHorizontal && r.layout != LayoutVertical {
			return invalid("unknown layout %q", r.layout)
		}
	default:
		return invalid("unknown mode")
	}
	return nil
}

// ToRequestPayload serializes the active mode. It fails with an
// *domain.InvalidRecipeError when the recipe does not validate.
func (r *Recipe) ToRequestPayload() (Payload, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	switch r.mode {
	case ModeTrim:
		return TrimPayload{StartTime: r.trimStart, EndTime: r.trimEnd}, nil
	case ModeSpeed:
		return SpeedPayload{SpeedFactor: r.speed}, nil
	case ModeEffect:
		return EffectPayload{EffectType: r.effect}, nil
	default:
		return SplitScreenPayload{Partner: r.partner, Layout: r.layout}, nil
	}
}

// View is the serializable form of a recipe
type View struct {
	Mode      Mode    `json:"mode"`
	Duration  float64 `json:"duration"`
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
	Speed     float64 `json:"speed"`
	Effect    Effect  `json:"effect"`
	Partner   string  `json:"partner,omitempty"`
	Layout    Layout  `json:"layout"`
	Valid     bool    `json:"valid"`
	Problem   string  `json:"problem,omitempty"`
}

// View returns a snapshot of every mode's parameters
func (r *Recipe) View() View {
	v := View{
		Mode:      r.mode,
		Duration:  r.duration,
		TrimStart: r.trimStart,
		TrimEnd:   r.trimEnd,
		Speed:     r.speed,
		Effect:    r.effect,
		Layout:    r.layout,
		Valid:     true,
	}
	if r.partner != nil {
		v.Partner = r.partner.Name()
	}
	if err := r.check(); err != nil {
		v.Valid = false
		v.Problem = err.Error()
	}
	return v
}
