// Package mapping translates Pro Controller reports into XInput state.
package mapping

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/proxi-pad/proxi/device/xbox360"
	"github.com/proxi-pad/proxi/procon"
)

// Layout selects how the face buttons are translated.
type Layout string

const (
	// LayoutLabel maps by printed label: Nintendo A becomes Xbox A.
	LayoutLabel Layout = "label"
	// LayoutPosition maps by physical position: Nintendo A (east) becomes Xbox B.
	LayoutPosition Layout = "position"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutLabel, "":
		return LayoutLabel, nil
	case LayoutPosition:
		return LayoutPosition, nil
	}
	return "", fmt.Errorf("unknown layout %q", s)
}

type binding struct {
	from procon.Buttons
	to   uint32
}

var common = []binding{
	{procon.ButtonUp, xbox360.ButtonDPadUp},
	{procon.ButtonDown, xbox360.ButtonDPadDown},
	{procon.ButtonLeft, xbox360.ButtonDPadLeft},
	{procon.ButtonRight, xbox360.ButtonDPadRight},
	{procon.ButtonPlus, xbox360.ButtonStart},
	{procon.ButtonMinus, xbox360.ButtonBack},
	{procon.ButtonLStick, xbox360.ButtonLThumb},
	{procon.ButtonRStick, xbox360.ButtonRThumb},
	{procon.ButtonL, xbox360.ButtonLShoulder},
	{procon.ButtonR, xbox360.ButtonRShoulder},
	{procon.ButtonHome, xbox360.ButtonGuide},
}

var faces = map[Layout][]binding{
	LayoutLabel: {
		{procon.ButtonA, xbox360.ButtonA},
		{procon.ButtonB, xbox360.ButtonB},
		{procon.ButtonX, xbox360.ButtonX},
		{procon.ButtonY, xbox360.ButtonY},
	},
	LayoutPosition: {
		{procon.ButtonA, xbox360.ButtonB},
		{procon.ButtonB, xbox360.ButtonA},
		{procon.ButtonX, xbox360.ButtonY},
		{procon.ButtonY, xbox360.ButtonX},
	},
}

// Mapper converts reports using a fixed layout.
type Mapper struct {
	bindings []binding
}

// New returns a Mapper for layout. Unknown layouts fall back to LayoutLabel.
func New(layout Layout) Mapper {
	f, ok := faces[layout]
	if !ok {
		f = faces[LayoutLabel]
	}
	b := make([]binding, 0, len(common)+len(f))
	b = append(b, common...)
	b = append(b, f...)
	return Mapper{bindings: b}
}

// Buttons translates the button field.
func (m Mapper) Buttons(in procon.Buttons) uint32 {
	var out uint32
	for _, b := range m.bindings {
		if in&b.from != 0 {
			out |= b.to
		}
	}
	return out
}

// Map translates a full report. Sticks are centered with cal.
func (m Mapper) Map(r procon.InputReport, cal procon.Calibration) xbox360.InputState {
	lx, ly := procon.Center(r.LeftStick, cal.Left, cal.LeftDeadzone)
	rx, ry := procon.Center(r.RightStick, cal.Right, cal.RightDeadzone)
	return xbox360.InputState{
		Buttons: m.Buttons(r.Buttons),
		LT:      Trigger(r.Buttons.Has(procon.ButtonZL)),
		RT:      Trigger(r.Buttons.Has(procon.ButtonZR)),
		LX:      Axis(lx),
		LY:      Axis(ly),
		RX:      Axis(rx),
		RY:      Axis(ry),
	}
}

// Trigger converts a digital trigger to the analog range.
func Trigger(pressed bool) uint8 {
	if pressed {
		return math.MaxUint8
	}
	return 0
}

// Axis scales a centered value to int16, saturating outside [-1, 1].
func Axis(v float32) int16 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return int16(clamp(float32(math.MaxInt16)*v, math.MinInt16, math.MaxInt16))
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
