package procon

import (
	"fmt"
	"strings"
)

// Buttons is the 24-bit button field of a standard input report. Byte 3 of
// the report is the low byte, byte 5 the high byte.
type Buttons uint32

const (
	ButtonY Buttons = 1 << iota
	ButtonX
	ButtonB
	ButtonA
	ButtonRightSR
	ButtonRightSL
	ButtonR
	ButtonZR

	ButtonMinus
	ButtonPlus
	ButtonRStick
	ButtonLStick
	ButtonHome
	ButtonCapture
	_
	ButtonChargingGrip

	ButtonDown
	ButtonUp
	ButtonRight
	ButtonLeft
	ButtonLeftSR
	ButtonLeftSL
	ButtonL
	ButtonZL
)

var buttonNames = map[Buttons]string{
	ButtonY: "Y", ButtonX: "X", ButtonB: "B", ButtonA: "A",
	ButtonR: "R", ButtonZR: "ZR",
	ButtonMinus: "Minus", ButtonPlus: "Plus",
	ButtonRStick: "RStick", ButtonLStick: "LStick",
	ButtonHome: "Home", ButtonCapture: "Capture",
	ButtonDown: "Down", ButtonUp: "Up", ButtonRight: "Right", ButtonLeft: "Left",
	ButtonL: "L", ButtonZL: "ZL",
}

// Has reports whether every button in mask is held.
func (b Buttons) Has(mask Buttons) bool { return b&mask == mask }

func (b Buttons) String() string {
	var names []string
	for bit := Buttons(1); bit <= ButtonZL; bit <<= 1 {
		if b&bit == 0 {
			continue
		}
		if n, ok := buttonNames[bit]; ok {
			names = append(names, n)
		}
	}
	return strings.Join(names, "|")
}

// Stick is a raw 12-bit stick position.
type Stick struct {
	X, Y uint16
}

// InputReport is the decoded controller state of a 0x30 or 0x21 report.
type InputReport struct {
	ID         byte
	Timer      byte
	Battery    uint8 // 0 (empty) .. 8 (full)
	Charging   bool
	Buttons    Buttons
	LeftStick  Stick
	RightStick Stick
}

// ParseReport decodes the standard input section shared by the 0x30 and
// 0x21 reports.
func ParseReport(b []byte) (InputReport, error) {
	if len(b) == 0 {
		return InputReport{}, fmt.Errorf("%w: empty", ErrUnsupportedReport)
	}
	if b[0] != InStandardFull && b[0] != InSubcommandReply {
		return InputReport{}, fmt.Errorf("%w: id 0x%02x", ErrUnsupportedReport, b[0])
	}
	if len(b) < 12 {
		return InputReport{}, fmt.Errorf("%w: short report (%d bytes)", ErrUnsupportedReport, len(b))
	}
	return InputReport{
		ID:         b[0],
		Timer:      b[1],
		Battery:    min(b[2]>>4&0x0e, 8),
		Charging:   b[2]&0x10 != 0,
		Buttons:    Buttons(b[3]) | Buttons(b[4])<<8 | Buttons(b[5])<<16,
		LeftStick:  unpackStick(b[6:9]),
		RightStick: unpackStick(b[9:12]),
	}, nil
}

// unpackStick splits three bytes into two 12-bit values.
func unpackStick(b []byte) Stick {
	return Stick{
		X: uint16(b[0]) | (uint16(b[1])&0xf)<<8,
		Y: uint16(b[1])>>4 | uint16(b[2])<<4,
	}
}
