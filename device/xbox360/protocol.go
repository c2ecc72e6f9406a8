package xbox360

import (
	"encoding/binary"
	"io"
)

// Frame sizes on a VIIPER device stream.
const (
	InputStateSize  = 14 // host -> pad
	RumbleStateSize = 2  // pad -> host
)

// InputState is one XInput gamepad sample. On the stream it is packed little
// endian with no padding:
//
//	[0:4]   button bits
//	[4]     left trigger
//	[5]     right trigger
//	[6:14]  LX, LY, RX, RY as int16
type InputState struct {
	Buttons uint32
	LT, RT  uint8
	LX, LY  int16
	RX, RY  int16
}

func (x *InputState) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, InputStateSize)
	b = binary.LittleEndian.AppendUint32(b, x.Buttons)
	b = append(b, x.LT, x.RT)
	for _, v := range [...]int16{x.LX, x.LY, x.RX, x.RY} {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b, nil
}

func (x *InputState) UnmarshalBinary(data []byte) error {
	if len(data) < InputStateSize {
		return io.ErrUnexpectedEOF
	}
	axis := func(off int) int16 { return int16(binary.LittleEndian.Uint16(data[off:])) }
	*x = InputState{
		Buttons: binary.LittleEndian.Uint32(data),
		LT:      data[4],
		RT:      data[5],
		LX:      axis(6),
		LY:      axis(8),
		RX:      axis(10),
		RY:      axis(12),
	}
	return nil
}

// Pressed reports whether every bit of mask is set.
func (x InputState) Pressed(mask uint32) bool {
	return x.Buttons&mask == mask
}

// XRumbleState carries the motor speeds the host asks for: large (left) motor
// first, small (right) motor second.
type XRumbleState struct {
	LeftMotor  uint8
	RightMotor uint8
}

// Active reports whether either motor is running.
func (r XRumbleState) Active() bool {
	return r.LeftMotor != 0 || r.RightMotor != 0
}

func (r *XRumbleState) MarshalBinary() ([]byte, error) {
	return []byte{r.LeftMotor, r.RightMotor}, nil
}

func (r *XRumbleState) UnmarshalBinary(data []byte) error {
	if len(data) < RumbleStateSize {
		return io.ErrUnexpectedEOF
	}
	r.LeftMotor, r.RightMotor = data[0], data[1]
	return nil
}
