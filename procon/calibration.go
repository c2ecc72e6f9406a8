package procon

// Indexes into StickCalibration.
const (
	CalXMaxAbove = iota
	CalYMaxAbove
	CalXCenter
	CalYCenter
	CalXMinBelow
	CalYMinBelow
)

// StickCalibration holds six 12-bit values: the distance from center to the
// maximum on each axis, the center, and the distance from center to the
// minimum.
type StickCalibration [6]uint16

// Calibration is the complete stick calibration of a controller.
type Calibration struct {
	Left          StickCalibration
	Right         StickCalibration
	LeftDeadzone  uint16
	RightDeadzone uint16
}

// Right sticks store center, min, max instead of max, center, min.
var rightStickOrder = [6]int{2, 3, 4, 5, 0, 1}

// decodeStickCalibration unpacks a 9-byte SPI calibration block.
func decodeStickCalibration(b []byte, left bool) StickCalibration {
	vals := [6]uint16{
		(uint16(b[1])<<8)&0xf00 | uint16(b[0]),
		uint16(b[2])<<4 | uint16(b[1])>>4,
		(uint16(b[4])<<8)&0xf00 | uint16(b[3]),
		uint16(b[5])<<4 | uint16(b[4])>>4,
		(uint16(b[7])<<8)&0xf00 | uint16(b[6]),
		uint16(b[8])<<4 | uint16(b[7])>>4,
	}
	if left {
		return StickCalibration(vals)
	}
	var out StickCalibration
	for i, idx := range rightStickOrder {
		out[idx] = vals[i]
	}
	return out
}

// decodeDeadzone extracts the 12-bit deadzone from a stick parameter block.
func decodeDeadzone(b []byte) uint16 {
	return (uint16(b[4])<<8)&0xf00 | uint16(b[3])
}

// hasUserCalibration reports whether an SPI block contains data. Erased flash
// reads as 0xff; zeroed blocks are treated the same.
func hasUserCalibration(b []byte) bool {
	for _, v := range b {
		if v != 0xff && v != 0x00 {
			return true
		}
	}
	return false
}

// Center converts a raw stick position into the range [-1, 1] per axis using
// the calibration. Positions inside the circular deadzone map to (0, 0).
func Center(raw Stick, cal StickCalibration, deadzone uint16) (x, y float32) {
	dx := float32(raw.X) - float32(cal[CalXCenter])
	dy := float32(raw.Y) - float32(cal[CalYCenter])

	dz := float32(deadzone)
	if dx*dx+dy*dy < dz*dz {
		return 0, 0
	}

	x = scaleAxis(dx, cal[CalXMaxAbove], cal[CalXMinBelow])
	y = scaleAxis(dy, cal[CalYMaxAbove], cal[CalYMinBelow])
	return x, y
}

func scaleAxis(d float32, above, below uint16) float32 {
	span := below
	if d > 0 {
		span = above
	}
	if span == 0 {
		return 0
	}
	return d / float32(span)
}
