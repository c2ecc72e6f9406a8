package xbox360

import "encoding/binary"

// XUSBReportSize is the size of the XUSB_REPORT struct consumed by ViGEm.
const XUSBReportSize = 12

// BuildReport encodes an InputState into the 20-byte Xbox 360 USB report
// layout used by the wired controller.
//
// Bytes:
//
//	 0: 0x00 (message type)
//	 1: 0x14 (payload size 20)
//	2-3: buttons (LE uint16)
//	4-7: reserved
//	 8: LT (0-255)
//	 9: RT (0-255)
//	10-11: LX (LE int16)
//	12-13: LY (LE int16)
//	14-15: RX (LE int16)
//	16-17: RY (LE int16)
//	18-19: reserved 0x00
func BuildReport(st InputState) []byte {
	b := make([]byte, 20)
	b[0] = 0x00
	b[1] = 0x14
	binary.LittleEndian.PutUint16(b[2:4], uint16(st.Buttons&0xffff))
	b[8] = st.LT
	b[9] = st.RT
	binary.LittleEndian.PutUint16(b[10:12], uint16(st.LX))
	binary.LittleEndian.PutUint16(b[12:14], uint16(st.LY))
	binary.LittleEndian.PutUint16(b[14:16], uint16(st.RX))
	binary.LittleEndian.PutUint16(b[16:18], uint16(st.RY))
	return b
}

// XUSBReport mirrors ViGEm's XUSB_REPORT.
type XUSBReport struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

// ToXUSB converts the state into the ViGEm report struct. Buttons above bit 15
// are dropped.
func (x InputState) ToXUSB() XUSBReport {
	return XUSBReport{
		Buttons:      uint16(x.Buttons & 0xffff),
		LeftTrigger:  x.LT,
		RightTrigger: x.RT,
		ThumbLX:      x.LX,
		ThumbLY:      x.LY,
		ThumbRX:      x.RX,
		ThumbRY:      x.RY,
	}
}
