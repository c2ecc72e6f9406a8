// Package procon talks to a Nintendo Switch Pro Controller over USB HID.
//
// The controller boots in a mode where it only answers the USB 0x80 command
// family. Attach performs the handshake that switches it to the HID report
// protocol, reads the stick calibration from SPI flash and enables the
// 0x30 standard full report mode.
package procon

import "errors"

// USB identifiers of the Pro Controller.
const (
	VendorNintendo   uint16 = 0x057e
	ProductProPad    uint16 = 0x2009
	DefaultNameMatch        = "pro controller"
)

// Report sizes.
const (
	ReportLen    = 48
	usbReportLen = 64
	readBufLen   = 64
)

// Output report ids.
const (
	outSubcommand byte = 0x01
	outUSB        byte = 0x80
)

// Input report ids.
const (
	InSubcommandReply byte = 0x21
	InStandardFull    byte = 0x30
	InSimpleHID       byte = 0x3f
	InUSBReply        byte = 0x81
)

// USB (0x80) commands.
const (
	usbStatus    byte = 0x01
	usbHandshake byte = 0x02
	usbBaudrate  byte = 0x03
	usbHIDOnly   byte = 0x04
	usbTimeout   byte = 0x05
)

// Subcommand ids.
const (
	SubcmdSetReportMode   byte = 0x03
	SubcmdReset           byte = 0x06
	SubcmdSPIRead         byte = 0x10
	SubcmdSetPlayerLights byte = 0x30
	SubcmdEnableIMU       byte = 0x40
	SubcmdEnableVibration byte = 0x48
)

// Report modes for SubcmdSetReportMode.
const (
	ReportModeStandardFull byte = 0x30
	ReportModeSimpleHID    byte = 0x3f
)

// DefaultPlayerLights lights the fourth LED.
const DefaultPlayerLights byte = 0b00001000

// Offsets inside a 0x21 subcommand reply.
const (
	replySubcmdOff = 14
	replySPIData   = 20
)

// MaxSPIRead is the largest chunk a single SPI read subcommand returns.
const MaxSPIRead = 0x1d

// neutralRumble is the "no vibration" rumble payload carried by every
// subcommand report.
var neutralRumble = [8]byte{0x00, 0x01, 0x40, 0x40, 0x00, 0x01, 0x40, 0x40}

// SPI addresses of the stick calibration blocks.
const (
	spiUserLeftStick     = 0x8012
	spiUserRightStick    = 0x801d
	spiFactoryLeftStick  = 0x603d
	spiFactoryRightStick = 0x6046
	spiLeftStickParams   = 0x6086
	spiRightStickParams  = 0x6098
)

var (
	ErrNotFound          = errors.New("pro controller not found")
	ErrNoReply           = errors.New("no subcommand reply")
	ErrAttachFailed      = errors.New("attach failed")
	ErrUnsupportedReport = errors.New("unsupported input report")
	ErrTimeout           = errors.New("hid read timeout")
	ErrClosed            = errors.New("controller closed")
)
