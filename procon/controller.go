package procon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/proxi-pad/proxi/internal/log"
)

// Device is an open HID handle.
type Device interface {
	io.ReadWriteCloser
	// ReadWithTimeout returns ErrTimeout when no report arrived in time.
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
}

// OpenFunc (re)opens the controller. It is called again after a reset,
// since the controller re-enumerates.
type OpenFunc func() (Device, error)

// Config tunes the attach sequence.
type Config struct {
	AttachRetries int           `help:"Controller resets to attempt before giving up on attach" default:"3" env:"PROXI_ATTACH_RETRIES"`
	ResetDelay    time.Duration `help:"Time to wait for the controller to re-enumerate after a reset" default:"6s" env:"PROXI_RESET_DELAY"`
	ReplyTimeout  time.Duration `help:"Timeout for a single reply read" default:"100ms" env:"PROXI_REPLY_TIMEOUT"`
	ReplyTries    int           `help:"Reads to attempt while waiting for a subcommand reply" default:"10" env:"PROXI_REPLY_TRIES"`
	PlayerLights  uint8         `help:"Player LED bitfield (low nibble lit, high nibble flashing)" default:"8" env:"PROXI_PLAYER_LIGHTS"`
}

// DefaultConfig matches the kong defaults.
func DefaultConfig() Config {
	return Config{
		AttachRetries: 3,
		ResetDelay:    6 * time.Second,
		ReplyTimeout:  100 * time.Millisecond,
		ReplyTries:    10,
		PlayerLights:  DefaultPlayerLights,
	}
}

// Controller drives one Pro Controller.
type Controller struct {
	open   OpenFunc
	cfg    Config
	logger *slog.Logger
	raw    log.RawLogger

	// wmu serializes writes and guards the packet counter. Reads happen from a
	// single goroutine at a time.
	wmu     sync.Mutex
	dev     Device
	counter uint8

	calMu sync.RWMutex
	cal   Calibration
}

// New opens the device through open and returns an unattached controller.
func New(open OpenFunc, cfg Config, logger *slog.Logger, raw log.RawLogger) (*Controller, error) {
	dev, err := open()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Controller{
		open:   open,
		cfg:    cfg,
		logger: logger,
		raw:    raw,
		dev:    dev,
	}, nil
}

// Close releases the HID handle.
func (c *Controller) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

// Calibration returns the active stick calibration.
func (c *Controller) Calibration() Calibration {
	c.calMu.RLock()
	defer c.calMu.RUnlock()
	return c.cal
}

// PlayerLights returns the LED bits Attach sets.
func (c *Controller) PlayerLights() uint8 { return c.cfg.PlayerLights }

// SetCalibration replaces the active stick calibration.
func (c *Controller) SetCalibration(cal Calibration) {
	c.calMu.Lock()
	c.cal = cal
	c.calMu.Unlock()
}

func (c *Controller) device() (Device, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.dev == nil {
		return nil, ErrClosed
	}
	return c.dev, nil
}

func (c *Controller) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.dev == nil {
		return ErrClosed
	}
	c.raw.Log("out", b)
	_, err := c.dev.Write(b)
	return err
}

func (c *Controller) readTimeout(buf []byte) (int, error) {
	dev, err := c.device()
	if err != nil {
		return 0, err
	}
	n, err := dev.ReadWithTimeout(buf, c.cfg.ReplyTimeout)
	if err == nil && n > 0 {
		c.raw.Log("in", buf[:n])
	}
	return n, err
}

// nextCounter returns the packet counter and advances it. Must hold wmu.
func (c *Controller) nextCounter() uint8 {
	n := c.counter
	if c.counter == 0xf {
		c.counter = 0
	} else {
		c.counter++
	}
	return n
}

func (c *Controller) buildSubcommand(sc byte, args []byte) []byte {
	buf := make([]byte, ReportLen)
	buf[0] = outSubcommand
	buf[1] = c.nextCounter()
	copy(buf[2:10], neutralRumble[:])
	buf[10] = sc
	copy(buf[11:], args)
	return buf
}

// Post sends a subcommand without waiting for its reply. Use it while
// another goroutine owns the read side.
func (c *Controller) Post(sc byte, args ...byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.dev == nil {
		return ErrClosed
	}
	buf := c.buildSubcommand(sc, args)
	c.raw.Log("out", buf)
	if _, err := c.dev.Write(buf); err != nil {
		return fmt.Errorf("subcommand 0x%02x: %w", sc, err)
	}
	return nil
}

// Subcommand sends sc and waits for the matching 0x21 reply, which is
// returned in full.
func (c *Controller) Subcommand(sc byte, args ...byte) ([]byte, error) {
	if err := c.Post(sc, args...); err != nil {
		return nil, err
	}
	buf := make([]byte, readBufLen)
	for range c.cfg.ReplyTries {
		n, err := c.readTimeout(buf)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("subcommand 0x%02x: %w", sc, err)
		}
		if n > replySubcmdOff && buf[0] == InSubcommandReply && buf[replySubcmdOff] == sc {
			return buf[:n], nil
		}
	}
	return nil, fmt.Errorf("subcommand 0x%02x: %w", sc, ErrNoReply)
}

// usbCommand sends a 0x80 command and drains the reply.
func (c *Controller) usbCommand(code byte) error {
	buf := make([]byte, usbReportLen)
	buf[0] = outUSB
	buf[1] = code
	if err := c.write(buf); err != nil {
		return fmt.Errorf("usb command 0x%02x: %w", code, err)
	}
	_, err := c.readTimeout(make([]byte, readBufLen))
	if err != nil && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("usb command 0x%02x: %w", code, err)
	}
	return nil
}

// Handshake switches the controller to HID-only communication over USB.
func (c *Controller) Handshake() error {
	for _, code := range []byte{usbHandshake, usbBaudrate, usbHandshake, usbHIDOnly} {
		if err := c.usbCommand(code); err != nil {
			return err
		}
	}
	return nil
}

// ReadSPI reads size bytes of SPI flash at addr.
func (c *Controller) ReadSPI(addr uint32, size uint8) ([]byte, error) {
	if size > MaxSPIRead {
		return nil, fmt.Errorf("spi read size 0x%02x > 0x%02x", size, MaxSPIRead)
	}
	args := make([]byte, 5)
	binary.LittleEndian.PutUint32(args[0:4], addr)
	args[4] = size

	reply, err := c.Subcommand(SubcmdSPIRead, args...)
	if err != nil {
		return nil, err
	}
	end := replySPIData + int(size)
	if len(reply) < end {
		return nil, fmt.Errorf("spi read 0x%04x: short reply (%d bytes)", addr, len(reply))
	}
	out := make([]byte, size)
	copy(out, reply[replySPIData:end])
	return out, nil
}

// ReadStickCalibration reads one stick's calibration, preferring the user
// block over the factory block, and returns it with the stick's deadzone.
func (c *Controller) ReadStickCalibration(userAddr, factoryAddr, deadzoneAddr uint32, left bool) (StickCalibration, uint16, error) {
	side := "right"
	if left {
		side = "left"
	}
	block, err := c.ReadSPI(userAddr, 9)
	if err != nil {
		return StickCalibration{}, 0, err
	}
	if hasUserCalibration(block) {
		c.logger.Info("Using user calibration data", "stick", side)
	} else {
		c.logger.Info("Using factory calibration data", "stick", side)
		if block, err = c.ReadSPI(factoryAddr, 9); err != nil {
			return StickCalibration{}, 0, err
		}
	}
	cal := decodeStickCalibration(block, left)

	params, err := c.ReadSPI(deadzoneAddr, 16)
	if err != nil {
		return StickCalibration{}, 0, err
	}
	return cal, decodeDeadzone(params), nil
}

// Calibrate reads both sticks' calibration from SPI flash and makes it the
// active calibration.
func (c *Controller) Calibrate() error {
	var cal Calibration
	var err error
	cal.Left, cal.LeftDeadzone, err = c.ReadStickCalibration(spiUserLeftStick, spiFactoryLeftStick, spiLeftStickParams, true)
	if err != nil {
		return fmt.Errorf("left stick calibration: %w", err)
	}
	cal.Right, cal.RightDeadzone, err = c.ReadStickCalibration(spiUserRightStick, spiFactoryRightStick, spiRightStickParams, false)
	if err != nil {
		return fmt.Errorf("right stick calibration: %w", err)
	}
	c.SetCalibration(cal)
	return nil
}

func boolArg(v bool) byte {
	if v {
		return 0x01
	}
	return 0x00
}

// SetIMU turns the 6-axis sensor on or off.
func (c *Controller) SetIMU(on bool) error {
	_, err := c.Subcommand(SubcmdEnableIMU, boolArg(on))
	return err
}

// SetVibration enables or disables the rumble motors.
func (c *Controller) SetVibration(on bool) error {
	_, err := c.Subcommand(SubcmdEnableVibration, boolArg(on))
	return err
}

// SetReportMode selects the input report format, e.g. ReportModeStandardFull.
func (c *Controller) SetReportMode(mode byte) error {
	_, err := c.Subcommand(SubcmdSetReportMode, mode)
	return err
}

// SetPlayerLights sets the four player LEDs. The low nibble turns LEDs on,
// the high nibble makes them flash.
func (c *Controller) SetPlayerLights(bits uint8) error {
	_, err := c.Subcommand(SubcmdSetPlayerLights, bits)
	return err
}

// Reset asks the controller to reboot and reconnect.
func (c *Controller) Reset() error {
	_, err := c.Subcommand(SubcmdReset, 0x04)
	return err
}

// Detach lets the controller time out of USB HID mode again.
func (c *Controller) Detach() error {
	buf := make([]byte, usbReportLen)
	buf[0] = outUSB
	buf[1] = usbTimeout
	return c.write(buf)
}

// status sends the USB status command and reports whether the controller
// answered with 0x81.
func (c *Controller) status() (bool, error) {
	c.wmu.Lock()
	c.counter = 0
	c.wmu.Unlock()

	if err := c.write([]byte{outUSB, usbStatus}); err != nil {
		return false, fmt.Errorf("usb status: %w", err)
	}
	buf := make([]byte, 256)
	n, err := c.readTimeout(buf)
	if errors.Is(err, ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("usb status: %w", err)
	}
	return n > 0 && buf[0] == InUSBReply, nil
}

// reopen resets the controller, waits for it to come back and re-opens it.
func (c *Controller) reopen(ctx context.Context) error {
	if err := c.Reset(); err != nil && !errors.Is(err, ErrNoReply) {
		return err
	}
	_ = c.Close()

	t := time.NewTimer(c.cfg.ResetDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	dev, err := c.open()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	c.dev = dev
	c.wmu.Unlock()

	// simple HID mode makes the next status request answer with 0x81
	if err := c.SetReportMode(ReportModeSimpleHID); err != nil && !errors.Is(err, ErrNoReply) {
		return err
	}
	return nil
}

// Attach brings the controller from power-on state to streaming 0x30 reports
// with calibration loaded.
func (c *Controller) Attach(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		ok, err := c.status()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if attempt >= c.cfg.AttachRetries {
			return fmt.Errorf("%w: no usb status reply after %d resets", ErrAttachFailed, attempt)
		}
		c.logger.Warn("Controller not in USB mode, resetting", "attempt", attempt+1, "delay", c.cfg.ResetDelay)
		if err := c.reopen(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrAttachFailed, err)
		}
	}

	if err := c.Handshake(); err != nil {
		return err
	}
	if err := c.Calibrate(); err != nil {
		return err
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"imu off", func() error { return c.SetIMU(false) }},
		{"vibration off", func() error { return c.SetVibration(false) }},
		{"player lights", func() error { return c.SetPlayerLights(c.cfg.PlayerLights) }},
		{"report mode", func() error { return c.SetReportMode(ReportModeStandardFull) }},
	}
	for _, s := range steps {
		err := s.fn()
		if errors.Is(err, ErrNoReply) {
			c.logger.Warn("Controller did not acknowledge setup step", "step", s.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Reconnect drops the current handle, opens the controller again and re-runs
// Attach. Used after the controller was unplugged or stopped answering.
func (c *Controller) Reconnect(ctx context.Context) error {
	_ = c.Close()
	dev, err := c.open()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	c.dev = dev
	c.wmu.Unlock()
	return c.Attach(ctx)
}

// ReadInput waits up to timeout for the next input report. Returns
// ErrTimeout when nothing arrived and ErrUnsupportedReport for reports
// without a standard input section.
func (c *Controller) ReadInput(buf []byte, timeout time.Duration) (InputReport, error) {
	dev, err := c.device()
	if err != nil {
		return InputReport{}, err
	}
	n, err := dev.ReadWithTimeout(buf, timeout)
	if err != nil {
		return InputReport{}, err
	}
	c.raw.Log("in", buf[:n])
	return ParseReport(buf[:n])
}
