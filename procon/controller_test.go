package procon_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/proxi-pad/proxi/procon"
	"github.com/proxi-pad/proxi/procon/procontest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() procon.Config {
	cfg := procon.DefaultConfig()
	cfg.ResetDelay = time.Millisecond
	cfg.ReplyTimeout = 20 * time.Millisecond
	return cfg
}

func newController(t *testing.T, f *procontest.Fake) *procon.Controller {
	t.Helper()
	c, err := procon.New(f.Open, testConfig(), slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAttach(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)

	require.NoError(t, c.Attach(context.Background()))

	written := f.Written()
	require.NotEmpty(t, written)
	assert.Equal(t, []byte{0x80, 0x01}, written[0])

	var usb []byte
	for _, w := range written[1:] {
		if w[0] == 0x80 {
			assert.Len(t, w, 64)
			usb = append(usb, w[1])
		}
	}
	assert.Equal(t, []byte{0x02, 0x03, 0x02, 0x04}, usb)

	assert.Equal(t, []byte{
		0x10, 0x10, 0x10, // left: user, factory, params
		0x10, 0x10, 0x10, // right
		0x40, 0x48, 0x30, 0x03,
	}, f.Subcommands())

	cal := c.Calibration()
	assert.Equal(t, procon.StickCalibration(procontest.FactoryLeft), cal.Left)
	assert.Equal(t, procon.StickCalibration{0x5e0, 0x5f0, 0x810, 0x7e0, 0x5c0, 0x5d0}, cal.Right)
	assert.Equal(t, uint16(0xae), cal.LeftDeadzone)
	assert.Equal(t, uint16(0xae), cal.RightDeadzone)

	last := written[len(written)-1]
	assert.Equal(t, byte(0x03), last[10])
	assert.Equal(t, procon.ReportModeStandardFull, last[11])
}

func TestAttachSubcommandLayout(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	require.NoError(t, c.Attach(context.Background()))

	var counters []byte
	for _, w := range f.Written() {
		if w[0] != 0x01 {
			continue
		}
		assert.Len(t, w, procon.ReportLen)
		assert.Equal(t, []byte{0x00, 0x01, 0x40, 0x40, 0x00, 0x01, 0x40, 0x40}, w[2:10])
		counters = append(counters, w[1])
	}
	for i, n := range counters {
		assert.Equal(t, byte(i%16), n)
	}

	lights := f.Written()[len(f.Written())-2]
	assert.Equal(t, procon.SubcmdSetPlayerLights, lights[10])
	assert.Equal(t, procon.DefaultPlayerLights, lights[11])
}

func TestCounterWraps(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	for range 18 {
		require.NoError(t, c.Post(procon.SubcmdEnableIMU, 0))
	}
	var got []byte
	for _, w := range f.Written() {
		got = append(got, w[1])
	}
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 0, 1}, got)
}

func TestAttachUserCalibration(t *testing.T) {
	f := procontest.New()
	user := [6]uint16{0x600, 0x610, 0x7a0, 0x7b0, 0x620, 0x630}
	f.PutStick(0x8012, user)
	c := newController(t, f)

	require.NoError(t, c.Attach(context.Background()))
	assert.Equal(t, procon.StickCalibration(user), c.Calibration().Left)

	// left used only the user block, right fell back to factory
	assert.Equal(t, []byte{0x10, 0x10, 0x10, 0x10, 0x10, 0x40, 0x48, 0x30, 0x03}, f.Subcommands())
}

func TestAttachResetsWhenNotInUSBMode(t *testing.T) {
	f := procontest.New()
	f.StatusMisses = 1
	c := newController(t, f)

	require.NoError(t, c.Attach(context.Background()))
	assert.Equal(t, 2, f.Opens())

	sub := f.Subcommands()
	require.GreaterOrEqual(t, len(sub), 2)
	assert.Equal(t, []byte{procon.SubcmdReset, procon.SubcmdSetReportMode}, sub[:2])
}

func TestAttachGivesUp(t *testing.T) {
	f := procontest.New()
	f.StatusMisses = 100
	cfg := testConfig()
	cfg.AttachRetries = 2
	c, err := procon.New(f.Open, cfg, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	defer c.Close()

	err = c.Attach(context.Background())
	assert.ErrorIs(t, err, procon.ErrAttachFailed)
	assert.Equal(t, 3, f.Opens())
}

func TestAttachCanceledDuringReset(t *testing.T) {
	f := procontest.New()
	f.StatusMisses = 1
	cfg := testConfig()
	cfg.ResetDelay = time.Hour
	c, err := procon.New(f.Open, cfg, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Attach(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAttachToleratesUnacknowledgedSetup(t *testing.T) {
	f := procontest.New()
	f.Silent[procon.SubcmdEnableIMU] = true
	c := newController(t, f)
	assert.NoError(t, c.Attach(context.Background()))
}

func TestSubcommandNoReply(t *testing.T) {
	f := procontest.New()
	f.Silent[procon.SubcmdSPIRead] = true
	c := newController(t, f)

	_, err := c.ReadSPI(0x6000, 0x10)
	assert.ErrorIs(t, err, procon.ErrNoReply)
}

func TestReadSPI(t *testing.T) {
	f := procontest.New()
	f.SPI[0x6050] = 0x32
	f.SPI[0x6051] = 0x32
	f.SPI[0x6052] = 0x32
	c := newController(t, f)

	b, err := c.ReadSPI(0x6050, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x32, 0x32, 0x32, 0xff}, b)

	last := f.Written()[0]
	assert.Equal(t, []byte{0x50, 0x60, 0x00, 0x00, 0x04}, last[11:16])

	_, err = c.ReadSPI(0x6050, 0x1e)
	assert.Error(t, err)
}

func TestReadError(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	f.FailReads(io.ErrUnexpectedEOF)

	_, err := c.ReadSPI(0x6000, 1)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadInput(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	buf := make([]byte, 64)

	_, err := c.ReadInput(buf, 5*time.Millisecond)
	assert.ErrorIs(t, err, procon.ErrTimeout)

	f.Feed(procontest.StandardReport(procon.ButtonA|procon.ButtonZL, procon.Stick{X: 0x800, Y: 0x7ff}, procon.Stick{X: 1, Y: 0xfff}))
	rep, err := c.ReadInput(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, procon.ButtonA|procon.ButtonZL, rep.Buttons)
	assert.Equal(t, procon.Stick{X: 0x800, Y: 0x7ff}, rep.LeftStick)
	assert.Equal(t, procon.Stick{X: 1, Y: 0xfff}, rep.RightStick)

	f.Feed([]byte{0x3f, 0, 0})
	_, err = c.ReadInput(buf, time.Second)
	assert.ErrorIs(t, err, procon.ErrUnsupportedReport)
}

func TestClosedController(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err := c.Post(procon.SubcmdEnableIMU, 0)
	assert.True(t, errors.Is(err, procon.ErrClosed))
	_, err = c.ReadInput(make([]byte, 64), time.Millisecond)
	assert.ErrorIs(t, err, procon.ErrClosed)
}

func TestDetach(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	require.NoError(t, c.Detach())
	w := f.Written()
	require.Len(t, w, 1)
	assert.Equal(t, []byte{0x80, 0x05}, w[0][:2])
}

func TestReconnect(t *testing.T) {
	f := procontest.New()
	c := newController(t, f)
	require.NoError(t, c.Attach(context.Background()))

	f.FailReads(io.ErrUnexpectedEOF)
	_, err := c.ReadInput(make([]byte, 64), time.Millisecond)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.NoError(t, c.Reconnect(context.Background()))
	assert.Equal(t, 2, f.Opens())

	f.Feed(procontest.StandardReport(procon.ButtonB, procon.Stick{}, procon.Stick{}))
	var rep procon.InputReport
	require.Eventually(t, func() bool {
		rep, err = c.ReadInput(make([]byte, 64), 10*time.Millisecond)
		return err == nil && rep.ID == procon.InStandardFull
	}, time.Second, time.Millisecond)
	assert.Equal(t, procon.ButtonB, rep.Buttons)
}

// reenumerating serves a controller whose HID path changes every time the
// device list is read; only the newest path can be opened.
type reenumerating struct {
	f       *procontest.Fake
	current string
	lists   int
	opened  []string
}

func (r *reenumerating) enumerate() ([]procon.DeviceInfo, error) {
	r.lists++
	r.current = fmt.Sprintf("/dev/hidraw%d", 2+r.lists)
	return []procon.DeviceInfo{
		{Path: "/dev/hidraw0", Product: "USB Receiver"},
		{Path: r.current, Product: "Pro Controller"},
	}, nil
}

func (r *reenumerating) openPath(path string) (procon.Device, error) {
	r.opened = append(r.opened, path)
	if path != r.current {
		return nil, fmt.Errorf("open %s: no such device", path)
	}
	return r.f.Open()
}

func TestAttachFindsReenumeratedController(t *testing.T) {
	f := procontest.New()
	f.StatusMisses = 1
	r := &reenumerating{f: f}
	c, err := procon.New(procon.FinderWith("", "", r.enumerate, r.openPath), testConfig(), slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Attach(context.Background()))
	assert.Equal(t, []string{"/dev/hidraw3", "/dev/hidraw4"}, r.opened)

	f.FailReads(io.ErrUnexpectedEOF)
	require.NoError(t, c.Reconnect(context.Background()))
	assert.Equal(t, []string{"/dev/hidraw3", "/dev/hidraw4", "/dev/hidraw5"}, r.opened)
}

func TestFinderWithExplicitPath(t *testing.T) {
	var opened []string
	enumerate := func() ([]procon.DeviceInfo, error) { return nil, errors.New("not called") }
	openPath := func(p string) (procon.Device, error) {
		opened = append(opened, p)
		return procontest.New().Open()
	}
	open := procon.FinderWith("/dev/hidraw9", "", enumerate, openPath)
	for range 2 {
		d, err := open()
		require.NoError(t, err)
		_ = d.Close()
	}
	assert.Equal(t, []string{"/dev/hidraw9", "/dev/hidraw9"}, opened)

	_, err := procon.FinderWith("", "", func() ([]procon.DeviceInfo, error) { return nil, nil }, openPath)()
	assert.ErrorIs(t, err, procon.ErrNotFound)
}
