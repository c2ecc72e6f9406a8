// Package bridge pumps controller input into the virtual pad.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/device/xbox360"
	"github.com/proxi-pad/proxi/internal/mapping"
	"github.com/proxi-pad/proxi/internal/metrics"
	"github.com/proxi-pad/proxi/internal/sink"
	"github.com/proxi-pad/proxi/procon"
)

// ErrSinkClosed is returned by Run when the virtual pad went away.
var ErrSinkClosed = errors.New("virtual pad closed")

// States reported by Status.
const (
	StateIdle         = "idle"
	StateAttached     = "attached"
	StateReconnecting = "reconnecting"
	StateStopped      = "stopped"
)

// Config tunes the runtime loop.
type Config struct {
	Layout            string        `help:"Face button layout: label (Nintendo A is Xbox A) or position (Nintendo A is Xbox B)" default:"label" enum:"label,position" env:"PROXI_LAYOUT"`
	PollTimeout       time.Duration `help:"Input read timeout; bounds shutdown latency" default:"100ms" env:"PROXI_POLL_TIMEOUT"`
	Keepalive         time.Duration `help:"Resend an unchanged state after this long (0 disables)" default:"1s" env:"PROXI_KEEPALIVE"`
	Reconnect         bool          `help:"Re-attach the controller after read errors" default:"true" negatable:"" env:"PROXI_RECONNECT"`
	ReconnectInterval time.Duration `help:"Minimum time between reconnect attempts" default:"2s" env:"PROXI_RECONNECT_INTERVAL"`
}

// DefaultConfig matches the kong defaults.
func DefaultConfig() Config {
	return Config{
		Layout:            string(mapping.LayoutLabel),
		PollTimeout:       100 * time.Millisecond,
		Keepalive:         time.Second,
		Reconnect:         true,
		ReconnectInterval: 2 * time.Second,
	}
}

// Controller is the part of *procon.Controller the bridge drives.
type Controller interface {
	ReadInput(buf []byte, timeout time.Duration) (procon.InputReport, error)
	Reconnect(ctx context.Context) error
	Calibration() procon.Calibration
	SetCalibration(cal procon.Calibration)
	Post(sc byte, args ...byte) error
	PlayerLights() uint8
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithDeviceName sets the device name shown in Status.
func WithDeviceName(name string) Option {
	return func(b *Bridge) { b.device = name }
}

// WithStateHook registers fn to be called on every state change.
func WithStateHook(fn func(from, to string)) Option {
	return func(b *Bridge) { b.hook = fn }
}

// Bridge reads controller reports, maps them and feeds the sink.
type Bridge struct {
	ctrl    Controller
	sink    sink.Sink
	cfg     Config
	mapper  mapping.Mapper
	logger  *slog.Logger
	limiter *rate.Limiter
	hook    func(from, to string)

	dropLog  rate.Sometimes
	writeLog rate.Sometimes

	mu         sync.Mutex
	device     string
	state      string
	report     procon.InputReport
	last       xbox360.InputState
	lastSent   time.Time
	sent       bool
	reports    uint64
	updates    uint64
	dropped    uint64
	reconnects uint64
	rumble     xbox360.XRumbleState
	lights     uint8
	lightsSet  bool
	lastErr    string
	spiCal     procon.Calibration
	override   *procon.Calibration
}

// New returns a bridge for an attached controller.
func New(ctrl Controller, sk sink.Sink, cfg Config, logger *slog.Logger, opts ...Option) (*Bridge, error) {
	layout, err := mapping.ParseLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	every := rate.Inf
	if cfg.ReconnectInterval > 0 {
		every = rate.Every(cfg.ReconnectInterval)
	}
	b := &Bridge{
		ctrl:     ctrl,
		sink:     sk,
		cfg:      cfg,
		mapper:   mapping.New(layout),
		logger:   logger,
		limiter:  rate.NewLimiter(every, 1),
		dropLog:  rate.Sometimes{Interval: time.Second},
		writeLog: rate.Sometimes{Interval: time.Second},
		state:    StateIdle,
		spiCal:   ctrl.Calibration(),
		lights:   ctrl.PlayerLights(),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Run pumps reports until ctx is canceled, the sink closes or, without
// reconnect, the controller fails.
func (b *Bridge) Run(ctx context.Context) error {
	b.setState(StateAttached)
	metrics.SetControllerUp(true)
	defer metrics.SetControllerUp(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.readLoop(gctx) })
	g.Go(func() error { return b.rumbleLoop(gctx) })
	err := g.Wait()

	b.setState(StateStopped)
	if err != nil {
		b.setError(err)
	}
	return err
}

func (b *Bridge) readLoop(ctx context.Context) error {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		rep, err := b.ctrl.ReadInput(buf, b.cfg.PollTimeout)
		switch {
		case err == nil:
			b.handleReport(ctx, rep)
		case errors.Is(err, procon.ErrTimeout):
			metrics.IncReport(metrics.ResultTimeout)
			b.keepalive(ctx)
		case errors.Is(err, procon.ErrUnsupportedReport):
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
			metrics.IncReport(metrics.ResultDropped)
			b.dropLog.Do(func() { b.logger.Debug("Dropping report", "error", err) })
		default:
			if ctx.Err() != nil {
				return nil
			}
			metrics.IncReport(metrics.ResultError)
			if !b.cfg.Reconnect {
				return fmt.Errorf("read controller: %w", err)
			}
			b.logger.Warn("Controller read failed", "error", err)
			if err := b.reconnect(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bridge) handleReport(ctx context.Context, rep procon.InputReport) {
	metrics.IncReport(metrics.ResultOK)
	metrics.Battery.Set(float64(rep.Battery))
	st := b.mapper.Map(rep, b.ctrl.Calibration())

	b.mu.Lock()
	b.reports++
	b.report = rep
	changed := !b.sent || st != b.last
	b.mu.Unlock()

	if changed {
		b.send(ctx, st)
		return
	}
	b.keepalive(ctx)
}

func (b *Bridge) keepalive(ctx context.Context) {
	if b.cfg.Keepalive <= 0 {
		return
	}
	b.mu.Lock()
	due := b.sent && time.Since(b.lastSent) >= b.cfg.Keepalive
	st := b.last
	b.mu.Unlock()
	if due {
		b.send(ctx, st)
	}
}

func (b *Bridge) send(ctx context.Context, st xbox360.InputState) {
	err := b.sink.Update(ctx, st)
	metrics.IncSinkUpdate(b.sink.Name(), err)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = st
	b.sent = true
	b.lastSent = time.Now()
	if err != nil {
		b.lastErr = err.Error()
		b.writeLog.Do(func() { b.logger.Warn("Virtual pad update failed", "sink", b.sink.Name(), "error", err) })
		return
	}
	b.updates++
}

// reconnect releases the pad and re-attaches the controller until it
// succeeds or ctx is done.
func (b *Bridge) reconnect(ctx context.Context) error {
	b.setState(StateReconnecting)
	metrics.SetControllerUp(false)
	b.send(ctx, xbox360.InputState{})

	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil
		}
		err := b.ctrl.Reconnect(ctx)
		metrics.IncReconnect(err)
		b.mu.Lock()
		b.reconnects++
		b.mu.Unlock()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		b.setError(err)
		b.logger.Warn("Controller reconnect failed", "error", err)
	}

	b.mu.Lock()
	b.spiCal = b.ctrl.Calibration()
	override := b.override
	lights, lightsSet := b.lights, b.lightsSet
	b.mu.Unlock()
	if override != nil {
		b.ctrl.SetCalibration(*override)
	}
	if lightsSet {
		if err := b.ctrl.Post(procon.SubcmdSetPlayerLights, lights); err != nil {
			b.logger.Warn("Restoring player lights failed", "error", err)
		}
	}
	b.setState(StateAttached)
	metrics.SetControllerUp(true)
	b.logger.Info("Controller reconnected")
	return nil
}

func (b *Bridge) rumbleLoop(ctx context.Context) error {
	ch := b.sink.Rumble()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s: %w", b.sink.Name(), ErrSinkClosed)
			}
			metrics.RumbleTotal.Inc()
			b.mu.Lock()
			b.rumble = r
			b.mu.Unlock()
			b.logger.Debug("Rumble request", "large", r.LeftMotor, "small", r.RightMotor)
		}
	}
}

// SetPlayerLights changes the player LEDs without waiting for the reply,
// which the read loop consumes.
func (b *Bridge) SetPlayerLights(bits uint8) error {
	if err := b.ctrl.Post(procon.SubcmdSetPlayerLights, bits); err != nil {
		return err
	}
	b.mu.Lock()
	b.lights = bits
	b.lightsSet = true
	b.mu.Unlock()
	return nil
}

// Lights returns the player LED bits currently shown.
func (b *Bridge) Lights() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lights
}

// Calibration returns the active stick calibration.
func (b *Bridge) Calibration() procon.Calibration { return b.ctrl.Calibration() }

// SetCalibrationOverride replaces the calibration read from the controller.
// nil restores it. The override survives reconnects.
func (b *Bridge) SetCalibrationOverride(cal *procon.Calibration) {
	b.mu.Lock()
	if cal != nil {
		c := *cal
		b.override = &c
	} else {
		b.override = nil
	}
	active := b.spiCal
	if b.override != nil {
		active = *b.override
	}
	b.mu.Unlock()
	b.ctrl.SetCalibration(active)
}

// Status returns a snapshot for the control API.
func (b *Bridge) Status() apitypes.StatusResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	buttons := xbox360.ButtonNames(b.last.Buttons)
	if buttons == nil {
		buttons = []string{}
	}
	return apitypes.StatusResponse{
		State:        b.state,
		Device:       b.device,
		Sink:         b.sink.Name(),
		Battery:      b.report.Battery,
		Charging:     b.report.Charging,
		Reports:      b.reports,
		Updates:      b.updates,
		Dropped:      b.dropped,
		Reconnects:   b.reconnects,
		Buttons:      buttons,
		LeftStick:    apitypes.Stick{X: b.last.LX, Y: b.last.LY},
		RightStick:   apitypes.Stick{X: b.last.RX, Y: b.last.RY},
		LeftTrigger:  b.last.LT,
		RightTrigger: b.last.RT,
		RumbleLarge:  b.rumble.LeftMotor,
		RumbleSmall:  b.rumble.RightMotor,
		LastError:    b.lastErr,
	}
}

func (b *Bridge) setState(s string) {
	b.mu.Lock()
	from := b.state
	b.state = s
	b.mu.Unlock()
	if b.hook != nil && from != s {
		b.hook(from, s)
	}
}

func (b *Bridge) setError(err error) {
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
}
