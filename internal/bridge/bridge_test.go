package bridge_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/proxi-pad/proxi/device/xbox360"
	"github.com/proxi-pad/proxi/internal/bridge"
	"github.com/proxi-pad/proxi/internal/metrics"
	"github.com/proxi-pad/proxi/procon"
	"github.com/proxi-pad/proxi/procon/procontest"
)

type fakeSink struct {
	mu     sync.Mutex
	states []xbox360.InputState
	fail   error
	rumble chan xbox360.XRumbleState
	once   sync.Once
}

func newFakeSink() *fakeSink {
	return &fakeSink{rumble: make(chan xbox360.XRumbleState, 1)}
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Update(_ context.Context, st xbox360.InputState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.states = append(s.states, st)
	return nil
}

func (s *fakeSink) Rumble() <-chan xbox360.XRumbleState { return s.rumble }

func (s *fakeSink) Close() error {
	s.once.Do(func() { close(s.rumble) })
	return nil
}

func (s *fakeSink) States() []xbox360.InputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]xbox360.InputState(nil), s.states...)
}

var (
	leftCenter  = procon.Stick{X: 0x7f0, Y: 0x800}
	rightCenter = procon.Stick{X: 0x810, Y: 0x7e0}
)

func attached(t *testing.T) (*procontest.Fake, *procon.Controller) {
	t.Helper()
	f := procontest.New()
	cfg := procon.DefaultConfig()
	cfg.ResetDelay = time.Millisecond
	cfg.ReplyTimeout = 20 * time.Millisecond
	c, err := procon.New(f.Open, cfg, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Attach(context.Background()))
	return f, c
}

func testConfig() bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.PollTimeout = 5 * time.Millisecond
	cfg.Keepalive = 0
	cfg.ReconnectInterval = time.Millisecond
	return cfg
}

func start(t *testing.T, b *bridge.Bridge) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()
	return cancel, errc
}

func stop(t *testing.T, cancel context.CancelFunc, errc <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestRunForwardsReports(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f, c := attached(t)
	sk := newFakeSink()
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler), bridge.WithDeviceName("Pro Controller"))
	require.NoError(t, err)
	cancel, errc := start(t, b)

	f.Feed(procontest.StandardReport(procon.ButtonA|procon.ButtonZR|procon.ButtonHome, leftCenter, rightCenter))
	require.Eventually(t, func() bool { return len(sk.States()) == 1 }, time.Second, time.Millisecond)

	st := sk.States()[0]
	assert.Equal(t, xbox360.ButtonA|xbox360.ButtonGuide, st.Buttons)
	assert.Equal(t, uint8(255), st.RT)
	assert.Equal(t, uint8(0), st.LT)
	assert.Zero(t, st.LX)
	assert.Zero(t, st.RY)

	status := b.Status()
	assert.Equal(t, bridge.StateAttached, status.State)
	assert.Equal(t, "Pro Controller", status.Device)
	assert.Equal(t, "fake", status.Sink)
	assert.Equal(t, []string{"guide", "a"}, status.Buttons)
	assert.Equal(t, uint8(255), status.RightTrigger)

	stop(t, cancel, errc)
	assert.Equal(t, bridge.StateStopped, b.Status().State)
}

func TestUnchangedStateIsNotResent(t *testing.T) {
	f, c := attached(t)
	sk := newFakeSink()
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	for range 3 {
		f.Feed(procontest.StandardReport(procon.ButtonB, leftCenter, rightCenter))
	}
	require.Eventually(t, func() bool { return b.Status().Reports == 3 }, time.Second, time.Millisecond)
	assert.Len(t, sk.States(), 1)
	assert.Equal(t, uint64(1), b.Status().Updates)
}

func TestKeepaliveResends(t *testing.T) {
	f, c := attached(t)
	sk := newFakeSink()
	cfg := testConfig()
	cfg.Keepalive = 10 * time.Millisecond
	b, err := bridge.New(c, sk, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	f.Feed(procontest.StandardReport(procon.ButtonX, leftCenter, rightCenter))
	require.Eventually(t, func() bool { return len(sk.States()) >= 3 }, time.Second, time.Millisecond)
	for _, st := range sk.States() {
		assert.Equal(t, xbox360.ButtonX, st.Buttons)
	}
}

func TestPollTimeoutsAreCounted(t *testing.T) {
	_, c := attached(t)
	timeouts := metrics.ReportsTotal.WithLabelValues(metrics.ResultTimeout)
	before := testutil.ToFloat64(timeouts)

	b, err := bridge.New(c, newFakeSink(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	require.Eventually(t, func() bool { return testutil.ToFloat64(timeouts) >= before+2 }, time.Second, time.Millisecond)
}

func TestMalformedReportsAreDropped(t *testing.T) {
	f, c := attached(t)
	sk := newFakeSink()
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	f.Feed([]byte{0x3f, 0x00, 0x08})
	f.Feed([]byte{0x30, 0x00})
	require.Eventually(t, func() bool { return b.Status().Dropped == 2 }, time.Second, time.Millisecond)
	assert.Empty(t, sk.States())
}

func TestReadErrorWithoutReconnect(t *testing.T) {
	f, c := attached(t)
	cfg := testConfig()
	cfg.Reconnect = false
	b, err := bridge.New(c, newFakeSink(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	f.FailReads(io.ErrUnexpectedEOF)
	err = b.Run(context.Background())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, bridge.StateStopped, b.Status().State)
	assert.NotEmpty(t, b.Status().LastError)
}

func TestReconnectAfterReadError(t *testing.T) {
	f, c := attached(t)
	sk := newFakeSink()
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	f.Feed(procontest.StandardReport(procon.ButtonY, leftCenter, rightCenter))
	require.Eventually(t, func() bool { return len(sk.States()) == 1 }, time.Second, time.Millisecond)

	f.FailReads(io.ErrUnexpectedEOF)
	require.Eventually(t, func() bool {
		s := b.Status()
		return s.Reconnects == 1 && s.State == bridge.StateAttached
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 2, f.Opens())

	states := sk.States()
	require.Len(t, states, 2)
	assert.Equal(t, xbox360.InputState{}, states[1], "pad released while reconnecting")

	f.Feed(procontest.StandardReport(procon.ButtonY, leftCenter, rightCenter))
	require.Eventually(t, func() bool { return len(sk.States()) == 3 }, time.Second, time.Millisecond)
}

func TestSinkClosedStopsRun(t *testing.T) {
	_, c := attached(t)
	sk := newFakeSink()
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	_, errc := start(t, b)

	require.NoError(t, sk.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, bridge.ErrSinkClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestSinkUpdateErrorIsRecorded(t *testing.T) {
	f, c := attached(t)
	sk := newFakeSink()
	sk.fail = errors.New("pad unplugged")
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	f.Feed(procontest.StandardReport(procon.ButtonA, leftCenter, rightCenter))
	require.Eventually(t, func() bool { return b.Status().LastError == "pad unplugged" }, time.Second, time.Millisecond)
	assert.Zero(t, b.Status().Updates)
}

func TestRumbleIsRecorded(t *testing.T) {
	_, c := attached(t)
	sk := newFakeSink()
	b, err := bridge.New(c, sk, testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	cancel, errc := start(t, b)
	defer stop(t, cancel, errc)

	sk.rumble <- xbox360.XRumbleState{LeftMotor: 200, RightMotor: 10}
	require.Eventually(t, func() bool { return b.Status().RumbleLarge == 200 }, time.Second, time.Millisecond)
	assert.Equal(t, uint8(10), b.Status().RumbleSmall)
}

func TestCalibrationOverride(t *testing.T) {
	_, c := attached(t)
	b, err := bridge.New(c, newFakeSink(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	factory := c.Calibration()

	override := procon.Calibration{
		Left:          procon.StickCalibration{0x600, 0x600, 0x800, 0x800, 0x600, 0x600},
		Right:         procon.StickCalibration{0x600, 0x600, 0x800, 0x800, 0x600, 0x600},
		LeftDeadzone:  0x100,
		RightDeadzone: 0x100,
	}
	b.SetCalibrationOverride(&override)
	assert.Equal(t, override, b.Calibration())

	b.SetCalibrationOverride(nil)
	assert.Equal(t, factory, b.Calibration())
}

func TestSetPlayerLights(t *testing.T) {
	f, c := attached(t)
	b, err := bridge.New(c, newFakeSink(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, b.SetPlayerLights(0b0011))
	assert.Equal(t, uint8(0b0011), b.Lights())

	w := f.Written()
	last := w[len(w)-1]
	assert.Equal(t, procon.SubcmdSetPlayerLights, last[10])
	assert.Equal(t, byte(0b0011), last[11])
}

// lastLightsArg returns the argument of the last player-lights subcommand.
func lastLightsArg(t *testing.T, f *procontest.Fake) byte {
	t.Helper()
	w := f.Written()
	for i := len(w) - 1; i >= 0; i-- {
		if len(w[i]) > 11 && w[i][0] == 0x01 && w[i][10] == procon.SubcmdSetPlayerLights {
			return w[i][11]
		}
	}
	t.Fatal("no player lights subcommand written")
	return 0
}

func TestLightsStartWithAttachValue(t *testing.T) {
	f, c := attached(t)
	b, err := bridge.New(c, newFakeSink(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.Equal(t, procon.DefaultPlayerLights, b.Lights())
	assert.Equal(t, procon.DefaultPlayerLights, lastLightsArg(t, f))
}

func TestPlayerLightsSurviveReconnect(t *testing.T) {
	tests := []struct {
		name string
		set  bool
		bits uint8
		want uint8
	}{
		{"runtime value", true, 0b0110, 0b0110},
		{"all off", true, 0, 0},
		{"attach default", false, 0, procon.DefaultPlayerLights},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := attached(t)
			b, err := bridge.New(c, newFakeSink(), testConfig(), slog.New(slog.DiscardHandler))
			require.NoError(t, err)
			if tt.set {
				require.NoError(t, b.SetPlayerLights(tt.bits))
			}
			cancel, errc := start(t, b)
			defer stop(t, cancel, errc)

			f.FailReads(io.ErrUnexpectedEOF)
			require.Eventually(t, func() bool {
				s := b.Status()
				return s.Reconnects == 1 && s.State == bridge.StateAttached
			}, 2*time.Second, time.Millisecond)

			assert.Equal(t, tt.want, lastLightsArg(t, f))
			assert.Equal(t, tt.want, b.Lights())
		})
	}
}

func TestNewRejectsUnknownLayout(t *testing.T) {
	_, c := attached(t)
	cfg := testConfig()
	cfg.Layout = "diagonal"
	_, err := bridge.New(c, newFakeSink(), cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestStateHook(t *testing.T) {
	f, c := attached(t)
	var mu sync.Mutex
	var transitions []string
	hook := func(from, to string) {
		mu.Lock()
		transitions = append(transitions, from+">"+to)
		mu.Unlock()
	}
	b, err := bridge.New(c, newFakeSink(), testConfig(), slog.New(slog.DiscardHandler), bridge.WithStateHook(hook))
	require.NoError(t, err)
	cancel, errc := start(t, b)

	f.FailReads(io.ErrUnexpectedEOF)
	require.Eventually(t, func() bool { return b.Status().Reconnects == 1 && b.Status().State == bridge.StateAttached }, 2*time.Second, time.Millisecond)
	stop(t, cancel, errc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"idle>attached",
		"attached>reconnecting",
		"reconnecting>attached",
		"attached>stopped",
	}, transitions)
}
