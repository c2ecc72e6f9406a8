package handler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxi-pad/proxi/apiclient"
	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/internal/server/api"
	"github.com/proxi-pad/proxi/internal/server/api/handler"
	handlerTest "github.com/proxi-pad/proxi/internal/testing"
	"github.com/proxi-pad/proxi/procon"
)

type fakeBridge struct {
	lights  uint8
	failLED error
}

func (b *fakeBridge) Status() apitypes.StatusResponse {
	return apitypes.StatusResponse{State: "attached", Sink: "viiper", Reports: 42, Buttons: []string{"a"}}
}

func (b *fakeBridge) Lights() uint8 { return b.lights }

func (b *fakeBridge) SetPlayerLights(bits uint8) error {
	if b.failLED != nil {
		return b.failLED
	}
	b.lights = bits
	return nil
}

func (b *fakeBridge) Calibration() procon.Calibration {
	return procon.Calibration{
		Left:         procon.StickCalibration{0x5a0, 0x5b0, 0x7f0, 0x800, 0x590, 0x580},
		LeftDeadzone: 0xae,
	}
}

func start(t *testing.T, b handler.Bridge) *apiclient.Transport {
	t.Helper()
	addr, done := handlerTest.StartAPIServer(t, func(r *api.Router) {
		handler.Register(r, b, "test")
	})
	t.Cleanup(done)
	return apiclient.NewTransport(addr)
}

func TestStatus(t *testing.T) {
	c := start(t, &fakeBridge{})
	line, err := c.DoCtx(context.Background(), "status", nil, nil)
	require.NoError(t, err)

	st, err := apiclient.Parse[apitypes.StatusResponse](line)
	require.NoError(t, err)
	assert.Equal(t, "attached", st.State)
	assert.Equal(t, uint64(42), st.Reports)
	assert.Equal(t, []string{"a"}, st.Buttons)
}

func TestLEDs(t *testing.T) {
	b := &fakeBridge{lights: 8}
	c := start(t, b)

	tests := []struct {
		name     string
		payload  any
		expected string
	}{
		{"read", nil, `{"lights":8}`},
		{"binary", "0b0011", `{"lights":3}`},
		{"hex", "0xf0", `{"lights":240}`},
		{"decimal", "1", `{"lights":1}`},
		{"too large", "256", `{"error":"invalid led bits \"256\""}`},
		{"garbage", "on", `{"error":"invalid led bits \"on\""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := c.Do("leds", tt.payload, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

func TestLEDsError(t *testing.T) {
	c := start(t, &fakeBridge{failLED: errors.New("controller closed")})
	line, err := c.Do("leds", "1", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"error":"controller closed"}`, line)
}

func TestCalibration(t *testing.T) {
	c := start(t, &fakeBridge{})
	line, err := c.Do("calibration", nil, nil)
	require.NoError(t, err)

	cal, err := apiclient.Parse[apitypes.CalibrationResponse](line)
	require.NoError(t, err)
	assert.Equal(t, apitypes.StickCalibration{
		XMaxAbove: 0x5a0, YMaxAbove: 0x5b0, XCenter: 0x7f0, YCenter: 0x800,
		XMinBelow: 0x590, YMinBelow: 0x580, Deadzone: 0xae,
	}, cal.Left)
	assert.Equal(t, apitypes.StickCalibration{}, cal.Right)
}
