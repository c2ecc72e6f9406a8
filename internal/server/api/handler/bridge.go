package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/internal/calibfile"
	"github.com/proxi-pad/proxi/internal/server/api"
	"github.com/proxi-pad/proxi/procon"
)

// Bridge is what the control endpoints need from the running bridge.
type Bridge interface {
	Status() apitypes.StatusResponse
	Lights() uint8
	SetPlayerLights(bits uint8) error
	Calibration() procon.Calibration
}

// Register adds every control endpoint to r.
func Register(r *api.Router, b Bridge, version string) {
	r.Register("ping", Ping(version))
	r.Register("status", Status(b))
	r.Register("leds", LEDs(b))
	r.Register("calibration", Calibration(b))
}

func writeJSON(res *api.Response, v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res.JSON = string(out)
	return nil
}

// Status reports the bridge state and the last forwarded pad state.
func Status(b Bridge) api.HandlerFunc {
	return func(_ *api.Request, res *api.Response, _ *slog.Logger) error {
		return writeJSON(res, b.Status())
	}
}

// LEDs reads the player lights, or sets them when given a bit pattern
// ("leds 0b1001", "leds 0x0f", "leds 3").
func LEDs(b Bridge) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		if len(req.Args) >= 1 {
			bits, err := strconv.ParseUint(req.Args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid led bits %q", req.Args[0])
			}
			if err := b.SetPlayerLights(uint8(bits)); err != nil {
				return err
			}
			logger.Info("Player lights changed", "bits", fmt.Sprintf("%08b", bits))
		}
		return writeJSON(res, apitypes.LEDsResponse{Lights: b.Lights()})
	}
}

// Calibration returns the active stick calibration.
func Calibration(b Bridge) api.HandlerFunc {
	return func(_ *api.Request, res *api.Response, _ *slog.Logger) error {
		return writeJSON(res, calibfile.FromCalibration(b.Calibration()))
	}
}
