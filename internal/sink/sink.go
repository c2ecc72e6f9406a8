// Package sink presents the virtual Xbox 360 pad the bridge feeds.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/proxi-pad/proxi/device/xbox360"
)

// ErrUnsupported is returned when a sink kind is not available on this
// platform.
var ErrUnsupported = errors.New("sink not supported on this platform")

// Sink receives XInput states and reports rumble requests from the host.
type Sink interface {
	Name() string
	Update(ctx context.Context, st xbox360.InputState) error
	// Rumble delivers motor requests. The channel is closed on Close.
	Rumble() <-chan xbox360.XRumbleState
	Close() error
}

// Kinds.
const (
	KindAuto   = "auto"
	KindViGEm  = "vigem"
	KindVIIPER = "viiper"
)

// Resolve maps KindAuto to the backend native to this platform.
func Resolve(kind string) string {
	if kind != KindAuto && kind != "" {
		return kind
	}
	if runtime.GOOS == "windows" {
		return KindViGEm
	}
	return KindVIIPER
}

// Config selects and configures the sink.
type Config struct {
	Kind   string       `name:"sink" help:"Virtual pad backend: vigem (Windows, ViGEmBus), viiper (VIIPER USB-IP server) or auto" default:"auto" enum:"auto,vigem,viiper" env:"PROXI_SINK"`
	VIIPER ViiperConfig `embed:"" prefix:"viiper."`
}

// Open connects the configured sink.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Sink, error) {
	switch Resolve(cfg.Kind) {
	case KindViGEm:
		return OpenViGEm(logger)
	case KindVIIPER:
		return OpenViiper(ctx, cfg.VIIPER, logger)
	}
	return nil, fmt.Errorf("unknown sink %q", cfg.Kind)
}

// pushRumble delivers r, replacing a pending value when the reader is slow.
func pushRumble(ch chan xbox360.XRumbleState, r xbox360.XRumbleState) {
	for {
		select {
		case ch <- r:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
