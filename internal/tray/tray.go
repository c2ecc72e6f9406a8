// Package tray shows PROXI in the system tray with live controller status.
package tray

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"fyne.io/systray"

	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/internal/bridge"
)

var (
	colorAttached = color.NRGBA{R: 0x2e, G: 0xb8, B: 0x5c, A: 0xff}
	colorWaiting  = color.NRGBA{R: 0xe6, G: 0xa2, B: 0x17, A: 0xff}
	colorStopped  = color.NRGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
)

// StatusFunc returns the current bridge status.
type StatusFunc func() apitypes.StatusResponse

// Run shows the tray icon until ctx is done or the user picks Quit, in which
// case quit is called. It must run on the main goroutine.
func Run(ctx context.Context, status StatusFunc, quit func(), logger *slog.Logger) {
	onReady := func() {
		systray.SetTitle("PROXI")
		setIcon(StateColor(bridge.StateIdle), logger)

		mState := systray.AddMenuItem("Starting", "Controller state")
		mState.Disable()
		mBattery := systray.AddMenuItem("Battery: unknown", "Controller battery")
		mBattery.Disable()
		systray.AddSeparator()
		mQuit := systray.AddMenuItem("Quit", "Stop PROXI")

		go func() {
			t := time.NewTicker(time.Second)
			defer t.Stop()
			last := ""
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return
				case <-mQuit.ClickedCh:
					quit()
					systray.Quit()
					return
				case <-t.C:
					st := status()
					mState.SetTitle(StateLabel(st))
					mBattery.SetTitle(BatteryLabel(st))
					systray.SetTooltip("PROXI: " + StateLabel(st))
					if st.State != last {
						setIcon(StateColor(st.State), logger)
						last = st.State
					}
				}
			}
		}()
	}
	systray.Run(onReady, func() {})
}

func setIcon(c color.Color, logger *slog.Logger) {
	icon, err := Icon(c)
	if err != nil {
		logger.Warn("Tray icon render failed", "error", err)
		return
	}
	systray.SetIcon(icon)
}

// StateColor picks the icon color for a bridge state.
func StateColor(state string) color.Color {
	switch state {
	case bridge.StateAttached:
		return colorAttached
	case bridge.StateReconnecting, bridge.StateIdle:
		return colorWaiting
	}
	return colorStopped
}

// StateLabel is the menu text for the controller state.
func StateLabel(st apitypes.StatusResponse) string {
	switch st.State {
	case bridge.StateAttached:
		return fmt.Sprintf("Forwarding to %s", st.Sink)
	case bridge.StateReconnecting:
		return "Waiting for controller"
	case bridge.StateStopped:
		return "Stopped"
	}
	return "Starting"
}

// BatteryLabel is the menu text for the battery level.
func BatteryLabel(st apitypes.StatusResponse) string {
	if st.State != bridge.StateAttached {
		return "Battery: unknown"
	}
	label := fmt.Sprintf("Battery: %d%%", int(st.Battery)*100/8)
	if st.Charging {
		label += " (charging)"
	}
	return label
}
