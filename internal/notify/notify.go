// Package notify shows desktop notifications for controller events.
package notify

import (
	"log/slog"

	"github.com/ncruces/zenity"

	"github.com/proxi-pad/proxi/internal/bridge"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(title, text string) error
}

// Desktop uses the platform notification service.
type Desktop struct{}

func (Desktop) Notify(title, text string) error {
	return zenity.Notify(text, zenity.Title(title), zenity.InfoIcon)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }

// StateHook returns a bridge state hook that tells the user when the
// controller drops out and when it comes back.
func StateHook(n Notifier, logger *slog.Logger) func(from, to string) {
	return func(from, to string) {
		var text string
		switch {
		case to == bridge.StateReconnecting:
			text = "Pro Controller disconnected, waiting for it to come back"
		case from == bridge.StateReconnecting && to == bridge.StateAttached:
			text = "Pro Controller reconnected"
		default:
			return
		}
		if err := n.Notify("PROXI", text); err != nil {
			logger.Debug("Notification failed", "error", err)
		}
	}
}
