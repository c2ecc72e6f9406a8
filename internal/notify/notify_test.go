package notify_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proxi-pad/proxi/internal/bridge"
	"github.com/proxi-pad/proxi/internal/notify"
)

type recorder struct{ texts []string }

func (r *recorder) Notify(_, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func TestStateHook(t *testing.T) {
	r := &recorder{}
	hook := notify.StateHook(r, slog.New(slog.DiscardHandler))

	hook(bridge.StateIdle, bridge.StateAttached)
	assert.Empty(t, r.texts)

	hook(bridge.StateAttached, bridge.StateReconnecting)
	hook(bridge.StateReconnecting, bridge.StateAttached)
	hook(bridge.StateAttached, bridge.StateStopped)

	assert.Equal(t, []string{
		"Pro Controller disconnected, waiting for it to come back",
		"Pro Controller reconnected",
	}, r.texts)
}

func TestNop(t *testing.T) {
	var n notify.Notifier = notify.Nop{}
	assert.NoError(t, n.Notify("a", "b"))
}
