// Package metrics exposes bridge counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxi_reports_total",
		Help: "Input reports read from the controller by outcome",
	}, []string{"result"})

	SinkUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxi_sink_updates_total",
		Help: "XInput states written to the virtual pad",
	}, []string{"sink", "result"})

	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxi_reconnects_total",
		Help: "Controller reconnect attempts by outcome",
	}, []string{"result"})

	RumbleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxi_rumble_requests_total",
		Help: "Rumble requests received from the host",
	})

	ControllerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxi_controller_up",
		Help: "1 while a controller is attached and streaming",
	})

	Battery = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proxi_controller_battery_level",
		Help: "Controller battery level (0 empty to 8 full)",
	})
)

// Report outcomes.
const (
	ResultOK       = "ok"
	ResultDropped  = "dropped"
	ResultError    = "error"
	ResultTimeout  = "timeout"
	ResultFailed   = "failed"
	ResultAttached = "attached"
)

// IncReport records one read outcome.
func IncReport(result string) {
	ReportsTotal.WithLabelValues(result).Inc()
}

// IncSinkUpdate records one write to the virtual pad.
func IncSinkUpdate(sink string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	SinkUpdatesTotal.WithLabelValues(sink, result).Inc()
}

// IncReconnect records one reconnect attempt.
func IncReconnect(err error) {
	result := ResultAttached
	if err != nil {
		result = ResultFailed
	}
	ReconnectsTotal.WithLabelValues(result).Inc()
}

// SetControllerUp flips the attachment gauge.
func SetControllerUp(up bool) {
	if up {
		ControllerUp.Set(1)
		return
	}
	ControllerUp.Set(0)
}
