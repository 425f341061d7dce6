package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shiftlights"

// Metrics holds the collectors shared by the telemetry clients and the indicator.
type Metrics struct {
	// per client, labelled by client name
	DatagramsReceived *prometheus.CounterVec
	DecodeErrors      *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	SendErrors        *prometheus.CounterVec

	DeviceWrites      prometheus.Counter
	DeviceWriteErrors prometheus.Counter
	RPM               prometheus.Gauge
	PeakRPM           prometheus.Gauge
	LEDMask           prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total number of telemetry datagrams received",
		}, []string{"client"}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of datagrams discarded because they could not be decoded",
		}, []string{"client"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_reconnects_total",
			Help:      "Total number of reconnects forced by the silence watchdog",
		}, []string{"client"}),
		SendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total number of datagrams that failed to send",
		}, []string{"client"}),
		DeviceWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_writes_total",
			Help:      "Total number of LED commands written to the device",
		}),
		DeviceWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_write_errors_total",
			Help:      "Total number of LED commands that failed to write",
		}),
		RPM: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpm",
			Help:      "Most recently received engine RPM",
		}),
		PeakRPM: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_rpm",
			Help:      "Peak RPM used as the indicator baseline",
		}),
		LEDMask: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "led_mask",
			Help:      "Most recently computed LED mask",
		}),
	}
}
