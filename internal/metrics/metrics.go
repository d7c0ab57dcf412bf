// Package metrics exposes the monitor's operational counters and live NPSH
// gauges via Prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set bundles every collector the daemon registers. A nil *Set disables
// instrumentation; callers guard their use sites.
type Set struct {
	CyclesTotal     prometheus.Counter
	CycleFailures   prometheus.Counter
	TransportErrors prometheus.Counter
	Reconnects      prometheus.Counter
	ProtectiveStops prometheus.Counter
	StopFailures    prometheus.Counter

	AvailableHead prometheus.Gauge
	RequiredHead  prometheus.Gauge
	Margin        prometheus.Gauge
	SafetyState   prometheus.Gauge
	Connected     prometheus.Gauge
}

// New builds and registers the collector set.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npshguard_acquisition_cycles_total",
			Help: "Completed acquisition cycles that produced a sample.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npshguard_acquisition_failures_total",
			Help: "Acquisition cycles aborted by a read or decode failure.",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npshguard_transport_errors_total",
			Help: "Socket-level field-bus failures.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npshguard_reconnects_total",
			Help: "Successful persistent-session reconnects.",
		}),
		ProtectiveStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npshguard_protective_stops_total",
			Help: "Protective stop commands issued on grace-period expiry.",
		}),
		StopFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "npshguard_protective_stop_failures_total",
			Help: "Protective stop commands that failed to deliver.",
		}),
		AvailableHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "npshguard_npsha_meters",
			Help: "Latest available suction head (NPSHa).",
		}),
		RequiredHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "npshguard_npshr_meters",
			Help: "Latest required suction head (NPSHr).",
		}),
		Margin: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "npshguard_margin_meters",
			Help: "Latest NPSH margin (NPSHa - NPSHr).",
		}),
		SafetyState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "npshguard_safety_state",
			Help: "Safety monitor state (0=safe 1=at_risk 2=stopping 3=stopped 4=connection_lost).",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "npshguard_fieldbus_connected",
			Help: "1 while the persistent field-bus session is connected.",
		}),
	}

	reg.MustRegister(
		s.CyclesTotal, s.CycleFailures, s.TransportErrors, s.Reconnects,
		s.ProtectiveStops, s.StopFailures,
		s.AvailableHead, s.RequiredHead, s.Margin, s.SafetyState, s.Connected,
	)
	return s
}
