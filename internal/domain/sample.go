// Package domain holds the core value types shared between the acquisition
// loop, the safety monitor, and the collaborator surfaces.
package domain

import "time"

// Sample is one complete acquisition cycle: the scaled process variables read
// from the controller plus the hydraulic metrics derived from them. A Sample
// is immutable once produced; margin = AvailableHead - RequiredHead and the
// condition is safe iff margin >= 0.
type Sample struct {
	Timestamp      time.Time `json:"timestamp"`
	TemperatureC   float64   `json:"temperature_c"`
	PressureBar    float64   `json:"pressure_bar"`
	FlowM3h        float64   `json:"flow_m3h"`
	StaticHeadM    float64   `json:"static_head_m"`
	FrictionLossM  float64   `json:"friction_loss_m"`
	AvailableHeadM float64   `json:"available_head_m"`
	RequiredHeadM  float64   `json:"required_head_m"`
	MarginM        float64   `json:"margin_m"`
	PumpRunning    bool      `json:"pump_running"`
}

// Safe reports whether the sample shows a non-negative NPSH margin.
func (s Sample) Safe() bool {
	return s.MarginM >= 0
}
