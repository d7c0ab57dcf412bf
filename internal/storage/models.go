package storage

import "time"

// SafetyEventRecord is one row of the safety audit trail.
type SafetyEventRecord struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	MarginM   float64   `json:"margin_m"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
