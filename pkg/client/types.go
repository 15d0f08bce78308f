package client

import "time"

// ComponentStatus mirrors the agent's per-component status JSON.
type ComponentStatus struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	State    string        `json:"state"`
	Running  bool          `json:"running"`
	PID      int           `json:"pid,omitempty"`
	Uptime   time.Duration `json:"uptime,omitempty"`
	Restarts int           `json:"restarts"`
}

// RelayStats mirrors the relay delivery statistics JSON.
type RelayStats struct {
	LastTelemetryAt time.Time `json:"last_telemetry_at"`
	TelemetryOK     bool      `json:"telemetry_ok"`
	ImagesSent      int       `json:"images_sent"`
	ImagesShed      int       `json:"images_shed"`
	QueueDepth      int       `json:"queue_depth"`
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	Components []ComponentStatus `json:"components"`
	Relay      *RelayStats       `json:"relay,omitempty"`
}

// Event is one persisted component lifecycle event.
type Event struct {
	ID        int64     `json:"id"`
	Component string    `json:"component"`
	PID       int       `json:"pid"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
