// Package telemetry owns the single mutable telemetry record shared by the
// link-reader, proximity-merge, and relay loops within the relay process.
package telemetry

// Status values reported to the dashboard.
const (
	StatusInitializing = "INITIALIZING"
	StatusOperational  = "OPERATIONAL"
	StatusDemo         = "DEMO"
)

type GPS struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
	Fix int     `json:"fix"`
}

type AttitudeAngles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type Battery struct {
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Remaining int     `json:"remaining"`
}

// ProximityData is the merged view of the external sector snapshot.
type ProximityData struct {
	SectorsCM []float64 `json:"sectors_cm,omitempty"`
	MinCM     *int      `json:"min_cm,omitempty"`
	Timestamp float64   `json:"timestamp,omitempty"`
}

// Record is the wire shape POSTed to the dashboard. Every field always
// holds the last-known value; stale data is still data.
type Record struct {
	Timestamp string         `json:"timestamp"`
	GPS       GPS            `json:"gps"`
	Attitude  AttitudeAngles `json:"attitude"`
	Battery   Battery        `json:"battery"`
	Proximity ProximityData  `json:"proximity"`
	Status    string         `json:"status"`
}
