package telemetry

import (
	"sync"
	"time"

	"github.com/harry0537/AstraBackup-sub001/internal/link"
	"github.com/harry0537/AstraBackup-sub001/internal/proximity"
)

// Store is the exclusively-locked owner of the telemetry record. All
// mutation goes through it; readers get value copies.
type Store struct {
	mu  sync.Mutex
	rec Record
}

func NewStore() *Store {
	return &Store{rec: Record{Status: StatusInitializing}}
}

// Apply updates the field subset corresponding to one link message.
// Applying the same message twice is idempotent; fields outside the
// message's subset are never touched.
func (s *Store) Apply(msg link.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m := msg.(type) {
	case link.GPSRawInt:
		s.rec.GPS = GPS{Lat: m.Lat, Lon: m.Lon, Alt: m.Alt, Fix: m.FixType}
	case link.Attitude:
		s.rec.Attitude = AttitudeAngles{Roll: m.Roll, Pitch: m.Pitch, Yaw: m.Yaw}
	case link.SysStatus:
		s.rec.Battery = Battery{Voltage: m.Voltage, Current: m.Current, Remaining: m.Remaining}
	}
}

// MergeProximity overwrites only the proximity field from an external
// snapshot. The merge is additive: GPS, attitude, and battery are left
// exactly as they were.
func (s *Store) MergeProximity(snap proximity.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Proximity = ProximityData{
		SectorsCM: append([]float64(nil), snap.SectorsCM...),
		MinCM:     snap.MinCM,
		Timestamp: snap.Timestamp,
	}
}

// SetStatus sets the operating status string.
func (s *Store) SetStatus(status string) {
	s.mu.Lock()
	s.rec.Status = status
	s.mu.Unlock()
}

// Snapshot stamps the record with now and returns a copy safe for
// serialization outside the lock.
func (s *Store) Snapshot(now time.Time) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rec
	rec.Timestamp = now.Format(time.RFC3339Nano)
	rec.Proximity.SectorsCM = append([]float64(nil), s.rec.Proximity.SectorsCM...)
	return rec
}
