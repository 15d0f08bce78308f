// Package proximity reads the sector-distance snapshot file written by the
// proximity bridge process. The file is the only channel between the bridge
// and this agent; a missing, truncated, or malformed snapshot is treated as
// "no update", never as an error worth propagating.
package proximity

import (
	"encoding/json"
	"os"
	"time"
)

// Snapshot mirrors the bridge's JSON dump: eight sector distances in
// centimeters swept clockwise from dead ahead, the overall minimum, the
// write timestamp (unix seconds) and a cumulative message counter.
type Snapshot struct {
	SectorsCM    []float64 `json:"sectors_cm"`
	MinCM        *int      `json:"min_cm"`
	Timestamp    float64   `json:"timestamp"`
	MessagesSent int       `json:"messages_sent"`
}

// Age reports how old the snapshot is relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, int64(s.Timestamp*float64(time.Second))))
}

// Read loads the snapshot at path. The boolean is false whenever the file
// is absent or unparseable; the caller keeps its previous values.
func Read(path string) (Snapshot, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, false
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, false
	}
	if len(s.SectorsCM) == 0 {
		return Snapshot{}, false
	}
	return s, true
}
