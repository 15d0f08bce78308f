package proximity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proximity.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadWellFormedSnapshot(t *testing.T) {
	path := writeSnapshot(t, `{"sectors_cm":[50,200,300,400,500,600,700,800],"min_cm":50,"timestamp":1000,"messages_sent":42}`)
	s, ok := Read(path)
	require.True(t, ok)
	assert.Equal(t, []float64{50, 200, 300, 400, 500, 600, 700, 800}, s.SectorsCM)
	require.NotNil(t, s.MinCM)
	assert.Equal(t, 50, *s.MinCM)
	assert.Equal(t, float64(1000), s.Timestamp)
	assert.Equal(t, 42, s.MessagesSent)
}

func TestReadNullMinimum(t *testing.T) {
	path := writeSnapshot(t, `{"sectors_cm":[2500,2500],"min_cm":null,"timestamp":5,"messages_sent":0}`)
	s, ok := Read(path)
	require.True(t, ok)
	assert.Nil(t, s.MinCM)
}

func TestReadMissingFile(t *testing.T) {
	_, ok := Read(filepath.Join(t.TempDir(), "nope.json"))
	assert.False(t, ok)
}

func TestReadMalformedJSON(t *testing.T) {
	// a truncated write must read as "no update"
	path := writeSnapshot(t, `{"sectors_cm":[50,200`)
	_, ok := Read(path)
	assert.False(t, ok)
}

func TestReadEmptySectorsRejected(t *testing.T) {
	path := writeSnapshot(t, `{"sectors_cm":[],"timestamp":1}`)
	_, ok := Read(path)
	assert.False(t, ok)
}

func TestAge(t *testing.T) {
	s := Snapshot{Timestamp: 1000}
	now := time.Unix(1004, 500e6)
	assert.InDelta(t, 4.5, s.Age(now).Seconds(), 0.001)
}
