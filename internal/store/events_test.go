package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, db.RecordEvent(ctx, "bridge", 101, "start", ""))
	require.NoError(t, db.RecordEvent(ctx, "bridge", 101, "crash", "exit status 1"))
	require.NoError(t, db.RecordEvent(ctx, "vision", 102, "start", ""))

	events, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// newest first
	assert.Equal(t, "vision", events[0].Component)
	assert.Equal(t, "crash", events[1].Event)
	assert.Equal(t, "exit status 1", events[1].Detail)
	assert.Equal(t, 101, events[1].PID)

	limited, err := db.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestComponentEvents(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, db.RecordEvent(ctx, "bridge", 1, "start", ""))
	require.NoError(t, db.RecordEvent(ctx, "relay", 2, "start", ""))
	require.NoError(t, db.RecordEvent(ctx, "bridge", 1, "stop", ""))

	events, err := db.ComponentEvents(ctx, "bridge", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "bridge", e.Component)
	}
	assert.Equal(t, "stop", events[0].Event)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordEvent(context.Background(), "bridge", 7, "start", ""))
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
	events, err := db2.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "bridge", events[0].Component)
}

func TestPrune(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, db.RecordEvent(ctx, "bridge", 1, "start", ""))

	// nothing is older than an hour yet
	n, err := db.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// everything is older than a negative horizon
	n, err = db.Prune(ctx, -time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	events, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
