package images

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue(4)
	q.Push(Task{Path: "a"})
	q.Push(Task{Path: "b"})

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", first.Path)
	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", second.Path)
	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueEvictsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Push(Task{Path: "a"})
	q.Push(Task{Path: "b"})
	q.Push(Task{Path: "c"})

	assert.Equal(t, 2, q.Len())
	first, _ := q.Pop()
	assert.Equal(t, "b", first.Path, "oldest entry must have been evicted")
}

func TestQueueRequeuePreservesOrder(t *testing.T) {
	q := NewQueue(4)
	q.Push(Task{Path: "a"})
	q.Push(Task{Path: "b"})

	task, _ := q.Pop()
	q.Requeue(task)

	next, _ := q.Pop()
	assert.Equal(t, "a", next.Path)
}

func TestTaskAge(t *testing.T) {
	ts := time.Now().Add(-2 * time.Minute)
	task := Task{Timestamp: ts}
	assert.InDelta(t, 120, task.Age(time.Now()).Seconds(), 1)
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestCompressClampsLargeImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.jpg")
	writeJPEG(t, path, 2048, 1536)

	out, err := Compress(path)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, maxWidth)
	assert.LessOrEqual(t, cfg.Height, maxHeight)
}

func TestCompressKeepsSmallImagesUnscaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.jpg")
	writeJPEG(t, path, 320, 240)

	out, err := Compress(path)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestCompressMissingFile(t *testing.T) {
	_, err := Compress(filepath.Join(t.TempDir(), "gone.jpg"))
	assert.Error(t, err)
}

func TestWatcherEnqueuesNewJPEGs(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(8)
	w := NewWatcher(dir, q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the watch register

	writeJPEG(t, filepath.Join(dir, "capture_001.jpg"), 8, 8)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.Len() >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, q.Len(), "exactly the jpeg should be queued")
	task, _ := q.Pop()
	assert.Equal(t, filepath.Join(dir, "capture_001.jpg"), task.Path)
	assert.Equal(t, TriggerScheduled, task.Trigger)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherIgnoresFilesRenamedAway(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	q := NewQueue(8)
	w := NewWatcher(dir, q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the watch register

	src := filepath.Join(dir, "capture_002.jpg")
	writeJPEG(t, src, 8, 8)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && q.Len() < 1 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, q.Len())

	// moving the file away must not queue its now-dead old path
	require.NoError(t, os.Rename(src, filepath.Join(outside, "capture_002.jpg")))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, q.Len())

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), NewQueue(1), nil)
	err := w.Run(context.Background())
	assert.Error(t, err)
}
