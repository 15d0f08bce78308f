// Package relay ships telemetry and images to the remote dashboard. It is
// the only component that crosses the network boundary, and it never lets
// that boundary's failures reach the loops feeding it: a failed send is
// skipped and the next fixed-period tick tries fresh.
package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/harry0537/AstraBackup-sub001/internal/images"
	"github.com/harry0537/AstraBackup-sub001/internal/metrics"
	"github.com/harry0537/AstraBackup-sub001/internal/proximity"
	"github.com/harry0537/AstraBackup-sub001/internal/telemetry"
)

// Wire timeouts. Telemetry is freshness-preferring and cheap; images are
// big and allowed longer on the wire.
const (
	telemetryTimeout = 2 * time.Second
	imageTimeout     = 10 * time.Second
)

// Options configures an Uplink.
type Options struct {
	BaseURL        string
	SnapshotPath   string
	SnapshotStale  time.Duration // snapshots older than this are not merged
	TelemetryEvery time.Duration
	ImageEvery     time.Duration
	ImageStale     time.Duration
	Logger         *slog.Logger
}

// Stats is a point-in-time view of delivery outcomes for status display.
type Stats struct {
	LastTelemetryAt time.Time `json:"last_telemetry_at"`
	TelemetryOK     bool      `json:"telemetry_ok"`
	ImagesSent      int       `json:"images_sent"`
	ImagesShed      int       `json:"images_shed"`
	QueueDepth      int       `json:"queue_depth"`
}

// Uplink owns the two send loops.
type Uplink struct {
	opts  Options
	store *telemetry.Store
	queue *images.Queue
	log   *slog.Logger

	telemetryClient *http.Client
	imageClient     *http.Client

	mu    sync.Mutex
	stats Stats
}

func NewUplink(opts Options, store *telemetry.Store, queue *images.Queue) *Uplink {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Uplink{
		opts:            opts,
		store:           store,
		queue:           queue,
		log:             opts.Logger,
		telemetryClient: &http.Client{Timeout: telemetryTimeout},
		imageClient:     &http.Client{Timeout: imageTimeout},
	}
}

// Run drives both send loops until ctx is canceled.
func (u *Uplink) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); u.runTelemetry(ctx) }()
	go func() { defer wg.Done(); u.runImages(ctx) }()
	wg.Wait()
}

// Snapshot returns current delivery stats.
func (u *Uplink) Snapshot() Stats {
	u.mu.Lock()
	s := u.stats
	u.mu.Unlock()
	s.QueueDepth = u.queue.Len()
	return s
}

func (u *Uplink) runTelemetry(ctx context.Context) {
	t := time.NewTicker(u.opts.TelemetryEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			u.sendTelemetryOnce(time.Now())
		}
	}
}

// sendTelemetryOnce merges the freshest proximity snapshot into the record
// and posts the current state. No retry queue: a miss just means the next
// tick sends fresher data.
func (u *Uplink) sendTelemetryOnce(now time.Time) {
	snap, ok := proximity.Read(u.opts.SnapshotPath)
	if ok && u.opts.SnapshotStale > 0 && snap.Age(now) > u.opts.SnapshotStale {
		ok = false
	}
	if ok {
		u.store.MergeProximity(snap)
		metrics.IncProximityMerge(true)
	} else {
		metrics.IncProximityMerge(false)
	}

	rec := u.store.Snapshot(now)
	err := u.postJSON(u.telemetryClient, u.opts.BaseURL+"/telemetry", rec)
	sent := err == nil
	metrics.IncRelayPost("telemetry", sent)
	u.mu.Lock()
	u.stats.LastTelemetryAt = now
	u.stats.TelemetryOK = sent
	u.mu.Unlock()
	if err != nil {
		u.log.Debug("telemetry post skipped", "err", err)
	}
}

func (u *Uplink) runImages(ctx context.Context) {
	t := time.NewTicker(u.opts.ImageEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			u.sendImageOnce(time.Now())
		}
	}
}

// sendImageOnce sheds stale tasks from the head of the queue, then sends
// at most one fresh image. A failed send leaves the task queued for the
// next cycle, still subject to the staleness rule.
func (u *Uplink) sendImageOnce(now time.Time) {
	for {
		task, ok := u.queue.Pop()
		if !ok {
			return
		}
		if task.Age(now) > u.opts.ImageStale {
			metrics.IncImageShed()
			u.mu.Lock()
			u.stats.ImagesShed++
			u.mu.Unlock()
			u.log.Info("discarding stale image", "path", task.Path, "age", task.Age(now))
			continue
		}

		jpegBytes, err := images.Compress(task.Path)
		if err != nil {
			// unreadable capture is not worth retrying
			u.log.Warn("dropping unreadable image", "path", task.Path, "err", err)
			metrics.IncRelayPost("image", false)
			return
		}

		payload := imagePayload{
			Timestamp: now.Format(time.RFC3339Nano),
			Type:      task.Trigger,
			Image:     base64.StdEncoding.EncodeToString(jpegBytes),
			Telemetry: u.store.Snapshot(now),
		}
		if err := u.postJSON(u.imageClient, u.opts.BaseURL+"/image", payload); err != nil {
			metrics.IncRelayPost("image", false)
			u.queue.Requeue(task)
			u.log.Debug("image post failed, keeping task", "path", task.Path, "err", err)
			return
		}
		metrics.IncRelayPost("image", true)
		u.mu.Lock()
		u.stats.ImagesSent++
		u.mu.Unlock()
		u.log.Info("image relayed", "path", task.Path, "trigger", task.Trigger)
		return
	}
}

type imagePayload struct {
	Timestamp string           `json:"timestamp"`
	Type      string           `json:"type"`
	Image     string           `json:"image"`
	Telemetry telemetry.Record `json:"telemetry"`
}

func (u *Uplink) postJSON(client *http.Client, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay: %s returned %d", url, resp.StatusCode)
	}
	return nil
}
