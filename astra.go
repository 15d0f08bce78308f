// Package astra is the field agent that keeps a rover node alive: it
// supervises the component processes (hardware bridges, vision server,
// data relay) and relays telemetry and imagery from the vehicle link up
// to the fleet dashboard.
//
// The package is a thin facade over the internal packages so the agent
// can be embedded; the provided CLI under cmd/astra covers normal fleet
// deployments.
package astra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harry0537/AstraBackup-sub001/internal/config"
	"github.com/harry0537/AstraBackup-sub001/internal/images"
	"github.com/harry0537/AstraBackup-sub001/internal/link"
	"github.com/harry0537/AstraBackup-sub001/internal/logger"
	"github.com/harry0537/AstraBackup-sub001/internal/metrics"
	"github.com/harry0537/AstraBackup-sub001/internal/ports"
	"github.com/harry0537/AstraBackup-sub001/internal/relay"
	"github.com/harry0537/AstraBackup-sub001/internal/server"
	"github.com/harry0537/AstraBackup-sub001/internal/store"
	"github.com/harry0537/AstraBackup-sub001/internal/supervisor"
	"github.com/harry0537/AstraBackup-sub001/internal/telemetry"
)

// Re-exports for embedding consumers.

type Config = config.Config

type ComponentStatus = supervisor.Status

// ErrCriticalStart reports that a critical component failed to come up.
var ErrCriticalStart = supervisor.ErrCriticalStart

// LoadConfig reads the agent configuration. An empty path loads defaults
// plus ASTRA_* environment overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// SetupLogging installs the agent's slog default and returns it.
func SetupLogging(cfg Config) *slog.Logger {
	return logger.Setup(cfg.LogLevel, true)
}

// RegisterMetrics registers the agent collectors on the default registry.
func RegisterMetrics() error { return metrics.Register(prometheus.DefaultRegisterer) }

const linkHandshakeTimeout = 5 * time.Second

// Node is the supervision side of the agent: component processes, event
// log, and the local status API.
type Node struct {
	cfg config.Config
	log *slog.Logger

	sup    *supervisor.Supervisor
	events *store.DB
	srv    *http.Server
}

// NewNode wires a node from configuration. The event store is optional;
// a node without one simply serves no history.
func NewNode(cfg Config, log *slog.Logger) (*Node, error) {
	if log == nil {
		log = slog.Default()
	}
	n := &Node{cfg: cfg, log: log}

	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		n.events = db
	}

	specs := make([]supervisor.Spec, 0, len(cfg.Components))
	for _, c := range cfg.Components {
		specs = append(specs, supervisor.Spec{
			ID:           c.ID,
			Name:         c.Name,
			Command:      c.Command,
			Critical:     c.Critical,
			Enabled:      c.Enabled,
			StartupDelay: c.StartupDelay,
			HealthFile:   c.HealthFile,
			Env:          c.Env,
		})
	}
	opts := supervisor.Options{
		RestartLimit: cfg.Supervisor.RestartLimit,
		PollEvery:    cfg.Supervisor.PollEvery,
		LaunchDelay:  cfg.Supervisor.LaunchDelay,
		StopGrace:    cfg.Supervisor.StopGrace,
		GlobalEnv:    cfg.GlobalEnv,
		Logger:       log,
	}
	if n.events != nil {
		opts.Recorder = n.events
	}
	n.sup = supervisor.New(specs, cfg.Log, opts)
	return n, nil
}

// Run starts the supervised components and the local API, then blocks
// until ctx is cancelled or a critical component fails to start.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	router := &server.Router{
		Components: n.sup,
		Events:     n.events,
		Shutdown:   cancel,
	}
	n.srv = server.NewServer(n.cfg.Server.Listen, router)
	defer n.close()

	sampler := metrics.NewResourceSampler(func() map[string]int {
		out := make(map[string]int)
		for _, st := range n.sup.StatusSnapshot() {
			if st.Running && st.PID > 0 {
				out[st.Name] = st.PID
			}
		}
		return out
	}, 10*time.Second, n.log)
	go sampler.Run(ctx)

	err := n.sup.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Status returns the current component states.
func (n *Node) Status() []ComponentStatus { return n.sup.StatusSnapshot() }

func (n *Node) close() {
	if n.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = n.srv.Shutdown(shutdownCtx)
		cancel()
	}
	if n.events != nil {
		_ = n.events.Close()
	}
}

// RelayNode is the data side of the agent: vehicle link ingest, telemetry
// aggregation, proximity merge, image queue, and the dashboard uplink.
// It is normally run as a supervised component of a Node.
type RelayNode struct {
	cfg  config.Config
	log  *slog.Logger
	demo bool

	link   *link.Link
	store  *telemetry.Store
	queue  *images.Queue
	uplink *relay.Uplink
	srv    *http.Server
}

// NewRelayNode wires the relay pipeline. With demo set, or when no
// flight controller responds on any candidate port, the relay runs
// without a vehicle link and reports DEMO status.
func NewRelayNode(cfg Config, demo bool, log *slog.Logger) *RelayNode {
	if log == nil {
		log = slog.Default()
	}
	r := &RelayNode{cfg: cfg, log: log, demo: demo}
	r.store = telemetry.NewStore()
	r.queue = images.NewQueue(cfg.Images.QueueCap)
	r.uplink = relay.NewUplink(relay.Options{
		BaseURL:        cfg.Dashboard.BaseURL(),
		SnapshotPath:   cfg.Proximity.Snapshot,
		SnapshotStale:  cfg.Proximity.StaleAfter,
		TelemetryEvery: cfg.Relay.TelemetryEvery,
		ImageEvery:     cfg.Relay.ImageEvery,
		ImageStale:     cfg.Relay.ImageStale,
		Logger:         log,
	}, r.store, r.queue)
	return r
}

// Run connects the vehicle link and drives the pipeline until ctx is
// cancelled.
func (r *RelayNode) Run(ctx context.Context) error {
	var src telemetry.LinkSource
	if !r.demo {
		role := ports.FlightController(r.cfg.Link.Port)
		l, err := link.Dial(role.Candidates(), r.cfg.Link.Baud, linkHandshakeTimeout)
		if err != nil {
			r.log.Warn("no vehicle link, continuing in demo mode", "error", err)
		} else {
			r.link = l
			src = l
			defer func() { _ = l.Close() }()
		}
	}

	agg := telemetry.NewAggregator(r.store, src, r.log)

	router := &server.Router{
		Telemetry: r.store,
		Relay:     r.uplink,
		Queue:     r.queue,
	}
	r.srv = server.NewServer(r.cfg.Server.RelayListen, router)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = r.srv.Shutdown(shutdownCtx)
		cancel()
	}()

	watcher := images.NewWatcher(r.cfg.Images.Dir, r.queue, r.log)

	done := make(chan struct{})
	go func() { agg.Run(ctx); close(done) }()
	go func() {
		if err := watcher.Run(ctx); err != nil {
			r.log.Warn("image watcher stopped", "error", err)
		}
	}()
	r.uplink.Run(ctx)
	<-done
	return nil
}

// Stats returns the uplink delivery statistics.
func (r *RelayNode) Stats() relay.Stats { return r.uplink.Snapshot() }
