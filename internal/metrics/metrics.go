// Package metrics exposes Prometheus collectors for the node agent.
// Helpers no-op until Register has been called so library use without
// metrics stays silent.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	componentStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "starts_total",
			Help:      "Number of successful component launches.",
		}, []string{"name"},
	)
	componentStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "stops_total",
			Help:      "Number of observed component exits (graceful or crash).",
		}, []string{"name"},
	)
	componentRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "restarts_total",
			Help:      "Number of automatic restarts of critical components.",
		}, []string{"name"},
	)
	componentRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "running",
			Help:      "Whether the component is currently running (1) or not (0).",
		}, []string{"name"},
	)
	relayPosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "relay",
			Name:      "posts_total",
			Help:      "Dashboard POST attempts by kind (telemetry/image) and outcome.",
		}, []string{"kind", "outcome"},
	)
	imagesShed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "relay",
			Name:      "images_shed_total",
			Help:      "Image tasks discarded unsent because they went stale.",
		},
	)
	linkMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "link",
			Name:      "messages_total",
			Help:      "Decoded control-link messages by type.",
		}, []string{"type"},
	)
	proximityMerges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astra",
			Subsystem: "proximity",
			Name:      "merges_total",
			Help:      "Proximity snapshot merge attempts by outcome (ok/skipped).",
		}, []string{"outcome"},
	)
)

// Register registers all agent collectors with r. Safe to call more than
// once, including against different registries; an already-registered
// collector is not an error.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		componentStarts, componentStops, componentRestarts, componentRunning,
		componentCPU, componentMemMB, componentThreads,
		relayPosts, imagesShed, linkMessages, proximityMerges,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default Prometheus gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncComponentStart(name string) {
	if regOK.Load() {
		componentStarts.WithLabelValues(name).Inc()
	}
}

func IncComponentStop(name string) {
	if regOK.Load() {
		componentStops.WithLabelValues(name).Inc()
	}
}

func IncComponentRestart(name string) {
	if regOK.Load() {
		componentRestarts.WithLabelValues(name).Inc()
	}
}

func SetComponentRunning(name string, running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1.0
		}
		componentRunning.WithLabelValues(name).Set(v)
	}
}

func IncRelayPost(kind string, ok bool) {
	if regOK.Load() {
		relayPosts.WithLabelValues(kind, outcome(ok)).Inc()
	}
}

func IncImageShed() {
	if regOK.Load() {
		imagesShed.Inc()
	}
}

func IncLinkMessage(msgType string) {
	if regOK.Load() {
		linkMessages.WithLabelValues(msgType).Inc()
	}
}

func IncProximityMerge(ok bool) {
	if regOK.Load() {
		if ok {
			proximityMerges.WithLabelValues("ok").Inc()
		} else {
			proximityMerges.WithLabelValues("skipped").Inc()
		}
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
