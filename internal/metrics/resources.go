package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Resource gauges for supervised components. Populated by the sampler;
// absent components have their series removed rather than frozen.
var (
	componentCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "cpu_percent",
			Help:      "CPU usage of the component process in percent.",
		}, []string{"name"},
	)
	componentMemMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "memory_mb",
			Help:      "Resident memory of the component process in MiB.",
		}, []string{"name"},
	)
	componentThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "astra",
			Subsystem: "component",
			Name:      "threads",
			Help:      "Thread count of the component process.",
		}, []string{"name"},
	)
)

// PIDSource reports the currently running components as name to PID.
type PIDSource func() map[string]int

// ResourceSampler periodically samples CPU, memory, and thread counts of
// the supervised component processes.
type ResourceSampler struct {
	src    PIDSource
	every  time.Duration
	log    *slog.Logger
	known  map[string]struct{}
	handle map[int]*process.Process
}

// NewResourceSampler builds a sampler polling src at the given period.
func NewResourceSampler(src PIDSource, every time.Duration, log *slog.Logger) *ResourceSampler {
	if every <= 0 {
		every = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ResourceSampler{
		src:    src,
		every:  every,
		log:    log,
		known:  make(map[string]struct{}),
		handle: make(map[int]*process.Process),
	}
}

// Run samples until ctx is cancelled.
func (s *ResourceSampler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sampleOnce()
		}
	}
}

func (s *ResourceSampler) sampleOnce() {
	if !regOK.Load() {
		return
	}
	pids := s.src()
	live := make(map[int]struct{}, len(pids))
	for name, pid := range pids {
		live[pid] = struct{}{}
		p, ok := s.handle[pid]
		if !ok {
			var err error
			p, err = process.NewProcess(int32(pid))
			if err != nil {
				continue
			}
			s.handle[pid] = p
		}
		s.known[name] = struct{}{}
		// first CPUPercent call on a fresh handle reports 0; later calls
		// report usage since the previous sample
		if cpu, err := p.CPUPercent(); err == nil {
			componentCPU.WithLabelValues(name).Set(cpu)
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			componentMemMB.WithLabelValues(name).Set(float64(mem.RSS) / (1024 * 1024))
		}
		if th, err := p.NumThreads(); err == nil {
			componentThreads.WithLabelValues(name).Set(float64(th))
		}
	}
	for pid := range s.handle {
		if _, ok := live[pid]; !ok {
			delete(s.handle, pid)
		}
	}
	for name := range s.known {
		if _, ok := pids[name]; !ok {
			componentCPU.DeleteLabelValues(name)
			componentMemMB.DeleteLabelValues(name)
			componentThreads.DeleteLabelValues(name)
			delete(s.known, name)
		}
	}
}
