package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/harry0537/AstraBackup-sub001/internal/env"
	"github.com/harry0537/AstraBackup-sub001/internal/logger"
	"github.com/harry0537/AstraBackup-sub001/internal/metrics"
)

// ErrCriticalStart reports that a critical component could not be brought
// up; the supervisor has already torn down whatever it had started.
var ErrCriticalStart = errors.New("supervisor: critical component failed to start")

// Options tune the supervisor's timing and bounds. The zero value is
// replaced by deployment defaults; tests shrink everything.
type Options struct {
	RestartLimit int           // auto-restarts per critical component
	PollEvery    time.Duration // liveness poll period
	LaunchDelay  time.Duration // pause between component launches
	Settle       time.Duration // how long a launch must survive to count as started
	StopGrace    time.Duration // SIGTERM to SIGKILL escalation window
	HealthWait   time.Duration // max wait for a component's health file
	GlobalEnv    []string      // "K=V" overrides applied to every component
	Logger       *slog.Logger
	Recorder     EventRecorder
}

// EventRecorder receives component lifecycle events, best-effort.
type EventRecorder interface {
	RecordEvent(ctx context.Context, component string, pid int, event string, detail string) error
}

func (o Options) withDefaults() Options {
	if o.RestartLimit <= 0 {
		o.RestartLimit = 3
	}
	if o.PollEvery <= 0 {
		o.PollEvery = 5 * time.Second
	}
	if o.LaunchDelay <= 0 {
		o.LaunchDelay = 2 * time.Second
	}
	if o.Settle <= 0 {
		o.Settle = 2 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.HealthWait <= 0 {
		o.HealthWait = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Supervisor owns the component registry and their process handles.
type Supervisor struct {
	opts   Options
	logCfg logger.Config
	comps  []*component // declared order
	log    *slog.Logger
	envSet *env.Env

	mu       sync.Mutex
	shutdown bool
}

func New(specs []Spec, logCfg logger.Config, opts Options) *Supervisor {
	opts = opts.withDefaults()
	s := &Supervisor{opts: opts, logCfg: logCfg, log: opts.Logger, envSet: env.New()}
	for _, kv := range opts.GlobalEnv {
		if i := strings.IndexByte(kv, '='); i > 0 {
			s.envSet.Set(kv[:i], kv[i+1:])
		}
	}
	for _, spec := range specs {
		s.comps = append(s.comps, newComponent(spec))
	}
	return s
}

// StartAll launches every enabled component in declared order, pausing
// between launches so components sharing a camera or bus don't race. A
// critical component failing to come up aborts the whole startup: the
// system never runs with a critical piece missing.
func (s *Supervisor) StartAll() error {
	for i, c := range s.comps {
		if !c.spec.Enabled {
			s.log.Info("component disabled, skipping", "name", c.spec.Name)
			continue
		}
		if err := s.launch(c); err != nil {
			if c.spec.Critical {
				s.log.Error("critical component failed to start, aborting", "name", c.spec.Name, "err", err)
				s.Shutdown()
				return fmt.Errorf("%w: %s: %v", ErrCriticalStart, c.spec.Name, err)
			}
			s.log.Warn("non-critical component failed to start", "name", c.spec.Name, "err", err)
			continue
		}
		s.log.Info("component started", "name", c.spec.Name)
		if i < len(s.comps)-1 {
			time.Sleep(s.opts.LaunchDelay)
		}
		if c.spec.StartupDelay > 0 {
			time.Sleep(c.spec.StartupDelay)
		}
		s.awaitHealthFile(c)
	}
	return nil
}

// launch starts one component process and verifies it survives the settle
// window. The reaper goroutine attached here is the only place that calls
// Wait on the process.
func (s *Supervisor) launch(c *component) error {
	cmd := c.spec.buildCommand()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = s.envSet.Merge(c.spec.Env)

	outW, errW := s.logCfg.Writers(c.spec.Name)
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
		return err
	}
	c.markStarted(cmd, outW, errW)
	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		c.markExited(err)
		metrics.IncComponentStop(c.spec.Name)
		metrics.SetComponentRunning(c.spec.Name, false)
		s.record(c, pid, "stop", errString(err))
	}()

	// A process that dies inside the settle window never really started.
	deadline := time.Now().Add(s.opts.Settle)
	for time.Now().Before(deadline) {
		if c.currentState() != StateRunning {
			return fmt.Errorf("exited during settle window: %v", c.exitError())
		}
		time.Sleep(20 * time.Millisecond)
	}
	metrics.IncComponentStart(c.spec.Name)
	metrics.SetComponentRunning(c.spec.Name, true)
	s.record(c, pid, "start", "")
	return nil
}

// awaitHealthFile blocks until the component's health file appears or the
// wait bound elapses. Absence is logged, not fatal; the component may just
// be slow and the poll loop will keep watching liveness.
func (s *Supervisor) awaitHealthFile(c *component) {
	if c.spec.HealthFile == "" {
		return
	}
	deadline := time.Now().Add(s.opts.HealthWait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(c.spec.HealthFile); err == nil {
			s.log.Info("component health check passed", "name", c.spec.Name)
			return
		}
		time.Sleep(s.opts.HealthWait / 10)
	}
	s.log.Warn("component health file never appeared", "name", c.spec.Name, "path", c.spec.HealthFile)
}

// Poll inspects every component once. A crashed critical component under
// the restart bound is relaunched with its counter bumped; a crashed
// non-critical component is left stopped and only reported.
func (s *Supervisor) Poll() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for _, c := range s.comps {
		if !c.spec.Enabled {
			continue
		}
		if c.currentState() != StateCrashed {
			continue
		}
		if !c.spec.Critical {
			s.log.Warn("component stopped", "name", c.spec.Name, "err", c.exitError())
			continue
		}
		if c.restartCount() >= s.opts.RestartLimit {
			s.log.Error("critical component exhausted restart budget", "name", c.spec.Name, "limit", s.opts.RestartLimit)
			continue
		}
		n := c.bumpRestarts()
		s.log.Warn("restarting critical component", "name", c.spec.Name, "attempt", n)
		metrics.IncComponentRestart(c.spec.Name)
		s.record(c, 0, "restart", fmt.Sprintf("attempt %d", n))
		if err := s.launch(c); err != nil {
			s.log.Error("restart failed", "name", c.spec.Name, "err", err)
		}
	}
}

// StatusSnapshot reports every declared component. Side-effect free.
func (s *Supervisor) StatusSnapshot() []Status {
	now := time.Now()
	out := make([]Status, 0, len(s.comps))
	for _, c := range s.comps {
		out = append(out, c.snapshot(now))
	}
	return out
}

// Shutdown stops all live components in reverse declared order, letting
// downstream consumers flush before their producers vanish. Idempotent
// and safe from a signal path.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	for i := len(s.comps) - 1; i >= 0; i-- {
		c := s.comps[i]
		if c.currentState() != StateRunning {
			continue
		}
		s.log.Info("stopping component", "name", c.spec.Name)
		c.stop(s.opts.StopGrace)
	}
}

// Run starts everything and polls until ctx is canceled, then shuts down.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.StartAll(); err != nil {
		return err
	}
	t := time.NewTicker(s.opts.PollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return nil
		case <-t.C:
			s.Poll()
		}
	}
}

func (s *Supervisor) record(c *component, pid int, event, detail string) {
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.RecordEvent(context.Background(), c.spec.Name, pid, event, detail); err != nil {
		s.log.Warn("event record failed", "component", c.spec.Name, "event", event, "error", err)
	}
}

func (c *component) exitError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
