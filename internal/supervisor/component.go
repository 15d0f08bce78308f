package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the per-component lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateCrashed  State = "crashed"
)

// component is the supervisor-owned handle for one launched process.
// All mutation happens under mu; the wait goroutine is the only reaper.
type component struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	startedAt time.Time
	restarts  int
	stopping  bool
	exitErr   error
	waitDone  chan struct{}
	outW      io.WriteCloser
	errW      io.WriteCloser
}

// Status is the externally visible snapshot of one component.
type Status struct {
	ID       int           `json:"id"`
	Name     string        `json:"name"`
	State    State         `json:"state"`
	Running  bool          `json:"running"`
	PID      int           `json:"pid,omitempty"`
	Uptime   time.Duration `json:"uptime,omitempty"`
	Restarts int           `json:"restarts"`
}

func newComponent(spec Spec) *component {
	return &component{spec: spec, state: StateStopped}
}

func (c *component) snapshot(now time.Time) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		ID:       c.spec.ID,
		Name:     c.spec.Name,
		State:    c.state,
		Running:  c.state == StateRunning,
		Restarts: c.restarts,
	}
	if c.state == StateRunning && c.cmd != nil && c.cmd.Process != nil {
		st.PID = c.cmd.Process.Pid
		st.Uptime = now.Sub(c.startedAt).Truncate(time.Second)
	}
	return st
}

func (c *component) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *component) restartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

// markStarted records a successful launch. The wait goroutine owns the
// returned channel and closes it when the process is reaped.
func (c *component) markStarted(cmd *exec.Cmd, outW, errW io.WriteCloser) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmd = cmd
	c.state = StateRunning
	c.startedAt = time.Now()
	c.stopping = false
	c.exitErr = nil
	c.outW = outW
	c.errW = errW
	c.waitDone = make(chan struct{})
	return c.waitDone
}

// markExited transitions to CRASHED (or STOPPED when a stop was requested)
// and closes the capture writers.
func (c *component) markExited(err error) {
	c.mu.Lock()
	if c.stopping {
		c.state = StateStopped
	} else {
		c.state = StateCrashed
	}
	c.exitErr = err
	if c.waitDone != nil {
		close(c.waitDone)
		c.waitDone = nil
	}
	outW, errW := c.outW, c.errW
	c.outW, c.errW = nil, nil
	c.mu.Unlock()
	if outW != nil {
		_ = outW.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

// stop terminates the process group gracefully, escalating to SIGKILL
// after the grace period. No-op when the component is not running.
func (c *component) stop(grace time.Duration) {
	c.mu.Lock()
	if c.state != StateRunning || c.cmd == nil || c.cmd.Process == nil {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	pid := c.cmd.Process.Pid
	wd := c.waitDone
	c.mu.Unlock()

	_ = syscall.Kill(-pid, syscall.SIGTERM)
	if wd == nil {
		return
	}
	select {
	case <-wd:
	case <-time.After(grace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(500 * time.Millisecond):
			// reaper is stuck; nothing more to do from here
		}
	}
}

func (c *component) bumpRestarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
	return c.restarts
}
