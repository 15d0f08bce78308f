package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harry0537/AstraBackup-sub001/internal/logger"
)

func fastOpts() Options {
	return Options{
		RestartLimit: 2,
		PollEvery:    50 * time.Millisecond,
		LaunchDelay:  time.Millisecond,
		Settle:       50 * time.Millisecond,
		StopGrace:    300 * time.Millisecond,
		HealthWait:   200 * time.Millisecond,
	}
}

func statusByName(t *testing.T, s *Supervisor, name string) Status {
	t.Helper()
	for _, st := range s.StatusSnapshot() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("no component named %s", name)
	return Status{}
}

func TestStartAllLaunchesEnabledComponentsInOrder(t *testing.T) {
	specs := []Spec{
		{ID: 195, Name: "bridge", Command: "sleep 60", Critical: true, Enabled: true},
		{ID: 198, Name: "monitor", Command: "sleep 60", Enabled: true},
		{ID: 194, Name: "dashboard", Command: "sleep 60", Enabled: false},
	}
	s := New(specs, logger.Config{}, fastOpts())
	defer s.Shutdown()

	require.NoError(t, s.StartAll())

	bridge := statusByName(t, s, "bridge")
	assert.True(t, bridge.Running)
	assert.Greater(t, bridge.PID, 0)
	assert.Equal(t, StateRunning, bridge.State)

	assert.True(t, statusByName(t, s, "monitor").Running)

	dash := statusByName(t, s, "dashboard")
	assert.False(t, dash.Running)
	assert.Equal(t, StateStopped, dash.State)
}

func TestCriticalStartFailureAbortsAndTearsDown(t *testing.T) {
	specs := []Spec{
		{ID: 196, Name: "vision", Command: "sleep 60", Critical: true, Enabled: true},
		{ID: 195, Name: "bridge", Command: "/nonexistent/astra-binary", Critical: true, Enabled: true},
		{ID: 197, Name: "relay", Command: "sleep 60", Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())

	err := s.StartAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriticalStart)
	assert.Contains(t, err.Error(), "bridge")

	// nothing may remain running after the abort
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !statusByName(t, s, "vision").Running {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	for _, st := range s.StatusSnapshot() {
		assert.False(t, st.Running, "component %s still running after aborted startup", st.Name)
	}
}

func TestNonCriticalStartFailureIsTolerated(t *testing.T) {
	specs := []Spec{
		{ID: 196, Name: "vision", Command: "sleep 60", Critical: true, Enabled: true},
		{ID: 198, Name: "monitor", Command: "/nonexistent/astra-binary", Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())
	defer s.Shutdown()

	require.NoError(t, s.StartAll())
	assert.True(t, statusByName(t, s, "vision").Running)
	assert.False(t, statusByName(t, s, "monitor").Running)
}

func TestCriticalRestartBound(t *testing.T) {
	specs := []Spec{
		// survives the settle window, then exits on its own
		{ID: 195, Name: "flaky", Command: "sleep 0.15", Critical: true, Enabled: true},
		{ID: 198, Name: "oneshot", Command: "sleep 0.15", Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())
	defer s.Shutdown()

	require.NoError(t, s.StartAll())

	// poll well past the point where the restart budget is exhausted
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.Poll()
		flaky := statusByName(t, s, "flaky")
		if flaky.Restarts >= 2 && flaky.State == StateCrashed {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	flaky := statusByName(t, s, "flaky")
	assert.Equal(t, 2, flaky.Restarts, "critical component restarted exactly restart-limit times")
	assert.Equal(t, StateCrashed, flaky.State)
	assert.False(t, flaky.Running)

	oneshot := statusByName(t, s, "oneshot")
	assert.Zero(t, oneshot.Restarts, "non-critical component must never auto-restart")
	assert.False(t, oneshot.Running)
}

func TestShutdownStopsEverythingAndIsIdempotent(t *testing.T) {
	specs := []Spec{
		{ID: 196, Name: "vision", Command: "sleep 300", Critical: true, Enabled: true},
		{ID: 197, Name: "relay", Command: "sleep 300", Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())
	require.NoError(t, s.StartAll())

	pid := statusByName(t, s, "vision").PID
	require.Greater(t, pid, 0)

	s.Shutdown()
	s.Shutdown() // second call must be a no-op

	for _, st := range s.StatusSnapshot() {
		assert.False(t, st.Running, "%s still running after shutdown", st.Name)
	}
	// the process group must actually be gone
	err := syscall.Kill(pid, 0)
	assert.Error(t, err)
}

func TestShutdownEscalatesToKill(t *testing.T) {
	specs := []Spec{
		// traps and ignores SIGTERM; only SIGKILL removes it
		{ID: 1, Name: "stubborn", Command: `sh -c 'trap "" TERM; sleep 300'`, Critical: true, Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())
	require.NoError(t, s.StartAll())

	pid := statusByName(t, s, "stubborn").PID
	start := time.Now()
	s.Shutdown()
	assert.Less(t, time.Since(start), 3*time.Second, "shutdown must not hang on a stubborn child")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("stubborn child %d survived shutdown", pid)
}

func TestComponentOutputCapturedToFiles(t *testing.T) {
	dir := t.TempDir()
	specs := []Spec{
		{ID: 1, Name: "chatty", Command: "sh -c 'echo hello-from-chatty; sleep 60'", Enabled: true},
	}
	s := New(specs, logger.Config{Dir: dir}, fastOpts())
	require.NoError(t, s.StartAll())
	s.Shutdown()

	b, err := os.ReadFile(filepath.Join(dir, "chatty.out.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "hello-from-chatty"))
}

func TestComponentEnvOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	specs := []Spec{
		{
			ID: 1, Name: "envy", Enabled: true,
			Command: "sh -c 'echo dest=$ASTRA_DASHBOARD_IP; sleep 60'",
			Env:     []string{"ASTRA_DASHBOARD_IP=10.9.9.9"},
		},
	}
	opts := fastOpts()
	opts.GlobalEnv = []string{"ASTRA_DASHBOARD_IP=10.0.0.1"}
	s := New(specs, logger.Config{Dir: dir}, opts)
	require.NoError(t, s.StartAll())
	s.Shutdown()

	b, err := os.ReadFile(filepath.Join(dir, "envy.out.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "dest=10.9.9.9")
}

func TestHealthFileWait(t *testing.T) {
	dir := t.TempDir()
	health := filepath.Join(dir, "status.json")
	specs := []Spec{
		{ID: 1, Name: "healthy", Command: "sleep 60", Enabled: true, HealthFile: health},
	}
	opts := fastOpts()
	s := New(specs, logger.Config{}, opts)
	defer s.Shutdown()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(health, []byte("{}"), 0o600)
	}()

	start := time.Now()
	require.NoError(t, s.StartAll())
	// returned promptly once the health file appeared, well under HealthWait+settle slack
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	specs := []Spec{
		{ID: 1, Name: "svc", Command: "sleep 300", Critical: true, Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := statusByName(t, s, "svc"); st.Running {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, statusByName(t, s, "svc").Running)
}

func TestRunReturnsErrorWhenCriticalStartFails(t *testing.T) {
	specs := []Spec{
		{ID: 1, Name: "broken", Command: "/nonexistent/astra-binary", Critical: true, Enabled: true},
	}
	s := New(specs, logger.Config{}, fastOpts())
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCriticalStart))
}

func TestBuildCommandShellAndDirect(t *testing.T) {
	direct := Spec{Command: "sleep 5"}.buildCommand()
	assert.Equal(t, "sleep", filepath.Base(direct.Path))
	assert.Equal(t, []string{"sleep", "5"}, direct.Args)

	shell := Spec{Command: "echo a && echo b"}.buildCommand()
	assert.Equal(t, "/bin/sh", shell.Path)

	empty := Spec{Command: "  "}.buildCommand()
	assert.Equal(t, "/bin/true", empty.Path)
}
