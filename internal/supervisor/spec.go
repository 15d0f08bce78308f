// Package supervisor launches and babysits the rover's component
// processes: hardware bridges, the vision server, the data relay. Each
// component is an OS process in its own process group with stdout/stderr
// captured to rotating files. Critical components get a bounded number of
// automatic restarts; everything else is only observed.
package supervisor

import (
	"os/exec"
	"strings"
	"time"
)

// Spec declares one component. Immutable once the supervisor starts.
type Spec struct {
	ID           int
	Name         string
	Command      string
	Critical     bool
	Enabled      bool
	StartupDelay time.Duration // extra settle time after launch, before the next component
	HealthFile   string        // optional: path that appears once the component is serving
	Env          []string      // extra "K=V" entries for this component
}

// buildCommand constructs the exec.Cmd for a spec command line. Shell
// metacharacters route through /bin/sh -c; plain commands run directly.
func (s Spec) buildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
