// Package ports resolves hardware device roles to concrete device paths.
//
// A role (lidar, flight controller, depth camera) carries an ordered list of
// candidate paths: an explicit override from the environment or config, a
// stable /dev/serial/by-id alias, and finally a numbered range of kernel
// device nodes. The first candidate that exists wins. Resolution never
// fails hard; a role with no present candidate is reported as absent and
// callers proceed in degraded mode.
package ports

import (
	"fmt"
	"os"
)

// Role names used across the agent.
const (
	RoleFlightController = "flight-controller"
	RoleLidar            = "lidar"
	RoleDepthCamera      = "depth-camera"
)

// Role describes how to locate one piece of hardware.
type Role struct {
	Name     string
	Override string   // explicit path from config/env; checked first when set
	Aliases  []string // stable paths, e.g. /dev/serial/by-id entries
	Prefix   string   // numbered node prefix, e.g. /dev/ttyACM
	Range    int      // number of numbered nodes to probe (Prefix0..PrefixN-1)
}

// statFunc is swapped in tests to avoid touching the real /dev tree.
type statFunc func(string) bool

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Candidates returns the probe order for the role.
func (r Role) Candidates() []string {
	out := make([]string, 0, 1+len(r.Aliases)+r.Range)
	if r.Override != "" {
		out = append(out, r.Override)
	}
	out = append(out, r.Aliases...)
	for i := 0; i < r.Range; i++ {
		out = append(out, fmt.Sprintf("%s%d", r.Prefix, i))
	}
	return out
}

// Resolve returns the first existing candidate path for the role and true,
// or ("", false) when nothing is present.
func Resolve(r Role) (string, bool) {
	return resolve(r, pathExists)
}

func resolve(r Role, exists statFunc) (string, bool) {
	for _, c := range r.Candidates() {
		if exists(c) {
			return c, true
		}
	}
	return "", false
}

// FlightController builds the default flight-controller role. The by-id
// alias matches the autopilot's USB descriptor and survives re-enumeration;
// the ttyACM range covers fresh plugs where the alias is not yet present.
func FlightController(override string) Role {
	return Role{
		Name:     RoleFlightController,
		Override: override,
		Aliases:  []string{"/dev/serial/by-id/usb-Holybro_Pixhawk6C_1C003C000851333239393235-if00"},
		Prefix:   "/dev/ttyACM",
		Range:    4,
	}
}

// Lidar builds the default lidar role.
func Lidar(override string) Role {
	return Role{
		Name:     RoleLidar,
		Override: override,
		Prefix:   "/dev/ttyUSB",
		Range:    4,
	}
}

// DepthCamera builds the default depth-camera role. RealSense devices show
// up as video nodes rather than serial ports.
func DepthCamera(override string) Role {
	return Role{
		Name:     RoleDepthCamera,
		Override: override,
		Prefix:   "/dev/video",
		Range:    4,
	}
}
