package platform

import (
	"fmt"
	"os/exec"
	"time"

	"focusguard/internal/core/timekeeper"
)

// commandIdle runs a helper that prints the idle time.
type commandIdle struct {
	name  string
	args  []string
	parse func(string) (time.Duration, error)
}

func newIdleChecker() timekeeper.IdleChecker {
	if path, err := exec.LookPath("xprintidle"); err == nil {
		return commandIdle{name: path, parse: parseMillis}
	}
	// GNOME on Wayland has no X idle counter but exposes Mutter's monitor.
	if path, err := exec.LookPath("gdbus"); err == nil {
		return commandIdle{
			name: path,
			args: []string{
				"call", "--session",
				"--dest", "org.gnome.Mutter.IdleMonitor",
				"--object-path", "/org/gnome/Mutter/IdleMonitor/Core",
				"--method", "org.gnome.Mutter.IdleMonitor.GetIdletime",
			},
			parse: parseMutterIdle,
		}
	}
	return unsupportedIdle{}
}

func (idle commandIdle) IdleDuration() (time.Duration, error) {
	output, err := exec.Command(idle.name, idle.args...).Output()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", idle.name, err)
	}
	return idle.parse(string(output))
}
