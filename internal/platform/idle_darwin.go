package platform

import (
	"fmt"
	"os/exec"
	"time"

	"focusguard/internal/core/timekeeper"
)

type ioregIdle struct {
	path string
}

func newIdleChecker() timekeeper.IdleChecker {
	path, err := exec.LookPath("ioreg")
	if err != nil {
		return unsupportedIdle{}
	}
	return ioregIdle{path: path}
}

func (idle ioregIdle) IdleDuration() (time.Duration, error) {
	output, err := exec.Command(idle.path, "-c", "IOHIDSystem", "-d", "4").Output()
	if err != nil {
		return 0, fmt.Errorf("ioreg: %w", err)
	}
	return parseHIDIdle(string(output))
}
