package platform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"focusguard/internal/core/timekeeper"
)

// NewIdleChecker returns the idle source for this desktop. Where none exists
// it reports timekeeper.ErrIdleUnsupported and the idle reset stays off.
func NewIdleChecker() timekeeper.IdleChecker {
	return newIdleChecker()
}

type unsupportedIdle struct{}

func (unsupportedIdle) IdleDuration() (time.Duration, error) {
	return 0, timekeeper.ErrIdleUnsupported
}

// parseMillis reads xprintidle output.
func parseMillis(output string) (time.Duration, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(output), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse idle milliseconds: %w", err)
	}
	return time.Duration(max(value, 0)) * time.Millisecond, nil
}

var gdbusUint = regexp.MustCompile(`uint64\s+(\d+)`)

// parseMutterIdle reads the reply of org.gnome.Mutter.IdleMonitor.GetIdletime,
// e.g. "(uint64 51234,)".
func parseMutterIdle(output string) (time.Duration, error) {
	match := gdbusUint.FindStringSubmatch(output)
	if match == nil {
		return 0, fmt.Errorf("unexpected idle monitor reply %q", strings.TrimSpace(output))
	}
	return parseMillis(match[1])
}

var hidIdle = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

// parseHIDIdle reads the HIDIdleTime nanoseconds from ioreg output.
func parseHIDIdle(output string) (time.Duration, error) {
	match := hidIdle.FindStringSubmatch(output)
	if match == nil {
		return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
	}
	nanos, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
	}
	return time.Duration(nanos), nil
}
