//go:build !linux && !darwin && !windows

package platform

import "focusguard/internal/core/timekeeper"

func newIdleChecker() timekeeper.IdleChecker {
	return unsupportedIdle{}
}
