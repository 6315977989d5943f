package platform

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"focusguard/internal/core/timekeeper"
)

var (
	user32           = syscall.NewLazyDLL("user32.dll")
	kernel32         = syscall.NewLazyDLL("kernel32.dll")
	getLastInputInfo = user32.NewProc("GetLastInputInfo")
	getTickCount     = kernel32.NewProc("GetTickCount")
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

type lastInputIdle struct{}

func newIdleChecker() timekeeper.IdleChecker {
	if getLastInputInfo.Find() != nil || getTickCount.Find() != nil {
		return unsupportedIdle{}
	}
	return lastInputIdle{}
}

func (lastInputIdle) IdleDuration() (time.Duration, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	result, _, err := getLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if result == 0 {
		return 0, fmt.Errorf("get last input info: %w", err)
	}
	// dwTime is a 32-bit tick count, so compare in the same width to survive wraparound.
	now, _, _ := getTickCount.Call()
	idleMillis := uint32(now) - info.dwTime
	return time.Duration(idleMillis) * time.Millisecond, nil
}
