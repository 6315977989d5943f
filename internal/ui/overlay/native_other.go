//go:build !windows

package overlay

// Elsewhere the background alpha and fullscreen carry the overlay.
func (overlay *Window) applyNativeOpacity(uint8) {}

func (overlay *Window) setTopmost(bool) {}
