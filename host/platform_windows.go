//go:build windows

package host

import (
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/host/hal/windows"
)

// DefaultPlatform returns the overlapped I/O platform.
func DefaultPlatform(opts Options) (hal.Platform, error) {
	return windows.New(windows.Config{})
}
