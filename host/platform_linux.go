//go:build linux

package host

import (
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/host/hal/linux"
)

// DefaultPlatform returns the epoll/inotify platform watching opts.DevDir.
func DefaultPlatform(opts Options) (hal.Platform, error) {
	return linux.New(linux.Config{DevDir: opts.DevDir})
}
