//go:build !linux && !windows

package host

import (
	"fmt"
	"runtime"

	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// DefaultPlatform reports that no native platform exists for this OS. Set
// Options.Platform to run the engine here.
func DefaultPlatform(opts Options) (hal.Platform, error) {
	return nil, fmt.Errorf("%w: %s", pkg.ErrNotSupported, runtime.GOOS)
}
