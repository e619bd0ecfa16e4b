// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Pinning of the event-loop thread to one logical CPU. The multiplexer is
// single-threaded, so keeping its goroutine on a fixed OS thread and core
// keeps the readiness path cache-warm.

package affinity

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-net/api"
)

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to cpu. The returned release unlocks the thread; it does not restore the
// previous CPU mask, so the thread should not be reused for other work.
// A negative cpu pins nothing and returns a no-op release.
func Pin(cpu int) (release func(), err error) {
	if cpu < 0 {
		return func() {}, nil
	}
	if cpu >= runtime.NumCPU() {
		return nil, fmt.Errorf("affinity: cpu %d of %d: %w", cpu, runtime.NumCPU(), api.ErrInvalidArgument)
	}
	runtime.LockOSThread()
	if err := setAffinityPlatform(cpu); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return runtime.UnlockOSThread, nil
}
