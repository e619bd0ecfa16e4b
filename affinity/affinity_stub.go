//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without per-thread CPU masks.

package affinity

import (
	"fmt"

	"github.com/momentics/hioload-net/api"
)

func setAffinityPlatform(cpu int) error {
	return fmt.Errorf("affinity: %w", api.ErrNotSupported)
}

// Current is not available on this platform.
func Current() ([]int, error) {
	return nil, fmt.Errorf("affinity: %w", api.ErrNotSupported)
}
