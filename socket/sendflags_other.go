//go:build unix && !linux

// File: socket/sendflags_other.go
// Author: momentics <momentics@gmail.com>

package socket

func sendFlags(flags int) int { return flags }
