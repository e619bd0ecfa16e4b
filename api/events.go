// File: api/events.go
// Package api defines readiness event types shared by socket, wakeup and reactor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "strings"

// EventMask is a set of readiness conditions a descriptor is registered for,
// or was reported ready for.
type EventMask uint8

const (
	EventNone  EventMask = 0
	EventRead  EventMask = 1 << 0
	EventWrite EventMask = 1 << 1

	// EventReadWrite is the mask reported for hang-up and error conditions.
	EventReadWrite = EventRead | EventWrite
)

// Has reports whether every bit of other is set in m.
func (m EventMask) Has(other EventMask) bool {
	return m&other == other
}

// Any reports whether m and other share at least one bit.
func (m EventMask) Any(other EventMask) bool {
	return m&other != 0
}

func (m EventMask) String() string {
	if m == EventNone {
		return "none"
	}
	var parts []string
	if m&EventRead != 0 {
		parts = append(parts, "read")
	}
	if m&EventWrite != 0 {
		parts = append(parts, "write")
	}
	if m&^EventReadWrite != 0 {
		parts = append(parts, "invalid")
	}
	return strings.Join(parts, "|")
}
