// Package api
// Author: momentics@gmail.com
//
// Result vocabulary for non-blocking I/O.

package api

import "errors"

// Status folds an I/O error into the three outcomes a poll loop acts on.
type Status int

const (
	StatusOK Status = iota
	StatusWouldBlock
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWouldBlock:
		return "would-block"
	default:
		return "error"
	}
}

// StatusOf classifies err. A nil error is StatusOK, ErrWouldBlock is
// StatusWouldBlock, and anything else (including ErrPeerClosed) is StatusError.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrWouldBlock):
		return StatusWouldBlock
	default:
		return StatusError
	}
}
