// File: wakeup/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Self-wakeup byte channel: register ReadFD with a reactor.Multiplexer for
// read interest, then Wake from any goroutine to make a blocked Wait return.
// The channel carries bytes in order and has no other synchronization role.

package wakeup

import (
	"errors"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/socket"
)

// Channel is a pair of connected local endpoints. Read and Drain belong to
// the goroutine that owns the multiplexer; Write and Wake may be called from
// one other goroutine at a time.
type Channel struct {
	rfd, wfd int

	// loopback variant only; Term closes through them
	rs, ws *socket.Socket

	closed  bool
	lastErr string
}

// ReadFD is the descriptor to register for read readiness.
func (c *Channel) ReadFD() int { return c.rfd }

// WriteFD is the signaling end.
func (c *Channel) WriteFD() int { return c.wfd }

// LastError returns the message of the most recent failure.
func (c *Channel) LastError() string { return c.lastErr }

// Wake writes a single token byte. A full channel already guarantees a
// pending wakeup, so it is not an error.
func (c *Channel) Wake() error {
	_, err := c.Write(token[:])
	if err != nil && !errors.Is(err, api.ErrWouldBlock) {
		return err
	}
	return nil
}

// Drain reads until the channel is empty and returns the bytes consumed.
func (c *Channel) Drain() (int, error) {
	var buf [64]byte
	total := 0
	for {
		n, err := c.Read(buf[:])
		total += n
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return total, nil
			}
			return total, err
		}
	}
}

// Term closes both ends. Both closes are always attempted; the returned
// error joins any failures. Calling Term again is a no-op.
func (c *Channel) Term() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.rs != nil {
		err = errors.Join(c.rs.Term(), c.ws.Term())
	} else {
		err = errors.Join(closeFD(c.rfd), closeFD(c.wfd))
	}
	c.rfd, c.wfd = -1, -1
	if err != nil {
		c.lastErr = err.Error()
	}
	return err
}

var token = [1]byte{1}

func (c *Channel) fail(err error) error {
	c.lastErr = err.Error()
	return err
}
