//go:build !unix

// File: wakeup/channel_stub.go
// Author: momentics <momentics@gmail.com>

package wakeup

import "github.com/momentics/hioload-net/api"

func New() (*Channel, error) { return nil, api.ErrNotSupported }

func (c *Channel) Write(p []byte) (int, error) { return 0, c.fail(api.ErrNotSupported) }
func (c *Channel) Read(p []byte) (int, error) { return 0, c.fail(api.ErrNotSupported) }

func closeFD(fd int) error { return nil }
