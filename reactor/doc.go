// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides a level-triggered readiness multiplexer with one
// backend per platform, selected at build time:
//
//   - epoll on Linux
//   - kqueue on macOS and the BSDs
//   - a poll(2) array on other Unix systems
//
// The poll array backend is also available everywhere on Unix through
// NewPollArray.
//
// A Multiplexer tracks read/write interest per descriptor together with a
// caller-chosen tag, and Wait fills a flat list of ready entries. Hang-up and
// error conditions are reported as read|write readiness so that whichever
// operation the caller attempts next observes the failure through its own
// error path.
//
// A Multiplexer is not safe for concurrent use. To interrupt a blocked Wait
// from another goroutine, register the read end of a wakeup.Channel and
// write to it.
package reactor
