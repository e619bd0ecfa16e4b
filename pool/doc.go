// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable fixed-size byte buffers for receive paths driven by the
// multiplexer. See bytepool.go.
package pool
