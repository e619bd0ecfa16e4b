// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool hands out buffers of one size. It is safe for concurrent use.
type BytePool struct {
	size int
	p    sync.Pool

	gets   atomic.Uint64
	puts   atomic.Uint64
	allocs atomic.Uint64
}

// Stats counts pool traffic since creation.
type Stats struct {
	Gets   uint64
	Puts   uint64
	Allocs uint64
}

// NewBytePool returns a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.p.New = func() any {
		b.allocs.Add(1)
		buf := make([]byte, b.size)
		return &buf
	}
	return b
}

// Size is the length of every buffer returned by Get.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of length Size.
func (b *BytePool) GetBuffer() []byte {
	b.gets.Add(1)
	return (*b.p.Get().(*[]byte))[:b.size]
}

// PutBuffer returns buf for reuse. Slices of a pooled buffer are accepted;
// buffers with a smaller capacity are dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) < b.size {
		return
	}
	b.puts.Add(1)
	buf = buf[:b.size]
	b.p.Put(&buf)
}

// Stats returns a snapshot of the counters.
func (b *BytePool) Stats() Stats {
	return Stats{
		Gets:   b.gets.Load(),
		Puts:   b.puts.Load(),
		Allocs: b.allocs.Load(),
	}
}
