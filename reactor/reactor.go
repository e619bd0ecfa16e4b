// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral multiplexer: interest bookkeeping, event buffer growth,
// interruption handling and per-entry accessors.

package reactor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"go.uber.org/zap"
)

// errInterrupted is returned by a poller's wait when the native call was
// interrupted by a signal (EINTR).
var errInterrupted = errors.New("reactor: wait interrupted")

// DefaultInitialCapacity is the event buffer size when no option is given.
const DefaultInitialCapacity = 64

// poller is one native readiness facility.
type poller interface {
	// name identifies the backend ("epoll", "kqueue", "poll").
	name() string
	// control moves fd from interest old to next. old and next differ; either
	// may be api.EventNone, meaning add or remove.
	control(fd int, old, next api.EventMask) error
	// resize makes room for capacity ready entries, keeping existing ones.
	resize(capacity int)
	// wait blocks up to timeoutMs (negative: forever) and returns the number
	// of ready entries, or errInterrupted.
	wait(timeoutMs int) (int, error)
	// ready returns entry i of the last wait with hang-up folded into
	// api.EventReadWrite.
	ready(i int) (fd int, events api.EventMask)
	close() error
}

// Event is one ready entry of the last Wait.
type Event[T any] struct {
	FD     int
	Events api.EventMask
	Tag    T
	// Registered is false when FD was removed after the Wait returned.
	Registered bool
}

type registration[T any] struct {
	events api.EventMask
	tag    T
}

// Multiplexer multiplexes readiness of registered descriptors. T is the tag
// type used to map a ready entry back to its owner.
type Multiplexer[T any] struct {
	p        poller
	regs     map[int]*registration[T]
	capacity int
	maxCap   int
	n        int
	snapshot []*registration[T] // registration of each ready entry at Wait
	closed   bool
	lastErr  string
	log      *zap.Logger
	metrics  *control.Metrics
}

// Option configures a Multiplexer.
type Option func(*options)

type options struct {
	initialCap int
	maxCap     int
	log        *zap.Logger
	metrics    *control.Metrics
	probes     *control.DebugProbes
	probeName  string
}

// WithInitialCapacity sets the initial event buffer size, rounded up to a
// power of two.
func WithInitialCapacity(n int) Option {
	return func(o *options) { o.initialCap = n }
}

// WithMaxCapacity bounds event buffer growth. Registering a descriptor that
// would need a larger buffer fails with api.ErrResourceExhausted.
// Zero means unbounded.
func WithMaxCapacity(n int) Option {
	return func(o *options) { o.maxCap = n }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics reports into m.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDebugProbes registers a state probe under name.
func WithDebugProbes(dp *control.DebugProbes, name string) Option {
	return func(o *options) {
		o.probes = dp
		o.probeName = name
	}
}

// New returns a Multiplexer backed by the platform's native facility.
func New[T any](opts ...Option) (*Multiplexer[T], error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	return newMultiplexer[T](p, opts...), nil
}

// NewPollArray returns a Multiplexer backed by poll(2).
func NewPollArray[T any](opts ...Option) (*Multiplexer[T], error) {
	p, err := newPollArrayPoller()
	if err != nil {
		return nil, err
	}
	return newMultiplexer[T](p, opts...), nil
}

func newMultiplexer[T any](p poller, opts ...Option) *Multiplexer[T] {
	o := options{initialCap: DefaultInitialCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	capacity := nextPowerOfTwo(o.initialCap)
	if o.maxCap > 0 && capacity > o.maxCap {
		capacity = floorPowerOfTwo(o.maxCap)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	p.resize(capacity)

	m := &Multiplexer[T]{
		p:        p,
		regs:     make(map[int]*registration[T], capacity),
		capacity: capacity,
		maxCap:   o.maxCap,
		log:      o.log.With(zap.String("backend", p.name())),
		metrics:  o.metrics,
	}
	m.metrics.ObserveCapacity(capacity, false)
	if o.probes != nil {
		o.probes.RegisterProbe(o.probeName, func() any { return m.Stats() })
	}
	return m
}

// Add registers interest in events for fd. If fd's current interest already
// covers events the call does nothing. Otherwise the native registration is
// created or widened and tag is stored for fd.
func (m *Multiplexer[T]) Add(fd int, events api.EventMask, tag T) error {
	if err := m.check("add", fd, events); err != nil {
		return err
	}
	reg := m.regs[fd]
	old := api.EventNone
	if reg != nil {
		old = reg.events
	}
	if old.Has(events) {
		return nil
	}
	if old == api.EventNone && len(m.regs) >= m.capacity {
		if err := m.grow(); err != nil {
			return m.fail("add", err)
		}
	}

	next := old | events
	if err := m.p.control(fd, old, next); err != nil {
		return m.fail("add", fmt.Errorf("add fd %d %s: %w", fd, events, err))
	}
	if reg == nil {
		reg = &registration[T]{}
		m.regs[fd] = reg
		m.metrics.SetRegistrations(len(m.regs))
	}
	reg.events = next
	reg.tag = tag
	return nil
}

// Del removes interest in events for fd. Events not currently registered are
// ignored; when no interest remains fd is removed from the native facility.
// Call Del before closing fd. If fd was already closed, a full removal still
// forgets the registration so a reused descriptor number can be added again.
func (m *Multiplexer[T]) Del(fd int, events api.EventMask) error {
	if err := m.check("del", fd, events); err != nil {
		return err
	}
	reg := m.regs[fd]
	if reg == nil || !reg.events.Any(events) {
		return nil
	}

	next := reg.events &^ events
	if err := m.p.control(fd, reg.events, next); err != nil {
		if next != api.EventNone || !staleDescriptor(err) {
			return m.fail("del", fmt.Errorf("del fd %d %s: %w", fd, events, err))
		}
		// closed before Del; the kernel already dropped it
		m.log.Debug("removed stale registration", zap.Int("fd", fd), zap.Error(err))
	}
	if next == api.EventNone {
		delete(m.regs, fd)
		m.metrics.SetRegistrations(len(m.regs))
		return nil
	}
	reg.events = next
	return nil
}

// Wait blocks until at least one registered descriptor is ready or
// timeoutMs elapses; a negative timeout waits forever. It returns the
// number of ready entries, zero on timeout. Signal interruptions are
// retried with the remaining time.
func (m *Multiplexer[T]) Wait(timeoutMs int) (int, error) {
	m.n = 0
	if m.closed {
		return 0, m.fail("wait", api.ErrClosed)
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	// the native calls take a C int
	if timeoutMs > math.MaxInt32 {
		timeoutMs = math.MaxInt32
	}

	var deadline time.Time
	if timeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}
	for {
		n, err := m.p.wait(timeoutMs)
		if errors.Is(err, errInterrupted) {
			m.metrics.ObserveInterrupted()
			if timeoutMs > 0 {
				timeoutMs = remainingMs(deadline)
			}
			continue
		}
		if err != nil {
			m.log.Warn("wait failed", zap.Error(err))
			return 0, m.fail("wait", err)
		}
		m.n = n
		m.snapshot = m.snapshot[:0]
		for i := 0; i < n; i++ {
			fd, _ := m.p.ready(i)
			m.snapshot = append(m.snapshot, m.regs[fd])
		}
		m.metrics.ObserveWait(n)
		return n, nil
	}
}

func remainingMs(deadline time.Time) int {
	d := time.Until(deadline)
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// Entry returns ready entry i of the last Wait, 0 <= i < n. The tag belongs
// to the registration that was live when Wait returned; if fd has since been
// removed, even if its number was registered again, Registered is false.
func (m *Multiplexer[T]) Entry(i int) Event[T] {
	m.bounds(i)
	fd, events := m.p.ready(i)
	ev := Event[T]{FD: fd, Events: events}
	if reg := m.snapshot[i]; reg != nil && m.regs[fd] == reg {
		ev.Tag = reg.tag
		ev.Registered = true
	}
	return ev
}

// Tag returns the tag of ready entry i, or the zero T when its descriptor
// is no longer registered.
func (m *Multiplexer[T]) Tag(i int) T {
	return m.Entry(i).Tag
}

// Events returns the normalized readiness of entry i.
func (m *Multiplexer[T]) Events(i int) api.EventMask {
	m.bounds(i)
	_, events := m.p.ready(i)
	return events
}

// FD returns the descriptor of entry i.
func (m *Multiplexer[T]) FD(i int) int {
	m.bounds(i)
	fd, _ := m.p.ready(i)
	return fd
}

// Interest returns the registered events for fd.
func (m *Multiplexer[T]) Interest(fd int) api.EventMask {
	if reg := m.regs[fd]; reg != nil {
		return reg.events
	}
	return api.EventNone
}

// Len returns the number of registered descriptors.
func (m *Multiplexer[T]) Len() int { return len(m.regs) }

// Capacity returns the event buffer capacity.
func (m *Multiplexer[T]) Capacity() int { return m.capacity }

// Backend names the native facility.
func (m *Multiplexer[T]) Backend() string { return m.p.name() }

// LastError returns the message of the most recent failure.
func (m *Multiplexer[T]) LastError() string { return m.lastErr }

// Stats is the snapshot exposed through debug probes.
func (m *Multiplexer[T]) Stats() map[string]any {
	return map[string]any{
		"backend":       m.p.name(),
		"registrations": len(m.regs),
		"capacity":      m.capacity,
		"last_error":    m.lastErr,
	}
}

// Close releases the native handle and forgets all registrations. It does
// not close registered descriptors.
func (m *Multiplexer[T]) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.n = 0
	m.snapshot = nil
	clear(m.regs)
	m.metrics.SetRegistrations(0)
	if err := m.p.close(); err != nil {
		return m.fail("close", err)
	}
	return nil
}

func (m *Multiplexer[T]) check(op string, fd int, events api.EventMask) error {
	if m.closed {
		return m.fail(op, api.ErrClosed)
	}
	if fd < 0 {
		return m.fail(op, fmt.Errorf("descriptor %d: %w", fd, api.ErrInvalidArgument))
	}
	if events == api.EventNone || events&^api.EventReadWrite != 0 {
		return m.fail(op, fmt.Errorf("events %s: %w", events, api.ErrInvalidArgument))
	}
	return nil
}

func (m *Multiplexer[T]) bounds(i int) {
	if i < 0 || i >= m.n {
		panic(fmt.Sprintf("reactor: entry %d out of range [0,%d)", i, m.n))
	}
}

// grow doubles the event buffer.
func (m *Multiplexer[T]) grow() error {
	next := m.capacity * 2
	if m.maxCap > 0 && next > m.maxCap {
		return api.NewError(api.ErrCodeResourceExhausted, "reactor: event buffer limit reached").
			WithContext("capacity", m.capacity).
			WithContext("max", m.maxCap)
	}
	m.p.resize(next)
	m.capacity = next
	m.metrics.ObserveCapacity(next, true)
	m.log.Info("event buffer grown", zap.Int("capacity", next), zap.Int("registrations", len(m.regs)))
	return nil
}

func (m *Multiplexer[T]) fail(op string, err error) error {
	m.lastErr = err.Error()
	m.metrics.ObserveError(op)
	return err
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func floorPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p <<= 1
	}
	return p
}
