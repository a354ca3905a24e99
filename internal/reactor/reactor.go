package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Handler is an event-driven owner of a non-blocking file descriptor.
type Handler interface {
	// FD returns the file descriptor.
	FD() int

	// Readable returns whether the handler wants read events.
	Readable() bool

	// Writable returns whether the handler wants write events.
	Writable() bool

	// OnReadable is called when the descriptor is readable.
	OnReadable()

	// OnWritable is called when the descriptor is writable.
	OnWritable()

	// OnError is called when poll reports an error condition.
	OnError(err error)

	// OnClose is called when the peer hung up and there is nothing to read.
	OnClose()
}

// ErrInvalidDescriptor indicates that poll reported POLLNVAL.
var ErrInvalidDescriptor = errors.New("reactor: invalid file descriptor")

// Reactor dispatches poll(2) readiness events to registered handlers.
// The zero value is invalid; use [New].
type Reactor struct {
	handlers map[int]Handler
	pollfds  []unix.PollFd
	polled   []Handler
}

// New creates a new [Reactor].
func New() *Reactor {
	return &Reactor{
		handlers: make(map[int]Handler),
		pollfds:  []unix.PollFd{},
		polled:   []Handler{},
	}
}

// Register adds h to the set of polled handlers, replacing any
// handler previously registered for the same descriptor.
func (r *Reactor) Register(h Handler) {
	r.handlers[h.FD()] = h
}

// Unregister removes h. It is a no-op when h is not registered.
func (r *Reactor) Unregister(h Handler) {
	if r.handlers[h.FD()] == h {
		delete(r.handlers, h.FD())
	}
}

// Registered returns whether h is currently registered.
func (r *Reactor) Registered(h Handler) bool {
	return r.handlers[h.FD()] == h
}

// Len returns the number of registered handlers.
func (r *Reactor) Len() int {
	return len(r.handlers)
}

// Poll waits up to timeout for readiness events on the descriptors whose
// handlers are interested in reading or writing and dispatches them. It
// returns the number of descriptors with events. An interrupted poll is not
// an error and reports zero events.
func (r *Reactor) Poll(timeout time.Duration) (int, error) {
	r.pollfds = r.pollfds[:0]
	r.polled = r.polled[:0]
	for fd, h := range r.handlers {
		var events int16
		if h.Readable() {
			events |= unix.POLLIN
		}
		if h.Writable() {
			events |= unix.POLLOUT
		}
		if events == 0 {
			continue
		}
		r.pollfds = append(r.pollfds, unix.PollFd{Fd: int32(fd), Events: events})
		r.polled = append(r.polled, h)
	}

	count, err := unix.Poll(r.pollfds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reactor: poll: %w", err)
	}
	if count <= 0 {
		return 0, nil
	}

	for idx, pfd := range r.pollfds {
		if pfd.Revents == 0 {
			continue
		}
		r.dispatch(r.polled[idx], pfd.Revents)
	}
	return count, nil
}

// dispatch delivers the events to h, checking before each callback that a
// previous callback did not unregister it.
func (r *Reactor) dispatch(h Handler, revents int16) {
	if !r.Registered(h) {
		return
	}
	if revents&unix.POLLNVAL != 0 {
		h.OnError(ErrInvalidDescriptor)
		return
	}
	if revents&unix.POLLERR != 0 {
		err := SocketError(h.FD())
		if err == nil {
			err = unix.EIO
		}
		h.OnError(err)
		return
	}
	if revents&unix.POLLIN != 0 {
		h.OnReadable()
	}
	if revents&unix.POLLOUT != 0 && r.Registered(h) {
		h.OnWritable()
	}
	if revents&unix.POLLHUP != 0 && revents&unix.POLLIN == 0 && r.Registered(h) {
		h.OnClose()
	}
}
