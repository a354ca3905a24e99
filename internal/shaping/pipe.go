package shaping

import (
	"errors"
	"sync"
	"time"

	"github.com/netshape/tsproxy/internal/model"
)

// Direction is the direction of a [Pipe].
type Direction int

const (
	// DirectionIn carries client->server traffic.
	DirectionIn Direction = iota

	// DirectionOut carries server->client traffic.
	DirectionOut
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// Side identifies one of the two halves of a connection.
type Side int

const (
	// SideClient is the half owning the accepted SOCKS5 socket.
	SideClient Side = iota

	// SideDestination is the half owning the outbound socket.
	SideDestination
)

// String implements fmt.Stringer.
func (s Side) String() string {
	if s == SideClient {
		return "client"
	}
	return "destination"
}

// Peer returns the side receiving the messages of this direction.
func (d Direction) Peer() Side {
	if d == DirectionIn {
		return SideDestination
	}
	return SideClient
}

// ErrNoPeer indicates that the connection or the addressed side is gone.
var ErrNoPeer = errors.New("shaping: no such peer")

// Router delivers released messages to the connection handlers.
type Router interface {
	// Route delivers msg to the handler on the given side of its
	// connection. It returns [ErrNoPeer] when there is no such handler.
	Route(side Side, msg Message) error

	// Fail tears down a connection after Route failed with an I/O fault.
	Fail(connID int64, err error)
}

// Observer is OPTIONALLY notified about each delivered message.
type Observer interface {
	OnDeliver(direction Direction, msg Message, queued time.Duration)
}

// envelope is a queued message with its timing information.
type envelope struct {
	due      time.Time
	enqueued time.Time
	msg      Message
	size     float64
}

// Pipe is a latency and bandwidth shaping FIFO. Enqueue is safe to call
// from any goroutine while Tick MUST only be called by the goroutine
// owning the [Router]. The zero value is invalid; use [NewPipe].
type Pipe struct {
	// available is the bandwidth credit in bytes.
	available float64

	direction Direction
	kbps      float64
	lastTick  time.Time
	latency   time.Duration
	logger    model.Logger
	mu        sync.Mutex
	observer  Observer
	queue     []*envelope
	router    Router
	stats     *Stats
	timeNow   func() time.Time
}

// PipeConfig contains the [Pipe] settings.
type PipeConfig struct {
	// Direction is the pipe direction.
	Direction Direction

	// Latency is the one-way latency.
	Latency time.Duration

	// Kbps is the effective bandwidth in kbit/s; zero or
	// negative means unlimited.
	Kbps float64

	// Logger is the OPTIONAL logger.
	Logger model.Logger

	// Observer is the OPTIONAL delivery observer.
	Observer Observer

	// Router is the MANDATORY router.
	Router Router
}

// NewPipe creates a new [Pipe].
func NewPipe(config *PipeConfig) *Pipe {
	return &Pipe{
		available: 0,
		direction: config.Direction,
		kbps:      config.Kbps,
		lastTick:  time.Now(),
		latency:   config.Latency,
		logger:    model.ValidLoggerOrDefault(config.Logger),
		mu:        sync.Mutex{},
		observer:  config.Observer,
		queue:     []*envelope{},
		router:    config.Router,
		stats:     NewStats(),
		timeNow:   time.Now,
	}
}

// Direction returns the pipe direction.
func (p *Pipe) Direction() Direction {
	return p.direction
}

// Enqueue appends msg to the queue. Every message except [Closed] is
// due after the current latency; [Closed] is due immediately but is still
// delivered after the messages enqueued before it.
func (p *Pipe) Enqueue(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.timeNow()
	due := now.Add(p.latency)
	if msg.Kind() == KindClosed {
		due = now
	}
	p.queue = append(p.queue, &envelope{
		due:      due,
		enqueued: now,
		msg:      msg,
		size:     float64(msg.Size()),
	})
}

// Tick releases the messages that are due and affordable, or every queued
// message when flush is true, and returns whether it delivered anything.
//
// Unspent bandwidth credit is discarded whenever the queue is empty or its
// head is not due yet, so credit never accumulates while idle.
func (p *Pipe) Tick(now time.Time, flush bool) bool {
	processed := false
	if head := p.head(); head != nil && p.Kbps() > 0 && !head.due.After(now) {
		elapsed := now.Sub(p.lastTick).Seconds()
		p.available += elapsed * p.Kbps() * 1000 / 8
	}
	for {
		env := p.popIfDeliverable(now, flush)
		if env == nil {
			break
		}
		processed = true
		p.deliver(now, env)
	}
	if head := p.head(); head == nil || head.due.After(now) {
		p.available = 0
	}
	p.lastTick = now
	return processed
}

func (p *Pipe) head() *envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) <= 0 {
		return nil
	}
	return p.queue[0]
}

// popIfDeliverable removes and returns the head of the queue when it can be
// delivered at the given time and debits its size from the credit.
func (p *Pipe) popIfDeliverable(now time.Time, flush bool) *envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) <= 0 {
		return nil
	}
	env := p.queue[0]
	limited := p.kbps > 0
	if !flush && (env.due.After(now) || (limited && env.size > p.available)) {
		return nil
	}
	p.queue[0] = nil
	p.queue = p.queue[1:]
	if limited {
		p.available -= env.size
	}
	return env
}

func (p *Pipe) deliver(now time.Time, env *envelope) {
	msg := env.msg
	queued := now.Sub(env.enqueued)
	p.stats.Observe(msg.Size(), queued)
	if p.observer != nil {
		p.observer.OnDeliver(p.direction, msg, queued)
	}
	err := p.router.Route(p.direction.Peer(), msg)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoPeer):
		p.logger.Debugf("pipe %s: dropping %s for [%d]: %s", p.direction, msg.Kind(), msg.ConnID(), err)
	default:
		p.logger.Warnf("pipe %s: delivering %s to [%d]: %s", p.direction, msg.Kind(), msg.ConnID(), err)
		p.router.Fail(msg.ConnID(), err)
	}
}

// Len returns the number of queued messages.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Latency returns the one-way latency.
func (p *Pipe) Latency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency
}

// SetLatency changes the latency applied to messages enqueued from now on.
func (p *Pipe) SetLatency(latency time.Duration) {
	p.mu.Lock()
	p.latency = latency
	p.mu.Unlock()
}

// Kbps returns the effective bandwidth in kbit/s.
func (p *Pipe) Kbps() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kbps
}

// SetKbps changes the effective bandwidth in kbit/s.
func (p *Pipe) SetKbps(kbps float64) {
	p.mu.Lock()
	p.kbps = kbps
	p.mu.Unlock()
}

// Stats returns the delivery statistics. Only the goroutine calling
// Tick may use the returned value.
func (p *Pipe) Stats() *Stats {
	return p.stats
}
