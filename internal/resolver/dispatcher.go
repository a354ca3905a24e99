package resolver

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/netshape/tsproxy/internal/model"
	"github.com/netshape/tsproxy/internal/shaping"
)

// Sink receives the lookup results. Its Enqueue method MUST be
// safe to call from any goroutine.
type Sink interface {
	Enqueue(msg shaping.Message)
}

// Observer is OPTIONALLY notified about each completed lookup.
type Observer interface {
	OnLookup(err error)
}

// DispatcherConfig contains the [Dispatcher] settings.
type DispatcherConfig struct {
	// Observer is the OPTIONAL lookup observer.
	Observer Observer

	// Resolver is the MANDATORY resolver.
	Resolver model.Resolver

	// Sink is the MANDATORY sink, usually the server->client pipe.
	Sink Sink
}

// Dispatcher runs each lookup on its own goroutine. The zero
// value is invalid; use [NewDispatcher].
type Dispatcher struct {
	observer Observer
	resolver model.Resolver
	sink     Sink
	wg       sync.WaitGroup
}

// NewDispatcher creates a new [Dispatcher].
func NewDispatcher(config *DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		observer: config.Observer,
		resolver: config.Resolver,
		sink:     config.Sink,
		wg:       sync.WaitGroup{},
	}
}

// Dispatch resolves req.Hostname in the background and enqueues a
// [shaping.Resolved] message on the sink. A failed lookup produces
// a message with no addresses.
func (d *Dispatcher) Dispatch(ctx context.Context, logger model.Logger, req *shaping.Resolve) {
	logger = model.ValidLoggerOrDefault(logger)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t0 := time.Now()
		logger.Debugf("resolve %s...", req.Hostname)
		addrs, err := d.resolver.LookupHost(ctx, req.Hostname)
		if err != nil {
			logger.Infof("resolve %s... %s", req.Hostname, err)
			addrs = []netip.Addr{}
		} else {
			logger.Debugf("resolve %s... %v in %s", req.Hostname, addrs, time.Since(t0))
		}
		if d.observer != nil {
			d.observer.OnLookup(err)
		}
		d.sink.Enqueue(&shaping.Resolved{ID: req.ID, Addresses: addrs})
	}()
}

// Wait waits for the pending lookups to complete.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
