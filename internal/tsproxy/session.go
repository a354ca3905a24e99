package tsproxy

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/netshape/tsproxy/internal/config"
	"github.com/netshape/tsproxy/internal/control"
	"github.com/netshape/tsproxy/internal/logx"
	"github.com/netshape/tsproxy/internal/model"
	"github.com/netshape/tsproxy/internal/reactor"
	"github.com/netshape/tsproxy/internal/resolver"
	"github.com/netshape/tsproxy/internal/shaping"
)

var (
	// ErrListen indicates that we could not listen on the configured endpoint.
	ErrListen = errors.New("tsproxy: cannot listen")

	// errUnexpectedMessage indicates a message kind a handler never receives.
	errUnexpectedMessage = errors.New("tsproxy: unexpected message")

	// errHangup indicates that poll reported a hangup.
	errHangup = errors.New("tsproxy: connection hung up")

	// errShutdown is the reason for failing connections at shutdown.
	errShutdown = errors.New("tsproxy: shutting down")
)

// Config contains the [Session] settings.
type Config struct {
	// Logger is the OPTIONAL logger.
	Logger model.Logger

	// Options is the MANDATORY proxy configuration.
	Options *config.Options

	// Output is the MANDATORY writer for control replies.
	Output *control.Output

	// Requests OPTIONALLY carries control requests.
	Requests <-chan control.Request

	// Resolver is the OPTIONAL resolver. When nil we use the server
	// configured in Options or the system resolver.
	Resolver model.Resolver
}

// Session owns the listener, the registry, the pipes, and the DNS
// cache of a running proxy. Apart from [NewSession], [*Session.Addr]
// and [*Session.Close], its methods MUST be called from the goroutine
// running [*Session.Run]. The zero value is invalid; use [NewSession].
type Session struct {
	cache            map[string][]netip.Addr
	cancelLookups    context.CancelFunc
	closeOnce        sync.Once
	dispatcher       *resolver.Dispatcher
	in               *shaping.Pipe
	includeLocalhost bool
	iterations       int
	lastActivity     time.Time
	listener         *listener
	logger           model.Logger
	lookupCtx        context.Context
	out              *shaping.Pipe
	output           *control.Output
	override         []netip.Addr
	pendingFlushes   int
	portmap          *config.PortMap
	reactor          *reactor.Reactor
	registry         *Registry
	requests         <-chan control.Request
	window           int
}

var _ shaping.Router = &Session{}

// NewSession resolves the forced destination, if any, creates the
// pipes, and starts listening. Errors wrapping [ErrListen] mean that
// the configured endpoint is not available.
func NewSession(ctx context.Context, cfg *Config) (*Session, error) {
	opts := cfg.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	portmap, err := config.ParsePortMappings(opts.MapPorts)
	if err != nil {
		return nil, err
	}
	logger := model.ValidLoggerOrDefault(cfg.Logger)

	reso := cfg.Resolver
	if reso == nil {
		reso = newResolver(opts)
	}

	var override []netip.Addr
	if opts.DestHost != "" {
		override, err = reso.LookupHost(ctx, opts.DestHost)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", opts.DestHost, err)
		}
		logger.Infof("redirecting connections to %s %v", opts.DestHost, override)
	}

	lookupCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cache:            make(map[string][]netip.Addr),
		cancelLookups:    cancel,
		closeOnce:        sync.Once{},
		includeLocalhost: opts.IncludeLocalhost,
		lastActivity:     time.Now(),
		logger:           logger,
		lookupCtx:        lookupCtx,
		output:           cfg.Output,
		override:         override,
		portmap:          portmap,
		reactor:          reactor.New(),
		registry:         NewRegistry(),
		requests:         cfg.Requests,
		window:           opts.Window,
	}
	s.in = shaping.NewPipe(&shaping.PipeConfig{
		Direction: shaping.DirectionIn,
		Latency:   opts.Latency(),
		Kbps:      config.EffectiveKbps(opts.InKbps),
		Logger:    logger,
		Observer:  metricsObserver{},
		Router:    s,
	})
	s.out = shaping.NewPipe(&shaping.PipeConfig{
		Direction: shaping.DirectionOut,
		Latency:   opts.Latency(),
		Kbps:      config.EffectiveKbps(opts.OutKbps),
		Logger:    logger,
		Observer:  metricsObserver{},
		Router:    s,
	})
	s.dispatcher = resolver.NewDispatcher(&resolver.DispatcherConfig{
		Observer: metricsObserver{},
		Resolver: reso,
		Sink:     s.out,
	})

	bindAddr, err := reactor.ResolveBindAddr(ctx, opts.Bind)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}
	fd, bound, err := reactor.Listen(netip.AddrPortFrom(bindAddr, uint16(opts.Port)), readChunkSize)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}
	s.listener = &listener{
		addr:   bound,
		fd:     fd,
		logger: logger,
		sess:   s,
	}
	s.reactor.Register(s.listener)
	logger.Infof("listening on %s", bound)
	return s, nil
}

func newResolver(opts *config.Options) model.Resolver {
	if opts.DNSServer != "" {
		return resolver.NewDNSServer(opts.DNSServer)
	}
	return &resolver.System{}
}

// Addr returns the endpoint we are listening on.
func (s *Session) Addr() netip.AddrPort {
	return s.listener.addr
}

// connLogger returns the logger for the given connection.
func (s *Session) connLogger(id int64) model.Logger {
	return logx.NewConnLogger(s.logger, id)
}

// shouldOverride returns whether connections go to the forced destination.
func (s *Session) shouldOverride(localhost bool) bool {
	return len(s.override) > 0 && (!localhost || s.includeLocalhost)
}

// attachDestination creates the destination half of a connection.
func (s *Session) attachDestination(id int64) {
	if conn := s.registry.Get(id); conn != nil && conn.Destination == nil {
		conn.Destination = newDestinationHandler(s, id)
	}
}

// Route implements shaping.Router.
func (s *Session) Route(side shaping.Side, msg shaping.Message) error {
	conn := s.registry.Get(msg.ConnID())
	if conn == nil {
		return shaping.ErrNoPeer
	}
	switch side {
	case shaping.SideClient:
		if conn.Client == nil {
			return shaping.ErrNoPeer
		}
		return conn.Client.HandleMessage(msg)
	default:
		if conn.Destination == nil {
			return shaping.ErrNoPeer
		}
		return conn.Destination.HandleMessage(msg)
	}
}

// Fail implements shaping.Router.
func (s *Session) Fail(connID int64, err error) {
	conn := s.registry.Get(connID)
	if conn == nil {
		return
	}
	s.connLogger(connID).Infof("closing connection: %s", err.Error())
	if client := conn.Client; client != nil {
		client.state = clientError
		client.close()
	}
	if destination := conn.Destination; destination != nil {
		destination.state = destinationError
		destination.close()
	}
}
