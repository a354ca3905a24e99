package tsproxy

import (
	"fmt"
	"net/netip"

	"github.com/netshape/tsproxy/internal/reactor"
	"github.com/netshape/tsproxy/internal/shaping"
)

type destinationState int

const (
	destinationIdle destinationState = iota
	destinationResolving
	destinationConnecting
	destinationConnected
	destinationError
)

// localhostAddr is the address identifying loopback destinations.
var localhostAddr = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// destinationHandler owns the socket connected to the real destination.
type destinationHandler struct {
	halfConn
	address   netip.AddrPort
	localhost bool
	resolved  bool
	state     destinationState
}

var _ reactor.Handler = &destinationHandler{}

func newDestinationHandler(sess *Session, id int64) *destinationHandler {
	d := &destinationHandler{
		halfConn: newHalfConn(sess, id, -1, shaping.SideDestination, sess.out),
		state:    destinationIdle,
	}
	d.self = d
	return d
}

// Readable implements reactor.Handler.
func (d *destinationHandler) Readable() bool {
	return !d.closed && !d.readPaused && d.state == destinationConnected
}

// Writable implements reactor.Handler.
func (d *destinationHandler) Writable() bool {
	if d.closed {
		return false
	}
	return d.state == destinationConnecting || (d.state == destinationConnected && len(d.wbuf) > 0)
}

// OnReadable implements reactor.Handler.
func (d *destinationHandler) OnReadable() {
	d.readData()
}

// OnWritable implements reactor.Handler.
func (d *destinationHandler) OnWritable() {
	if d.state == destinationConnecting {
		if err := reactor.SocketError(d.fd); err != nil {
			d.connectFailed(err)
			return
		}
		d.state = destinationConnected
		if err := reactor.SetNoDelay(d.fd); err != nil {
			d.logger.Debugf("cannot set TCP_NODELAY: %s", err.Error())
		}
		d.logger.Infof("connected to %s", d.address)
		d.send(&shaping.Connected{ID: d.id, Success: true, Address: d.address})
	}
	d.writePending()
}

// OnError implements reactor.Handler.
func (d *destinationHandler) OnError(err error) {
	if d.state == destinationConnecting {
		d.connectFailed(err)
		return
	}
	d.logger.Infof("destination socket error: %s", err.Error())
	d.state = destinationError
	d.close()
}

// OnClose implements reactor.Handler.
func (d *destinationHandler) OnClose() {
	if d.state == destinationConnecting {
		d.connectFailed(errHangup)
		return
	}
	d.logger.Info("destination hung up")
	d.state = destinationError
	d.close()
}

// HandleMessage handles a message released by the client->server pipe.
func (d *destinationHandler) HandleMessage(msg shaping.Message) error {
	switch m := msg.(type) {
	case *shaping.Data:
		if d.state == destinationConnected {
			d.onData(m)
		}
	case *shaping.Ack:
		d.onAck()
	case *shaping.Resolve:
		d.onResolve(m)
	case *shaping.Connect:
		d.onConnect(m)
	case *shaping.Closed:
		d.onPeerClosed()
	default:
		return fmt.Errorf("%w: %s for the destination", errUnexpectedMessage, msg.Kind())
	}
	return nil
}

func (d *destinationHandler) onResolve(msg *shaping.Resolve) {
	d.resolved = true
	hostname := msg.Hostname
	d.logger.Infof("resolving %s:%d", hostname, msg.Port)
	if hostname == "localhost" {
		hostname = localhostAddr.String()
	}
	if hostname == localhostAddr.String() {
		d.logger.Info("connection to localhost detected")
		d.localhost = true
	}
	if d.sess.shouldOverride(d.localhost) {
		d.send(&shaping.Resolved{ID: d.id, Addresses: d.sess.override})
		return
	}
	d.state = destinationResolving
	d.sess.dispatcher.Dispatch(d.sess.lookupCtx, d.logger, &shaping.Resolve{
		ID:       d.id,
		Hostname: hostname,
		Port:     msg.Port,
	})
}

func (d *destinationHandler) onConnect(msg *shaping.Connect) {
	if len(msg.Addresses) <= 0 || d.closed {
		return
	}
	d.state = destinationConnecting
	if !d.resolved && msg.Addresses[0].Unmap() == localhostAddr {
		d.logger.Info("connection to localhost detected")
		d.localhost = true
	}
	addr := msg.Addresses[0]
	if d.sess.shouldOverride(d.localhost) {
		addr = d.sess.override[0]
	}
	port := msg.Port
	if !d.localhost || d.sess.includeLocalhost {
		port = d.sess.portmap.Map(port)
	}
	d.address = netip.AddrPortFrom(addr.Unmap(), port)
	d.logger.Infof("connecting to %s", d.address)
	fd, err := reactor.Connect(d.address)
	if err != nil {
		d.connectFailed(err)
		return
	}
	d.fd = fd
	d.sess.reactor.Register(d)
}

// connectFailed reports the failure to the client and closes.
func (d *destinationHandler) connectFailed(err error) {
	d.logger.Infof("connect to %s: %s", d.address, err.Error())
	d.state = destinationError
	d.send(&shaping.Connected{ID: d.id, Success: false, Address: d.address})
	d.close()
}
