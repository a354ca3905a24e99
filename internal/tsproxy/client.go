package tsproxy

import (
	"fmt"
	"net/netip"

	"github.com/netshape/tsproxy/internal/reactor"
	"github.com/netshape/tsproxy/internal/shaping"
)

type clientState int

const (
	clientWaitingForHandshake clientState = iota
	clientWaitingForConnectRequest
	clientResolving
	clientConnecting
	clientConnected
	clientError
)

// clientHandler owns an accepted socket and speaks SOCKS5 with it.
type clientHandler struct {
	halfConn
	request *connectRequest
	state   clientState
}

var _ reactor.Handler = &clientHandler{}

func newClientHandler(sess *Session, id int64, fd int) *clientHandler {
	c := &clientHandler{
		halfConn: newHalfConn(sess, id, fd, shaping.SideClient, sess.in),
		state:    clientWaitingForHandshake,
	}
	c.self = c
	if err := reactor.SetNoDelay(fd); err != nil {
		c.logger.Debugf("cannot set TCP_NODELAY: %s", err.Error())
	}
	return c
}

// Readable implements reactor.Handler. We do not read while resolving or
// connecting so that early bytes wait in the kernel.
func (c *clientHandler) Readable() bool {
	if c.closed || c.readPaused {
		return false
	}
	switch c.state {
	case clientWaitingForHandshake, clientWaitingForConnectRequest, clientConnected:
		return true
	default:
		return false
	}
}

// Writable implements reactor.Handler.
func (c *clientHandler) Writable() bool {
	return !c.closed && len(c.wbuf) > 0
}

// OnReadable implements reactor.Handler.
func (c *clientHandler) OnReadable() {
	switch c.state {
	case clientWaitingForHandshake, clientWaitingForConnectRequest:
		c.readNegotiation()
	case clientConnected:
		c.readData()
	}
}

// OnWritable implements reactor.Handler.
func (c *clientHandler) OnWritable() {
	c.writePending()
}

// OnError implements reactor.Handler.
func (c *clientHandler) OnError(err error) {
	c.logger.Infof("client socket error: %s", err.Error())
	c.state = clientError
	c.close()
}

// OnClose implements reactor.Handler.
func (c *clientHandler) OnClose() {
	c.logger.Info("client hung up")
	c.state = clientError
	c.close()
}

// HandleMessage handles a message released by the server->client pipe.
func (c *clientHandler) HandleMessage(msg shaping.Message) error {
	switch m := msg.(type) {
	case *shaping.Data:
		if c.state == clientConnected {
			c.onData(m)
		}
	case *shaping.Ack:
		c.onAck()
	case *shaping.Resolved:
		c.onResolved(m)
	case *shaping.Connected:
		c.onConnected(m)
	case *shaping.Closed:
		c.onPeerClosed()
	default:
		return fmt.Errorf("%w: %s for the client", errUnexpectedMessage, msg.Kind())
	}
	return nil
}

// readNegotiation reads and handles one handshake or request message.
func (c *clientHandler) readNegotiation() {
	count, err := reactor.Read(c.fd, c.rbuf)
	if reactor.WouldBlock(err) {
		return
	}
	if err != nil {
		c.logger.Infof("client read: %s", err.Error())
		c.state = clientError
		c.close()
		return
	}
	if count == 0 {
		c.logger.Info("client closed the connection during negotiation")
		c.state = clientError
		c.close()
		return
	}
	data := c.rbuf[:count]

	if c.state == clientWaitingForHandshake {
		if err := parseHandshake(data); err != nil {
			c.reject(err)
			return
		}
		c.logger.Info("new SOCKS5 client")
		c.wbuf = append(c.wbuf, handshakeReply()...)
		c.state = clientWaitingForConnectRequest
		return
	}

	req, err := parseConnectRequest(data)
	if err != nil {
		c.reject(err)
		return
	}
	c.request = req
	c.sess.attachDestination(c.id)

	if req.Hostname == "" {
		c.logger.Infof("CONNECT %s", netip.AddrPortFrom(req.Addr, req.Port))
		c.state = clientConnecting
		c.send(&shaping.Connect{ID: c.id, Addresses: []netip.Addr{req.Addr}, Port: req.Port})
		return
	}
	c.logger.Infof("CONNECT %s:%d", req.Hostname, req.Port)
	if addrs, found := c.sess.cache[req.Hostname]; found {
		c.state = clientConnecting
		c.send(&shaping.Connect{ID: c.id, Addresses: addrs, Port: req.Port})
		return
	}
	c.state = clientResolving
	c.send(&shaping.Resolve{ID: c.id, Hostname: req.Hostname, Port: req.Port})
}

// reject handles a protocol violation: no reply, immediate close.
func (c *clientHandler) reject(err error) {
	c.logger.Infof("rejecting client: %s", err.Error())
	c.state = clientError
	c.close()
}

// replyAndClose sends a final reply and closes once it is written.
func (c *clientHandler) replyAndClose(code uint8) {
	c.state = clientError
	c.wbuf = append(c.wbuf, newReply(code, c.request.Echo)...)
	c.needsClose = true
}

func (c *clientHandler) onResolved(msg *shaping.Resolved) {
	if c.state != clientResolving {
		return
	}
	if len(msg.Addresses) <= 0 {
		c.logger.Infof("cannot resolve %s", c.request.Hostname)
		c.replyAndClose(hostUnreachableReply)
		return
	}
	c.sess.cache[c.request.Hostname] = msg.Addresses
	c.logger.Debugf("resolved %s, connecting", c.request.Hostname)
	c.state = clientConnecting
	c.send(&shaping.Connect{ID: c.id, Addresses: msg.Addresses, Port: c.request.Port})
}

func (c *clientHandler) onConnected(msg *shaping.Connected) {
	if c.state != clientConnecting {
		return
	}
	if !msg.Success {
		c.logger.Info("cannot connect to the destination")
		c.replyAndClose(hostUnreachableReply)
		return
	}
	c.logger.Debugf("connected to %s", msg.Address)
	c.state = clientConnected
	c.wbuf = append(c.wbuf, newReply(successReply, c.request.Echo)...)
}
