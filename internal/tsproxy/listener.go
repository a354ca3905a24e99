package tsproxy

import (
	"net/netip"

	"github.com/netshape/tsproxy/internal/model"
	"github.com/netshape/tsproxy/internal/reactor"
)

// listener accepts client connections and registers them.
type listener struct {
	addr   netip.AddrPort
	fd     int
	logger model.Logger
	sess   *Session
}

var _ reactor.Handler = &listener{}

// FD implements reactor.Handler.
func (l *listener) FD() int {
	return l.fd
}

// Readable implements reactor.Handler.
func (l *listener) Readable() bool {
	return l.fd >= 0
}

// Writable implements reactor.Handler.
func (l *listener) Writable() bool {
	return false
}

// OnReadable implements reactor.Handler.
func (l *listener) OnReadable() {
	for {
		fd, peer, err := reactor.Accept(l.fd)
		if reactor.WouldBlock(err) {
			return
		}
		if err != nil {
			l.logger.Warnf("listener: %s", err.Error())
			return
		}
		conn := l.sess.registry.Add()
		metricConnectionsAccepted.Inc()
		conn.Client = newClientHandler(l.sess, conn.ID, fd)
		conn.Client.logger.Infof("incoming connection from %s", peer)
		l.sess.reactor.Register(conn.Client)
	}
}

// OnWritable implements reactor.Handler.
func (l *listener) OnWritable() {}

// OnError implements reactor.Handler.
func (l *listener) OnError(err error) {
	l.logger.Warnf("listener: %s", err.Error())
}

// OnClose implements reactor.Handler.
func (l *listener) OnClose() {}

func (l *listener) close() {
	if l.fd < 0 {
		return
	}
	l.sess.reactor.Unregister(l)
	reactor.Close(l.fd)
	l.fd = -1
}
