package tsproxy

import (
	"github.com/netshape/tsproxy/internal/config"
	"github.com/netshape/tsproxy/internal/model"
	"github.com/netshape/tsproxy/internal/reactor"
	"github.com/netshape/tsproxy/internal/shaping"
)

// readChunkSize is the payload of a TCP segment in a 1500-byte frame.
const readChunkSize = 1460

// halfConn contains the socket handling shared by the two halves of a
// connection: window-gated reads, buffered writes, and deferred close.
type halfConn struct {
	// closed is true once close has run.
	closed bool

	// fd is the socket or -1 before connecting and after closing.
	fd int

	id     int64
	logger model.Logger

	// needsClose defers closing until wbuf drains.
	needsClose bool

	// pipe is the pipe carrying what this half sends.
	pipe *shaping.Pipe

	// readPaused is true when the window was exhausted.
	readPaused bool

	rbuf []byte

	// self is the handler embedding this struct, as registered in the reactor.
	self reactor.Handler

	sess *Session
	side shaping.Side
	wbuf []byte

	// window is the number of reads we may still send unacknowledged.
	window int
}

func newHalfConn(sess *Session, id int64, fd int, side shaping.Side, pipe *shaping.Pipe) halfConn {
	return halfConn{
		fd:     fd,
		id:     id,
		logger: sess.connLogger(id),
		pipe:   pipe,
		rbuf:   make([]byte, readChunkSize),
		sess:   sess,
		side:   side,
		window: sess.window,
	}
}

// FD implements reactor.Handler.
func (c *halfConn) FD() int {
	return c.fd
}

func (c *halfConn) send(msg shaping.Message) {
	c.pipe.Enqueue(msg)
}

// onData buffers the payload for writing and acknowledges it.
func (c *halfConn) onData(msg *shaping.Data) {
	if c.needsClose || len(msg.Bytes) <= 0 {
		return
	}
	c.wbuf = append(c.wbuf, msg.Bytes...)
	c.send(&shaping.Ack{ID: c.id})
}

// onAck grows the window and resumes a paused reader.
func (c *halfConn) onAck() {
	c.window = min(c.window+2, config.MaxWindow)
	if c.readPaused {
		c.readData()
	}
}

// onPeerClosed closes now or once the pending writes are done.
func (c *halfConn) onPeerClosed() {
	if len(c.wbuf) <= 0 {
		c.close()
		return
	}
	c.needsClose = true
}

// readData reads chunks and sends them to the peer while the window allows.
func (c *halfConn) readData() {
	if c.window <= 0 {
		c.readPaused = true
		return
	}
	c.readPaused = false
	for c.window > 0 {
		count, err := reactor.Read(c.fd, c.rbuf)
		if reactor.WouldBlock(err) {
			return
		}
		if err != nil {
			c.logger.Infof("%s read: %s", c.side, err.Error())
			c.close()
			return
		}
		if count == 0 {
			c.logger.Infof("%s connection closed", c.side)
			c.close()
			return
		}
		c.window--
		c.logger.Debugf("%s => %d byte(s)", c.side, count)
		c.send(&shaping.Data{ID: c.id, Bytes: append([]byte{}, c.rbuf[:count]...)})
	}
	c.readPaused = true
}

// writePending writes as much of wbuf as the socket accepts.
func (c *halfConn) writePending() {
	if len(c.wbuf) > 0 {
		count, err := reactor.Write(c.fd, c.wbuf)
		if reactor.WouldBlock(err) {
			return
		}
		if err != nil {
			c.logger.Infof("%s write: %s", c.side, err.Error())
			c.close()
			return
		}
		c.logger.Debugf("%s <= %d byte(s)", c.side, count)
		c.wbuf = c.wbuf[count:]
	}
	if len(c.wbuf) <= 0 {
		c.wbuf = nil
		if c.needsClose {
			c.close()
		}
	}
}

// close releases the socket and detaches this half from the registry,
// notifying the peer half when it still exists.
func (c *halfConn) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.needsClose = false
	c.wbuf = nil
	if c.fd >= 0 {
		c.sess.reactor.Unregister(c.self)
		reactor.Close(c.fd)
		c.fd = -1
	}
	if c.sess.registry.Detach(c.id, c.side) {
		c.send(&shaping.Closed{ID: c.id})
		return
	}
	c.logger.Debug("connection removed")
}
