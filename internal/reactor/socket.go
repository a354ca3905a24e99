package reactor

//
// Non-blocking socket helpers
//

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrUnsupportedAddress indicates a socket address we cannot convert.
var ErrUnsupportedAddress = errors.New("reactor: unsupported socket address")

// ResolveBindAddr returns the address to bind for host, preferring IPv4
// when host is a name resolving to both families.
func ResolveBindAddr(ctx context.Context, host string) (netip.Addr, error) {
	if host == "" {
		return netip.IPv4Unspecified(), nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		if addr.Unmap().Is4() {
			return addr.Unmap(), nil
		}
	}
	if len(addrs) <= 0 {
		return netip.Addr{}, fmt.Errorf("reactor: no addresses for %s", host)
	}
	return addrs[0], nil
}

// Listen creates a non-blocking listening TCP socket bound to addr with
// SO_REUSEADDR set and returns the descriptor and the bound endpoint.
// A positive recvBuffer sets SO_RCVBUF before bind, so that accepted
// sockets inherit it and negotiate their window accordingly.
func Listen(addr netip.AddrPort, recvBuffer int) (int, netip.AddrPort, error) {
	fd, err := newSocket(addr.Addr())
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("reactor: setsockopt SO_REUSEADDR: %w", err)
	}
	if recvBuffer > 0 {
		if err := SetRecvBuffer(fd, recvBuffer); err != nil {
			unix.Close(fd)
			return -1, netip.AddrPort{}, fmt.Errorf("reactor: setsockopt SO_RCVBUF: %w", err)
		}
	}
	if err := unix.Bind(fd, toSockaddr(addr)); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("reactor: bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("reactor: listen %s: %w", addr, err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("reactor: getsockname: %w", err)
	}
	bound, err := fromSockaddr(sa)
	if err != nil {
		unix.Close(fd)
		return -1, netip.AddrPort{}, err
	}
	return fd, bound, nil
}

// Accept accepts a connection on a listening descriptor and makes it
// non-blocking. It returns an error wrapping [unix.EAGAIN] when there are
// no pending connections.
func Accept(fd int) (int, netip.AddrPort, error) {
	for {
		nfd, sa, err := unix.Accept(fd)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return -1, netip.AddrPort{}, fmt.Errorf("reactor: accept: %w", err)
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return -1, netip.AddrPort{}, fmt.Errorf("reactor: set nonblock: %w", err)
		}
		peer, _ := fromSockaddr(sa)
		return nfd, peer, nil
	}
}

// Connect creates a non-blocking TCP socket and starts connecting it to
// addr. A nil error means the connect is in progress or completed; the
// outcome is known when the descriptor becomes writable (see [SocketError]).
func Connect(addr netip.AddrPort) (int, error) {
	fd, err := newSocket(addr.Addr())
	if err != nil {
		return -1, err
	}
	err = unix.Connect(fd, toSockaddr(addr))
	if err == nil || errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EINTR) {
		return fd, nil
	}
	unix.Close(fd)
	return -1, fmt.Errorf("reactor: connect %s: %w", addr, err)
}

// SocketError returns the pending error on the socket, if any.
func SocketError(fd int) error {
	value, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("reactor: getsockopt SO_ERROR: %w", err)
	}
	if value != 0 {
		return unix.Errno(value)
	}
	return nil
}

// SetNoDelay disables Nagle's algorithm.
func SetNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// SetRecvBuffer sets the size of the kernel receive buffer. Shrinking it on
// a connected socket does not renegotiate the window; use [Listen] instead.
func SetRecvBuffer(fd int, size int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}

// Read reads from fd, retrying on EINTR. Like a blocking read, a zero
// count with a nil error means the peer closed the connection.
func Read(fd int, buffer []byte) (int, error) {
	for {
		count, err := unix.Read(fd, buffer)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return count, nil
	}
}

// Write writes to fd, retrying on EINTR, and returns the number of
// bytes the kernel accepted.
func Write(fd int, buffer []byte) (int, error) {
	for {
		count, err := unix.Write(fd, buffer)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return count, nil
	}
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// WouldBlock returns whether err means the operation should be retried
// when the descriptor is ready again.
func WouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func newSocket(addr netip.Addr) (int, error) {
	family := unix.AF_INET
	if addr.Is6() && !addr.Is4In6() {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("reactor: socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: set nonblock: %w", err)
	}
	return fd, nil
}

func toSockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	if zone := ip.Zone(); zone != "" {
		if iface, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(iface.Index)
		}
	}
	return sa
}

func fromSockaddr(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr).Unmap(), uint16(v.Port)), nil
	default:
		return netip.AddrPort{}, ErrUnsupportedAddress
	}
}
