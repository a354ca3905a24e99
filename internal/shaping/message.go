package shaping

//
// Messages exchanged by the two halves of a connection
//

import (
	"fmt"
	"net/netip"
)

// Kind is the kind of a [Message].
type Kind int

const (
	// KindData carries bytes read from a socket.
	KindData Kind = iota

	// KindAck acknowledges one [Data] message.
	KindAck

	// KindResolve asks the destination half to resolve a hostname.
	KindResolve

	// KindResolved carries the result of a resolution.
	KindResolved

	// KindConnect asks the destination half to connect.
	KindConnect

	// KindConnected carries the result of a connect.
	KindConnected

	// KindClosed notifies that the sending half is gone.
	KindClosed
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAck:
		return "ack"
	case KindResolve:
		return "resolve"
	case KindResolved:
		return "resolved"
	case KindConnect:
		return "connect"
	case KindConnected:
		return "connected"
	case KindClosed:
		return "closed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is a message travelling through a [Pipe]. The set of
// implementations is closed: it only contains the types in this file.
type Message interface {
	// ConnID returns the ID of the connection the message belongs to.
	ConnID() int64

	// Kind returns the message kind.
	Kind() Kind

	// Size returns the payload size in bytes.
	Size() int

	sealed()
}

// Data carries bytes read from a socket.
type Data struct {
	ID    int64
	Bytes []byte
}

// Ack acknowledges the reception of a [Data] message.
type Ack struct {
	ID int64
}

// Resolve asks the destination half to resolve Hostname.
type Resolve struct {
	ID       int64
	Hostname string
	Port     uint16
}

// Resolved carries the addresses of a [Resolve]. An empty
// list means the resolution failed.
type Resolved struct {
	ID        int64
	Addresses []netip.Addr
}

// Connect asks the destination half to connect to Addresses[0]:Port.
type Connect struct {
	ID        int64
	Addresses []netip.Addr
	Port      uint16
}

// Connected is the outcome of a [Connect].
type Connected struct {
	ID      int64
	Success bool
	Address netip.AddrPort
}

// Closed tells the peer half that the sender is gone.
type Closed struct {
	ID int64
}

var (
	_ Message = &Data{}
	_ Message = &Ack{}
	_ Message = &Resolve{}
	_ Message = &Resolved{}
	_ Message = &Connect{}
	_ Message = &Connected{}
	_ Message = &Closed{}
)

func (m *Data) ConnID() int64      { return m.ID }
func (m *Ack) ConnID() int64       { return m.ID }
func (m *Resolve) ConnID() int64   { return m.ID }
func (m *Resolved) ConnID() int64  { return m.ID }
func (m *Connect) ConnID() int64   { return m.ID }
func (m *Connected) ConnID() int64 { return m.ID }
func (m *Closed) ConnID() int64    { return m.ID }

func (m *Data) Kind() Kind      { return KindData }
func (m *Ack) Kind() Kind       { return KindAck }
func (m *Resolve) Kind() Kind   { return KindResolve }
func (m *Resolved) Kind() Kind  { return KindResolved }
func (m *Connect) Kind() Kind   { return KindConnect }
func (m *Connected) Kind() Kind { return KindConnected }
func (m *Closed) Kind() Kind    { return KindClosed }

func (m *Data) Size() int      { return len(m.Bytes) }
func (m *Ack) Size() int       { return 0 }
func (m *Resolve) Size() int   { return 0 }
func (m *Resolved) Size() int  { return 0 }
func (m *Connect) Size() int   { return 0 }
func (m *Connected) Size() int { return 0 }
func (m *Closed) Size() int    { return 0 }

func (*Data) sealed()      {}
func (*Ack) sealed()       {}
func (*Resolve) sealed()   {}
func (*Resolved) sealed()  {}
func (*Connect) sealed()   {}
func (*Connected) sealed() {}
func (*Closed) sealed()    {}
