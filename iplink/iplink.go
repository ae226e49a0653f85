// Package iplink defines the downward-facing interface to IP link drivers
// and provides the drivers shipped with the service: an in-process
// loopback link and a Linux TUN device link.
package iplink

import (
	"net/netip"

	"github.com/usrnet/inetd/inet"
)

// SDU is one IPv4 service data unit handed to a link for transmission.
type SDU struct {
	Src  netip.Addr
	Dest netip.Addr
	Data []byte
}

// SDU6 is one IPv6 service data unit, addressed at the link layer.
type SDU6 struct {
	Dest inet.MAC
	Data []byte
}

// Events is implemented by the link's consumer. Recv is called once per
// received PDU, in arrival order, with ver the IP version parsed from the
// frame. ChangeAddr reports a link-layer address change.
type Events interface {
	Recv(data []byte, ver uint8) error
	ChangeAddr(mac inet.MAC)
}

// Link is the per-device interface exposed by a link driver. Open must be
// called exactly once before any other operation; drivers deliver Recv
// events only while open. All calls may block on the underlying device
// and must be made with no service lock held.
type Link interface {
	Open(ev Events) error
	Close() error

	MTU() (uint32, error)
	// MAC48 returns the link-layer address, or ErrNotSupported for links
	// without one.
	MAC48() (inet.MAC, error)

	AddrAdd(addr netip.Prefix) error
	AddrRemove(addr netip.Addr) error

	// Send transmits an IPv4 PDU; Send6 an IPv6 PDU to a resolved
	// link-layer destination.
	Send(sdu *SDU) error
	Send6(sdu *SDU6) error
}

// Service names a link service visible to discovery.
type Service struct {
	ID   uint64
	Name string
}

// Discoverer enumerates link services and connects to them. The service
// registry runs discovery at startup and again on every change
// notification.
type Discoverer interface {
	// Services lists the currently visible link services.
	Services() ([]Service, error)
	// Connect opens a driver session for one service.
	Connect(id uint64) (Link, error)
	// Notify registers a callback invoked whenever the set of services
	// may have changed. A nil callback clears it.
	Notify(fn func())
}
