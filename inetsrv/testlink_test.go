package inetsrv_test

import (
	"net/netip"
	"sync"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/iplink"
)

// testLink is a scriptable link driver: it records every SDU handed to
// it, optionally reflects IPv4 sends back into the receive path, and
// lets tests inject arbitrary PDUs.
type testLink struct {
	mtu      uint32
	mac      inet.MAC
	macValid bool
	// echo reflects IPv4 sends back into Recv, like a loopback wire.
	echo bool
	// onSend6 runs after each Send6 with the recorded SDU.
	onSend6 func(sdu iplink.SDU6)

	mu    sync.Mutex
	ev    iplink.Events
	sent  []iplink.SDU
	sent6 []iplink.SDU6
}

func (l *testLink) Open(ev iplink.Events) error {
	l.mu.Lock()
	l.ev = ev
	l.mu.Unlock()
	return nil
}

func (l *testLink) Close() error { return nil }

func (l *testLink) MTU() (uint32, error) { return l.mtu, nil }

func (l *testLink) MAC48() (inet.MAC, error) {
	if !l.macValid {
		return inet.MAC{}, inet.ErrNotSupported
	}
	return l.mac, nil
}

func (l *testLink) AddrAdd(addr netip.Prefix) error  { return nil }
func (l *testLink) AddrRemove(addr netip.Addr) error { return nil }

func (l *testLink) Send(sdu *iplink.SDU) error {
	l.mu.Lock()
	l.sent = append(l.sent, *sdu)
	ev := l.ev
	l.mu.Unlock()

	if l.echo && ev != nil {
		data := make([]byte, len(sdu.Data))
		copy(data, sdu.Data)
		ev.Recv(data, 4)
	}
	return nil
}

func (l *testLink) Send6(sdu *iplink.SDU6) error {
	l.mu.Lock()
	l.sent6 = append(l.sent6, *sdu)
	hook := l.onSend6
	l.mu.Unlock()

	if hook != nil {
		hook(*sdu)
	}
	return nil
}

// inject delivers a PDU as if it had arrived from the wire.
func (l *testLink) inject(data []byte, ver uint8) error {
	l.mu.Lock()
	ev := l.ev
	l.mu.Unlock()
	return ev.Recv(data, ver)
}

func (l *testLink) sentPDUs() []iplink.SDU {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]iplink.SDU(nil), l.sent...)
}

func (l *testLink) sentPDU6s() []iplink.SDU6 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]iplink.SDU6(nil), l.sent6...)
}

// failLink refuses address installation, for create-rollback tests.
type failLink struct {
	testLink
}

func (l *failLink) AddrAdd(addr netip.Prefix) error {
	return inet.ErrLinkFailure
}

// sinkFunc adapts a function to the EventSink interface.
type sinkFunc func(dgram *inet.Datagram) error

func (f sinkFunc) RecvEvent(dgram *inet.Datagram) error { return f(dgram) }

// recordDHCP records which links were offered to DHCP.
type recordDHCP struct {
	mu    sync.Mutex
	links []uint64
}

func (d *recordDHCP) LinkAdd(linkID uint64) error {
	d.mu.Lock()
	d.links = append(d.links, linkID)
	d.mu.Unlock()
	return nil
}

func (d *recordDHCP) calls() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.links...)
}
