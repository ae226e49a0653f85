package iplink

import (
	"net/netip"
	"sync"

	"github.com/usrnet/inetd/inet"
)

// Loopback is an in-process link that reflects every sent PDU back into
// the receive path. It has no link-layer address, so IPv6 neighbour
// translation over it short-circuits to a zero MAC.
type Loopback struct {
	mtu uint32

	mu sync.Mutex
	ev Events
}

// NewLoopback returns a loopback link with the given MTU.
func NewLoopback(mtu uint32) *Loopback {
	return &Loopback{mtu: mtu}
}

func (l *Loopback) Open(ev Events) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ev = ev
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ev = nil
	return nil
}

func (l *Loopback) MTU() (uint32, error) { return l.mtu, nil }

func (l *Loopback) MAC48() (inet.MAC, error) {
	return inet.MAC{}, inet.ErrNotSupported
}

func (l *Loopback) AddrAdd(addr netip.Prefix) error  { return nil }
func (l *Loopback) AddrRemove(addr netip.Addr) error { return nil }

func (l *Loopback) deliver(data []byte, ver uint8) error {
	l.mu.Lock()
	ev := l.ev
	l.mu.Unlock()
	if ev == nil {
		return inet.ErrLinkFailure
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return ev.Recv(buf, ver)
}

func (l *Loopback) Send(sdu *SDU) error {
	return l.deliver(sdu.Data, 4)
}

func (l *Loopback) Send6(sdu *SDU6) error {
	return l.deliver(sdu.Data, 6)
}

// StaticDiscoverer serves a fixed set of links, useful for wiring the
// built-in drivers and for tests. Links added after construction become
// visible on the next discovery pass; AddLink fires the change callback.
type StaticDiscoverer struct {
	mu     sync.Mutex
	svcs   []Service
	links  map[uint64]Link
	notify func()
	nextID uint64
}

// NewStaticDiscoverer returns an empty discoverer.
func NewStaticDiscoverer() *StaticDiscoverer {
	return &StaticDiscoverer{links: make(map[uint64]Link)}
}

// AddLink registers a link under a service name and returns its ID.
func (d *StaticDiscoverer) AddLink(name string, l Link) uint64 {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.svcs = append(d.svcs, Service{ID: id, Name: name})
	d.links[id] = l
	notify := d.notify
	d.mu.Unlock()

	if notify != nil {
		notify()
	}
	return id
}

func (d *StaticDiscoverer) Services() ([]Service, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Service(nil), d.svcs...), nil
}

func (d *StaticDiscoverer) Connect(id uint64) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.links[id]
	if !ok {
		return nil, inet.ErrNotFound
	}
	return l, nil
}

func (d *StaticDiscoverer) Notify(fn func()) {
	d.mu.Lock()
	d.notify = fn
	d.mu.Unlock()
}
