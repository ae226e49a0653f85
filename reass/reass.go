// Package reass buffers datagram fragments per (source, destination,
// protocol, identification) until the datagram is complete, then hands
// the reassembled datagram to the local delivery path.
package reass

import (
	"log"
	"net/netip"
	"sync"
	"time"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/metrics"
)

// maxDatagram bounds the reassembled size to what the 13-bit fragment
// offset field can address.
const maxDatagram = 8 * (1 << 13)

// DefaultMaxAge is how long an incomplete group may keep buffering
// fragments before it is discarded. The wire protocol has no such limit;
// the bound exists to keep a trickle of orphan fragments from pinning
// memory forever.
const DefaultMaxAge = 60 * time.Second

// DeliverFunc receives each reassembled datagram.
type DeliverFunc func(dgram *inet.Datagram, proto uint8) error

type key struct {
	src   netip.Addr
	dest  netip.Addr
	proto uint8
	ident uint16
}

type group struct {
	// frags is sorted ascending by FragOffs.
	frags []*inet.Packet
	timer *time.Timer
}

// Queue is the reassembly engine.
type Queue struct {
	deliver DeliverFunc
	maxAge  time.Duration

	mu     sync.Mutex
	groups map[key]*group
}

// NewQueue returns a reassembly queue delivering through fn.
func NewQueue(fn DeliverFunc) *Queue {
	return &Queue{
		deliver: fn,
		maxAge:  DefaultMaxAge,
		groups:  make(map[key]*group),
	}
}

// SetMaxAge changes the aging deadline for groups created afterwards.
func (q *Queue) SetMaxAge(d time.Duration) {
	q.mu.Lock()
	q.maxAge = d
	q.mu.Unlock()
}

// Add inserts one fragment. The fragment payload is copied; the caller
// keeps ownership of the packet buffer. When the insertion completes a
// datagram, it is delivered before Add returns.
func (q *Queue) Add(p *inet.Packet) error {
	k := key{src: p.Src, dest: p.Dest, proto: p.Proto, ident: p.Ident}

	q.mu.Lock()
	g, ok := q.groups[k]
	if !ok {
		g = &group{}
		g.timer = time.AfterFunc(q.maxAge, func() { q.expire(k, g) })
		q.groups[k] = g
	}

	g.insert(p)

	if !g.complete() {
		q.mu.Unlock()
		return nil
	}

	delete(q.groups, k)
	g.timer.Stop()
	q.mu.Unlock()

	dgram, proto, err := g.assemble()
	if err != nil {
		return err
	}
	metrics.ReassembledTotal.Inc()
	return q.deliver(dgram, proto)
}

func (q *Queue) expire(k key, g *group) {
	q.mu.Lock()
	if cur, ok := q.groups[k]; ok && cur == g {
		delete(q.groups, k)
		metrics.ReassemblyExpiredTotal.Inc()
		log.Printf("reass: dropped incomplete datagram %v -> %v proto %d ident %#x",
			k.src, k.dest, k.proto, k.ident)
	}
	q.mu.Unlock()
}

// insert places the fragment before the first queued fragment with an
// offset not smaller than its own, copying the payload.
func (g *group) insert(p *inet.Packet) {
	frag := *p
	frag.Data = make([]byte, len(p.Data))
	copy(frag.Data, p.Data)

	pos := len(g.frags)
	for i, f := range g.frags {
		if f.FragOffs >= frag.FragOffs {
			pos = i
			break
		}
	}
	g.frags = append(g.frags, nil)
	copy(g.frags[pos+1:], g.frags[pos:])
	g.frags[pos] = &frag
}

// complete reports whether the fragments cover a whole datagram: offset
// zero first, no gap between neighbours (overlap tolerated), terminated
// by a fragment with MF clear.
func (g *group) complete() bool {
	if g.frags[0].FragOffs != 0 {
		return false
	}
	prev := g.frags[0]
	if !prev.MF {
		return true
	}
	for _, f := range g.frags[1:] {
		if f.FragOffs > prev.FragOffs+len(prev.Data) {
			return false
		}
		if !f.MF {
			return true
		}
		prev = f
	}
	return false
}

// assemble concatenates the fragment payloads. On ranges covered by more
// than one fragment the earlier fragment's bytes win.
func (g *group) assemble() (*inet.Datagram, uint8, error) {
	// The earliest fragment with MF clear ends the datagram; anything
	// sorted after it is ignored.
	var last *inet.Packet
	for _, f := range g.frags {
		if !f.MF {
			last = f
			break
		}
	}

	size := last.FragOffs + len(last.Data)
	if size > maxDatagram {
		return nil, 0, inet.ErrOverflow
	}

	first := g.frags[0]
	dgram := &inet.Datagram{
		LinkID: first.LinkID,
		Src:    first.Src,
		Dest:   first.Dest,
		TOS:    first.TOS,
		Data:   make([]byte, size),
	}

	filled := 0
	for _, f := range g.frags {
		cb := f.FragOffs
		if cb < filled {
			cb = filled
		}
		ce := f.FragOffs + len(f.Data)
		if ce > size {
			ce = size
		}
		if ce > cb {
			copy(dgram.Data[cb:ce], f.Data[cb-f.FragOffs:])
			filled = ce
		}
		if !f.MF {
			break
		}
	}

	return dgram, first.Proto, nil
}
