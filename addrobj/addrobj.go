// Package addrobj keeps the table of address objects: named logical
// addresses bound to an IP link.
package addrobj

import (
	"net/netip"
	"sync"

	"github.com/usrnet/inetd/inet"
)

// FindMode selects how Find matches an address against the table.
type FindMode int

const (
	// FindNet matches when the address falls within the object's network.
	FindNet FindMode = iota
	// FindExact matches the object's own address only.
	FindExact
)

// AddrObj is one named address bound to a link. Temp entries are
// auto-configured and never persisted.
type AddrObj struct {
	ID     uint64
	NAddr  netip.Prefix
	LinkID uint64
	Name   string
	Temp   bool
}

// Addr returns the object's own address (the network address without the
// prefix).
func (a *AddrObj) Addr() netip.Addr {
	return a.NAddr.Addr()
}

// Table is the address-object table. All methods are safe for concurrent
// use; entries handed out are copies.
type Table struct {
	mu     sync.Mutex
	addrs  []*AddrObj
	nextID uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// AllocID reserves the next object identifier without inserting anything.
// Loaded configurations keep their stored identifiers by passing a
// non-zero ID to Add.
func (t *Table) AllocID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}

// Add inserts an object, allocating its ID when a.ID is zero; a non-zero
// ID is kept and the allocator moves past it. It fails with ErrDuplicate
// when the (link, name) pair is already present.
func (t *Table) Add(a *AddrObj) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.findByNameLocked(a.Name, a.LinkID) != nil {
		return inet.ErrDuplicate
	}
	if a.ID == 0 {
		t.nextID++
		a.ID = t.nextID
	} else if a.ID > t.nextID {
		t.nextID = a.ID
	}
	t.addrs = append(t.addrs, a)
	return nil
}

// Remove deletes the object with the given ID.
func (t *Table) Remove(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, a := range t.addrs {
		if a.ID == id {
			t.addrs = append(t.addrs[:i], t.addrs[i+1:]...)
			return nil
		}
	}
	return inet.ErrNotFound
}

// Find returns the first object matching addr under the given mode.
func (t *Table) Find(addr netip.Addr, mode FindMode) (AddrObj, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, a := range t.addrs {
		switch mode {
		case FindNet:
			if inet.CompareMask(a.NAddr, addr) {
				return *a, true
			}
		case FindExact:
			if a.Addr() == addr {
				return *a, true
			}
		}
	}
	return AddrObj{}, false
}

func (t *Table) findByNameLocked(name string, linkID uint64) *AddrObj {
	for _, a := range t.addrs {
		if a.LinkID == linkID && a.Name == name {
			return a
		}
	}
	return nil
}

// FindByName returns the object with the given name on the given link.
func (t *Table) FindByName(name string, linkID uint64) (AddrObj, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a := t.findByNameLocked(name, linkID); a != nil {
		return *a, true
	}
	return AddrObj{}, false
}

// Get returns the object with the given ID.
func (t *Table) Get(id uint64) (AddrObj, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, a := range t.addrs {
		if a.ID == id {
			return *a, true
		}
	}
	return AddrObj{}, false
}

// IDs returns the identifiers of all objects, in insertion order.
func (t *Table) IDs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, len(t.addrs))
	for i, a := range t.addrs {
		ids[i] = a.ID
	}
	return ids
}

// All returns a snapshot of all objects.
func (t *Table) All() []AddrObj {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]AddrObj, len(t.addrs))
	for i, a := range t.addrs {
		out[i] = *a
	}
	return out
}

// CountNonTempByLink counts the user-configured objects bound to a link.
func (t *Table) CountNonTempByLink(linkID uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, a := range t.addrs {
		if a.LinkID == linkID && !a.Temp {
			n++
		}
	}
	return n
}
