// Package sroute keeps the static-route table. Lookup is a
// longest-prefix match over a BART routing table, with the route list as
// the source of truth for names and identifiers.
package sroute

import (
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"

	"github.com/usrnet/inetd/inet"
)

// Route is one static route: packets for Dest go via Router.
type Route struct {
	ID     uint64
	Dest   netip.Prefix
	Router netip.Addr
	Name   string
	Temp   bool
}

// Table is the static-route table. Among routes sharing a destination
// prefix the most recently added wins.
type Table struct {
	mu     sync.Mutex
	routes []*Route
	lpm    *bart.Table[*Route]
	nextID uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{lpm: &bart.Table[*Route]{}}
}

// Add inserts a route. It fails with ErrDuplicate when the name is
// already taken.
func (t *Table) Add(r *Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, o := range t.routes {
		if o.Name == r.Name {
			return inet.ErrDuplicate
		}
	}
	if r.ID == 0 {
		t.nextID++
		r.ID = t.nextID
	} else if r.ID > t.nextID {
		t.nextID = r.ID
	}
	t.routes = append(t.routes, r)
	t.lpm.Insert(r.Dest.Masked(), r)
	return nil
}

// Remove deletes the route with the given ID. If other routes share the
// same destination prefix, the most recently added of them becomes
// effective again.
func (t *Table) Remove(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, r := range t.routes {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return inet.ErrNotFound
	}
	gone := t.routes[idx]
	t.routes = append(t.routes[:idx], t.routes[idx+1:]...)

	pfx := gone.Dest.Masked()
	t.lpm.Delete(pfx)
	for i := len(t.routes) - 1; i >= 0; i-- {
		if t.routes[i].Dest.Masked() == pfx {
			t.lpm.Insert(pfx, t.routes[i])
			break
		}
	}
	return nil
}

// Find returns the route whose destination has the longest prefix
// containing addr, if any.
func (t *Table) Find(addr netip.Addr) (Route, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.lpm.Lookup(addr)
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// FindByName returns the route with the given name.
func (t *Table) FindByName(name string) (Route, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.routes {
		if r.Name == name {
			return *r, true
		}
	}
	return Route{}, false
}

// Get returns the route with the given ID.
func (t *Table) Get(id uint64) (Route, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.routes {
		if r.ID == id {
			return *r, true
		}
	}
	return Route{}, false
}

// IDs returns the identifiers of all routes, in insertion order.
func (t *Table) IDs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, len(t.routes))
	for i, r := range t.routes {
		ids[i] = r.ID
	}
	return ids
}

// All returns a snapshot of all routes.
func (t *Table) All() []Route {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = *r
	}
	return out
}
