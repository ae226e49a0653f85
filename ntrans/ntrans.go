// Package ntrans keeps the IPv6 neighbour cache: the mapping from
// on-link IPv6 addresses to MAC addresses learned through neighbour
// discovery. Waiters block until any new insertion or a timeout.
package ntrans

import (
	"net/netip"
	"sync"
	"time"

	"github.com/usrnet/inetd/inet"
)

// Cache is the neighbour cache. The zero value is not usable; use
// NewCache.
type Cache struct {
	mu      sync.Mutex
	entries map[netip.Addr]inet.MAC
	// wake is closed and replaced on every insertion, waking all
	// waiters at once.
	wake chan struct{}
}

// NewCache returns an empty neighbour cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[netip.Addr]inet.MAC),
		wake:    make(chan struct{}),
	}
}

// Add inserts a translation, displacing any previous entry for the same
// address, and wakes all waiters.
func (c *Cache) Add(addr netip.Addr, mac inet.MAC) {
	c.mu.Lock()
	c.entries[addr] = mac
	close(c.wake)
	c.wake = make(chan struct{})
	c.mu.Unlock()
}

// Remove deletes the entry for addr.
func (c *Cache) Remove(addr netip.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[addr]; !ok {
		return inet.ErrNotFound
	}
	delete(c.entries, addr)
	return nil
}

// Lookup returns the MAC for addr if present.
func (c *Cache) Lookup(addr netip.Addr) (inet.MAC, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mac, ok := c.entries[addr]
	return mac, ok
}

// WaitTimeout blocks until any insertion occurs or the timeout elapses.
// It reports whether it was woken by an insertion.
func (c *Cache) WaitTimeout(d time.Duration) bool {
	c.mu.Lock()
	wake := c.wake
	c.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-wake:
		return true
	case <-timer.C:
		return false
	}
}
