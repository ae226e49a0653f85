// Package inetcfg implements the configuration operations exposed to
// external control clients, and keeps the persisted configuration in
// sync with the in-memory tables.
package inetcfg

import (
	"fmt"
	"log"
	"net/netip"
	"os"
	"strconv"
	"sync"

	"github.com/usrnet/inetd/addrobj"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/inetsrv"
	"github.com/usrnet/inetd/sif"
	"github.com/usrnet/inetd/sroute"
)

// Config binds the configuration API to a service instance and a
// configuration file. Every successful mutation is followed by a
// synchronous save; a failed save is surfaced to the caller but the
// in-memory change stays.
type Config struct {
	svc  *inetsrv.Service
	path string

	// saveMu serializes writers of the configuration file.
	saveMu sync.Mutex
}

// Open loads the configuration stored at path into the service. A
// missing file is not an error; the service starts unconfigured.
func Open(svc *inetsrv.Service, path string) (*Config, error) {
	c := &Config{svc: svc, path: path}

	root, err := sif.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("no configuration at %s, starting unconfigured", path)
			return c, nil
		}
		return nil, err
	}
	if err := c.load(root); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) load(root *sif.Node) error {
	for _, sect := range root.Children() {
		switch sect.Type() {
		case "addresses":
			for _, n := range sect.Children() {
				if n.Type() != "address" {
					return fmt.Errorf("%w: unexpected node %q", inet.ErrInvalid, n.Type())
				}
				if err := c.loadAddr(n); err != nil {
					return err
				}
			}
		case "static-routes":
			for _, n := range sect.Children() {
				if n.Type() != "route" {
					return fmt.Errorf("%w: unexpected node %q", inet.ErrInvalid, n.Type())
				}
				if err := c.loadRoute(n); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: unexpected section %q", inet.ErrInvalid, sect.Type())
		}
	}
	return nil
}

func nodeAttrs(n *sif.Node, keys ...string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		v, ok := n.Attr(k)
		if !ok {
			return nil, fmt.Errorf("%w: missing attribute %q", inet.ErrInvalid, k)
		}
		out[i] = v
	}
	return out, nil
}

func (c *Config) loadAddr(n *sif.Node) error {
	vals, err := nodeAttrs(n, "id", "naddr", "link", "name")
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: address id %q", inet.ErrInvalid, vals[0])
	}
	naddr, err := inet.ParseNAddr(vals[1])
	if err != nil {
		return err
	}
	link, ok := c.svc.LinkBySvcName(vals[2])
	if !ok {
		// Configuration is only retained for present links.
		log.Printf("configured link %q not found, dropping address %q", vals[2], vals[3])
		return nil
	}
	return c.svc.Addrs.Add(&addrobj.AddrObj{
		ID:     id,
		NAddr:  naddr,
		LinkID: link.SvcID,
		Name:   vals[3],
	})
}

func (c *Config) loadRoute(n *sif.Node) error {
	vals, err := nodeAttrs(n, "id", "dest", "router", "name")
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: route id %q", inet.ErrInvalid, vals[0])
	}
	dest, err := inet.ParseNAddr(vals[1])
	if err != nil {
		return err
	}
	router, err := inet.ParseAddr(vals[2])
	if err != nil {
		return err
	}
	return c.svc.Routes.Add(&sroute.Route{
		ID:     id,
		Dest:   dest,
		Router: router,
		Name:   vals[3],
	})
}

// Sync writes the persisted configuration. Only non-temporary objects
// are saved.
func (c *Config) Sync() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	root := sif.New()
	naddrs := root.AppendChild("addresses")
	for _, a := range c.svc.Addrs.All() {
		if a.Temp {
			continue
		}
		l, ok := c.svc.LinkByID(a.LinkID)
		if !ok {
			continue
		}
		n := naddrs.AppendChild("address")
		n.SetAttr("id", strconv.FormatUint(a.ID, 10))
		n.SetAttr("naddr", a.NAddr.String())
		n.SetAttr("link", l.SvcName)
		n.SetAttr("name", a.Name)
	}

	nroutes := root.AppendChild("static-routes")
	for _, r := range c.svc.Routes.All() {
		if r.Temp {
			continue
		}
		n := nroutes.AppendChild("route")
		n.SetAttr("id", strconv.FormatUint(r.ID, 10))
		n.SetAttr("dest", r.Dest.String())
		n.SetAttr("router", r.Router.String())
		n.SetAttr("name", r.Name)
	}

	if err := sif.Save(root, c.path); err != nil {
		log.Printf("could not save configuration to %s: %v", c.path, err)
		return err
	}
	return nil
}

// AddrCreateStatic creates a user-configured address object.
func (c *Config) AddrCreateStatic(name string, naddr netip.Prefix, linkID uint64) (uint64, error) {
	id, err := c.svc.AddrCreate(name, naddr, linkID, false)
	if err != nil {
		return 0, err
	}
	return id, c.Sync()
}

// AddrDelete removes an address object.
func (c *Config) AddrDelete(id uint64) error {
	if err := c.svc.AddrDelete(id); err != nil {
		return err
	}
	return c.Sync()
}

// AddrInfo is the externally visible state of one address object.
type AddrInfo struct {
	ID     uint64
	NAddr  netip.Prefix
	LinkID uint64
	Name   string
}

// AddrGet returns one address object.
func (c *Config) AddrGet(id uint64) (AddrInfo, error) {
	a, ok := c.svc.Addrs.Get(id)
	if !ok {
		return AddrInfo{}, inet.ErrNotFound
	}
	return AddrInfo{ID: a.ID, NAddr: a.NAddr, LinkID: a.LinkID, Name: a.Name}, nil
}

// AddrGetID resolves an address object by name and link.
func (c *Config) AddrGetID(name string, linkID uint64) (uint64, error) {
	a, ok := c.svc.Addrs.FindByName(name, linkID)
	if !ok {
		return 0, inet.ErrNotFound
	}
	return a.ID, nil
}

// AddrList returns the identifiers of all address objects.
func (c *Config) AddrList() []uint64 { return c.svc.Addrs.IDs() }

// LinkList returns the service identifiers of all links.
func (c *Config) LinkList() []uint64 { return c.svc.LinkIDs() }

// LinkAdd opens a link service.
func (c *Config) LinkAdd(linkID uint64) error { return c.svc.LinkAdd(linkID) }

// LinkGet returns the state of one link.
func (c *Config) LinkGet(linkID uint64) (inetsrv.LinkInfo, error) {
	return c.svc.LinkGet(linkID)
}

// LinkRemove is intentionally not implemented in this revision.
func (c *Config) LinkRemove(linkID uint64) error { return inet.ErrNotSupported }

// SrouteCreate creates a static route.
func (c *Config) SrouteCreate(name string, dest netip.Prefix, router netip.Addr) (uint64, error) {
	r := &sroute.Route{Dest: dest, Router: router, Name: name}
	if err := c.svc.Routes.Add(r); err != nil {
		return 0, err
	}
	return r.ID, c.Sync()
}

// SrouteDelete removes a static route.
func (c *Config) SrouteDelete(id uint64) error {
	if err := c.svc.Routes.Remove(id); err != nil {
		return err
	}
	return c.Sync()
}

// SrouteInfo is the externally visible state of one static route.
type SrouteInfo struct {
	ID     uint64
	Dest   netip.Prefix
	Router netip.Addr
	Name   string
}

// SrouteGet returns one static route.
func (c *Config) SrouteGet(id uint64) (SrouteInfo, error) {
	r, ok := c.svc.Routes.Get(id)
	if !ok {
		return SrouteInfo{}, inet.ErrNotFound
	}
	return SrouteInfo{ID: r.ID, Dest: r.Dest, Router: r.Router, Name: r.Name}, nil
}

// SrouteGetID resolves a static route by name.
func (c *Config) SrouteGetID(name string) (uint64, error) {
	r, ok := c.svc.Routes.FindByName(name)
	if !ok {
		return 0, inet.ErrNotFound
	}
	return r.ID, nil
}

// SrouteList returns the identifiers of all static routes.
func (c *Config) SrouteList() []uint64 { return c.svc.Routes.IDs() }

// GetSrcAddr selects the local source address for traffic towards
// remote.
func (c *Config) GetSrcAddr(remote netip.Addr, tos uint8) (netip.Addr, error) {
	return c.svc.GetSrcAddr(remote, tos)
}
