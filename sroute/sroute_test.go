package sroute_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/sroute"
)

func route(name, dest, router string) *sroute.Route {
	return &sroute.Route{
		Dest:   netip.MustParsePrefix(dest),
		Router: netip.MustParseAddr(router),
		Name:   name,
	}
}

func TestLongestPrefixWins(t *testing.T) {
	tab := sroute.NewTable()

	if err := tab.Add(route("default", "0.0.0.0/0", "10.0.0.254")); err != nil {
		t.Fatal(err)
	}
	if err := tab.Add(route("lan", "10.1.0.0/16", "10.0.0.1")); err != nil {
		t.Fatal(err)
	}
	if err := tab.Add(route("host", "10.1.2.0/24", "10.0.0.2")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		addr string
		want string
	}{
		{"10.1.2.3", "host"},
		{"10.1.9.9", "lan"},
		{"8.8.8.8", "default"},
	}
	for _, tc := range tests {
		r, ok := tab.Find(netip.MustParseAddr(tc.addr))
		if !ok {
			t.Errorf("Find(%s): no route", tc.addr)
			continue
		}
		if r.Name != tc.want {
			t.Errorf("Find(%s) = %q, want %q", tc.addr, r.Name, tc.want)
		}
	}
}

func TestVersionsAreSeparate(t *testing.T) {
	tab := sroute.NewTable()
	if err := tab.Add(route("default4", "0.0.0.0/0", "10.0.0.254")); err != nil {
		t.Fatal(err)
	}

	if _, ok := tab.Find(netip.MustParseAddr("2001:db8::1")); ok {
		t.Error("IPv4 default route matched an IPv6 destination")
	}

	if err := tab.Add(route("default6", "::/0", "fe80::1")); err != nil {
		t.Fatal(err)
	}
	r, ok := tab.Find(netip.MustParseAddr("2001:db8::1"))
	if !ok || r.Name != "default6" {
		t.Errorf("IPv6 lookup = %+v, %v", r, ok)
	}
}

func TestSamePrefixLatestWins(t *testing.T) {
	tab := sroute.NewTable()
	older := route("older", "10.0.0.0/8", "10.0.0.1")
	newer := route("newer", "10.0.0.0/8", "10.0.0.2")
	if err := tab.Add(older); err != nil {
		t.Fatal(err)
	}
	if err := tab.Add(newer); err != nil {
		t.Fatal(err)
	}

	r, ok := tab.Find(netip.MustParseAddr("10.1.1.1"))
	if !ok || r.Name != "newer" {
		t.Fatalf("Find = %+v, want the most recently added route", r)
	}

	// Deleting the effective route uncovers the older one.
	if err := tab.Remove(newer.ID); err != nil {
		t.Fatal(err)
	}
	r, ok = tab.Find(netip.MustParseAddr("10.1.1.1"))
	if !ok || r.Name != "older" {
		t.Fatalf("after delete, Find = %+v, want the older route", r)
	}
}

func TestDuplicateName(t *testing.T) {
	tab := sroute.NewTable()
	if err := tab.Add(route("default", "0.0.0.0/0", "10.0.0.254")); err != nil {
		t.Fatal(err)
	}
	err := tab.Add(route("default", "10.0.0.0/8", "10.0.0.1"))
	if !errors.Is(err, inet.ErrDuplicate) {
		t.Errorf("duplicate name: err = %v, want ErrDuplicate", err)
	}
}

func TestGetByNameAndID(t *testing.T) {
	tab := sroute.NewTable()
	r := route("default", "0.0.0.0/0", "10.0.0.254")
	if err := tab.Add(r); err != nil {
		t.Fatal(err)
	}

	got, ok := tab.FindByName("default")
	if !ok || got.ID != r.ID {
		t.Errorf("FindByName = %+v, %v", got, ok)
	}
	got, ok = tab.Get(r.ID)
	if !ok || got.Name != "default" {
		t.Errorf("Get = %+v, %v", got, ok)
	}
	if err := tab.Remove(r.ID); err != nil {
		t.Fatal(err)
	}
	if err := tab.Remove(r.ID); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("Remove after remove: err = %v, want ErrNotFound", err)
	}
}
