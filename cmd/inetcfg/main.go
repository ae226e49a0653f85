// Command inetcfg manipulates the running service's configuration over
// the configuration socket: address objects, static routes and links.
//
// Usage:
//
//	inetcfg list-addrs [-csv]
//	inetcfg create-addr <link-id> <addr/prefix> <name>
//	inetcfg delete-addr <link-id> <name>
//	inetcfg list-routes [-csv]
//	inetcfg create-route <dest/prefix> <router> <name>
//	inetcfg delete-route <name>
//	inetcfg list-links [-csv]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/usrnet/inetd/ctl"
)

var (
	socket = flag.String("socket", "/var/run/inetd/inetcfg.sock", "Configuration socket of the inetd service.")
	asCSV  = flag.Bool("csv", false, "Print listings as CSV.")
)

type addrRow struct {
	ID    uint64 `csv:"id"`
	NAddr string `csv:"naddr"`
	Link  uint64 `csv:"link"`
	Name  string `csv:"name"`
}

type routeRow struct {
	ID     uint64 `csv:"id"`
	Dest   string `csv:"dest"`
	Router string `csv:"router"`
	Name   string `csv:"name"`
}

type linkRow struct {
	ID   uint64 `csv:"id"`
	Name string `csv:"name"`
	MAC  string `csv:"mac"`
	MTU  uint32 `csv:"mtu"`
}

func usage() {
	flag.Usage()
	os.Exit(2)
}

func parseID(s string) uint64 {
	id, err := strconv.ParseUint(s, 10, 64)
	rtx.Must(err, "Bad identifier %q", s)
	return id
}

func main() {
	log.SetFlags(0)
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	c, err := ctl.Dial(*socket, nil)
	rtx.Must(err, "Could not connect to %s", *socket)
	defer c.Close()

	args := flag.Args()
	switch args[0] {
	case "list-addrs":
		listAddrs(c)
	case "create-addr":
		if len(args) != 4 {
			usage()
		}
		var res ctl.AddrCreateStaticResult
		rtx.Must(c.Call(ctl.MethodAddrCreateStatic, &ctl.AddrCreateStaticParams{
			LinkID: parseID(args[1]),
			NAddr:  args[2],
			Name:   args[3],
		}, &res), "Could not create address")
		fmt.Println(res.AddrID)
	case "delete-addr":
		if len(args) != 3 {
			usage()
		}
		var res ctl.AddrGetIDResult
		rtx.Must(c.Call(ctl.MethodAddrGetID, &ctl.AddrGetIDParams{
			LinkID: parseID(args[1]),
			Name:   args[2],
		}, &res), "Could not resolve address %q", args[2])
		rtx.Must(c.Call(ctl.MethodAddrDelete, &ctl.AddrDeleteParams{AddrID: res.AddrID}, nil),
			"Could not delete address")
	case "list-routes":
		listRoutes(c)
	case "create-route":
		if len(args) != 4 {
			usage()
		}
		var res ctl.SrouteCreateResult
		rtx.Must(c.Call(ctl.MethodSrouteCreate, &ctl.SrouteCreateParams{
			Dest:   args[1],
			Router: args[2],
			Name:   args[3],
		}, &res), "Could not create route")
		fmt.Println(res.SrouteID)
	case "delete-route":
		if len(args) != 2 {
			usage()
		}
		var res ctl.SrouteGetIDResult
		rtx.Must(c.Call(ctl.MethodSrouteGetID, &ctl.SrouteGetIDParams{Name: args[1]}, &res),
			"Could not resolve route %q", args[1])
		rtx.Must(c.Call(ctl.MethodSrouteDelete, &ctl.SrouteDeleteParams{SrouteID: res.SrouteID}, nil),
			"Could not delete route")
	case "list-links":
		listLinks(c)
	default:
		usage()
	}
}

func listAddrs(c *ctl.Client) {
	var ids ctl.IDListResult
	rtx.Must(c.Call(ctl.MethodGetAddrList, nil, &ids), "Could not list addresses")

	rows := make([]addrRow, 0, len(ids.IDs))
	for _, id := range ids.IDs {
		var a ctl.AddrGetResult
		rtx.Must(c.Call(ctl.MethodAddrGet, &ctl.AddrGetParams{AddrID: id}, &a),
			"Could not get address %d", id)
		rows = append(rows, addrRow{ID: id, NAddr: a.NAddr, Link: a.LinkID, Name: a.Name})
	}
	if *asCSV {
		rtx.Must(gocsv.Marshal(rows, os.Stdout), "Could not write CSV")
		return
	}
	for _, r := range rows {
		fmt.Printf("%d\t%s\tlink %d\t%s\n", r.ID, r.NAddr, r.Link, r.Name)
	}
}

func listRoutes(c *ctl.Client) {
	var ids ctl.IDListResult
	rtx.Must(c.Call(ctl.MethodGetSrouteList, nil, &ids), "Could not list routes")

	rows := make([]routeRow, 0, len(ids.IDs))
	for _, id := range ids.IDs {
		var r ctl.SrouteGetResult
		rtx.Must(c.Call(ctl.MethodSrouteGet, &ctl.SrouteGetParams{SrouteID: id}, &r),
			"Could not get route %d", id)
		rows = append(rows, routeRow{ID: id, Dest: r.Dest, Router: r.Router, Name: r.Name})
	}
	if *asCSV {
		rtx.Must(gocsv.Marshal(rows, os.Stdout), "Could not write CSV")
		return
	}
	for _, r := range rows {
		fmt.Printf("%d\t%s via %s\t%s\n", r.ID, r.Dest, r.Router, r.Name)
	}
}

func listLinks(c *ctl.Client) {
	var ids ctl.IDListResult
	rtx.Must(c.Call(ctl.MethodGetLinkList, nil, &ids), "Could not list links")

	rows := make([]linkRow, 0, len(ids.IDs))
	for _, id := range ids.IDs {
		var l ctl.LinkGetResult
		rtx.Must(c.Call(ctl.MethodLinkGet, &ctl.LinkGetParams{LinkID: id}, &l),
			"Could not get link %d", id)
		rows = append(rows, linkRow{ID: id, Name: l.Name, MAC: l.MAC, MTU: l.DefaultMTU})
	}
	if *asCSV {
		rtx.Must(gocsv.Marshal(rows, os.Stdout), "Could not write CSV")
		return
	}
	for _, r := range rows {
		fmt.Printf("%d\t%s\t%s\tmtu %d\n", r.ID, r.Name, r.MAC, r.MTU)
	}
}
