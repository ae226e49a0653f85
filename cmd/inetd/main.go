// Command inetd is the Internet-Protocol service daemon. It owns the IP
// links handed to it, routes datagrams for local clients, answers
// ICMP/ICMPv6 echo traffic and serves the client, configuration and ping
// control sockets.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/usrnet/inetd/ctl"
	"github.com/usrnet/inetd/dhcp"
	"github.com/usrnet/inetd/inetcfg"
	"github.com/usrnet/inetd/inetsrv"
	"github.com/usrnet/inetd/iplink"
)

var (
	cfgPath   = flag.String("config", "/w/cfg/inetsrv.sif", "Path of the persisted configuration file.")
	socketDir = flag.String("socket-dir", "/var/run/inetd", "Directory for the control sockets.")
	dhcpSock  = flag.String("dhcp-socket", "", "Socket of the DHCP autoconfiguration service, empty to disable.")
	tunDevs   = flag.String("tun", "", "Comma-separated TUN device names to attach as IP links.")
	loopMTU   = flag.Uint("loopback-mtu", 65535, "MTU of the built-in loopback link.")
	promAddr  = flag.String("prom", ":9990", "Prometheus metrics export address and port.")

	ctx, cancel = context.WithCancel(context.Background())
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	promSrv := prometheusx.MustStartPrometheus(*promAddr)
	defer promSrv.Shutdown(ctx)

	disc := iplink.NewStaticDiscoverer()
	disc.AddLink("net/loopback", iplink.NewLoopback(uint32(*loopMTU)))
	for _, name := range strings.Split(*tunDevs, ",") {
		if name == "" {
			continue
		}
		tun, err := iplink.OpenTUN(name)
		rtx.Must(err, "Could not open TUN device %s", name)
		disc.AddLink("net/tun/"+tun.Name(), tun)
	}

	var dhcpc dhcp.Client = dhcp.NullClient()
	if *dhcpSock != "" {
		dhcpc = dhcp.NewSocketClient(*dhcpSock)
	}

	svc := inetsrv.New(disc, dhcpc)
	rtx.Must(svc.Start(), "Could not start link discovery")

	cfg, err := inetcfg.Open(svc, *cfgPath)
	rtx.Must(err, "Could not open configuration %s", *cfgPath)
	svc.AutoconfLinks()

	rtx.Must(os.MkdirAll(*socketDir, 0o755), "Could not create %s", *socketDir)
	inetSrv := ctl.NewInetServer(filepath.Join(*socketDir, "inet.sock"), svc)
	cfgSrv := ctl.NewCfgServer(filepath.Join(*socketDir, "inetcfg.sock"), cfg)
	pingSrv := ctl.NewPingServer(filepath.Join(*socketDir, "inetping.sock"), svc)

	rtx.Must(inetSrv.Listen(), "Could not listen on the client port")
	rtx.Must(cfgSrv.Listen(), "Could not listen on the configuration port")
	rtx.Must(pingSrv.Listen(), "Could not listen on the ping port")

	go inetSrv.Serve(ctx)
	go cfgSrv.Serve(ctx)
	go pingSrv.Serve(ctx)

	log.Println("inetd: serving on", *socketDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	cancel()

	inetSrv.Wait()
	cfgSrv.Wait()
	pingSrv.Wait()
}
