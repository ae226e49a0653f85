// Command inetping sends echo requests through the running service and
// reports the replies.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/m-lab/go/rtx"

	"github.com/usrnet/inetd/ctl"
)

var (
	socket  = flag.String("socket", "/var/run/inetd/inetping.sock", "Ping socket of the inetd service.")
	count   = flag.Int("count", 3, "Number of echo requests to send.")
	size    = flag.Int("size", 32, "Payload size in bytes.")
	timeout = flag.Duration("timeout", 3*time.Second, "How long to wait for each reply.")
	source  = flag.String("src", "", "Source address; chosen by the service when empty.")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("usage: inetping [flags] <destination>")
	}
	dest := flag.Arg(0)

	replies := make(chan ctl.PingRecvEventParams, 16)
	c, err := ctl.Dial(*socket, func(event string, params json.RawMessage) {
		if event != ctl.EventRecv {
			return
		}
		var p ctl.PingRecvEventParams
		if err := json.Unmarshal(params, &p); err != nil {
			log.Println("bad event:", err)
			return
		}
		replies <- p
	})
	rtx.Must(err, "Could not connect to %s", *socket)
	defer c.Close()

	rtx.Must(c.Call(ctl.MethodCallbackCreate, nil, nil), "Could not create callback")

	src := *source
	if src == "" {
		var res ctl.GetSrcAddrResult
		rtx.Must(c.Call(ctl.MethodGetSrcAddr, &ctl.PingGetSrcAddrParams{Remote: dest}, &res),
			"No source address for %s", dest)
		src = res.Local
	}

	payload := make([]byte, *size)
	for i := range payload {
		payload[i] = byte(i)
	}

	received := 0
	for seq := 1; seq <= *count; seq++ {
		start := time.Now()
		err := c.Call(ctl.MethodSend, &ctl.PingSendParams{
			SeqNo: uint16(seq),
			Src:   src,
			Dest:  dest,
			Data:  payload,
		}, nil)
		if err != nil {
			log.Printf("seq %d: %v", seq, err)
			continue
		}

		select {
		case p := <-replies:
			fmt.Printf("%d bytes from %s: seq=%d time=%v\n",
				len(p.Data), p.Src, p.SeqNo, time.Since(start).Round(time.Microsecond))
			received++
		case <-time.After(*timeout):
			fmt.Printf("seq=%d timed out\n", seq)
		}
	}

	fmt.Printf("%d/%d replies received\n", received, *count)
	if received == 0 {
		log.Fatal("no replies")
	}
}
