package ctl

import (
	"context"
	"log"
	"net"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/inetsrv"
)

// PingServer serves the ping port. Each connection is one ping session;
// the session's echo identifier is allocated when the client creates its
// callback and released when the connection closes.
type PingServer struct {
	svc *inetsrv.Service
	*listener
}

// NewPingServer returns a ping-port server on the given socket.
func NewPingServer(filename string, svc *inetsrv.Service) *PingServer {
	s := &PingServer{svc: svc}
	s.listener = newListener(filename, s)
	return s
}

type pingClient struct {
	w     *connWriter
	ident uint16
	bound bool
}

// RecvPing implements inetsrv.PingSink.
func (c *pingClient) RecvPing(sdu *inetsrv.PingSDU) error {
	return c.w.writeLine(&struct {
		Event  string              `json:"event"`
		Params PingRecvEventParams `json:"params"`
	}{
		Event: EventRecv,
		Params: PingRecvEventParams{
			SeqNo: sdu.SeqNo,
			Src:   sdu.Src.String(),
			Dest:  sdu.Dest.String(),
			Data:  sdu.Data,
		},
	})
}

func (s *PingServer) handleConn(ctx context.Context, conn net.Conn) {
	client := &pingClient{}
	defer func() {
		if client.bound {
			s.svc.PingUnregister(client.ident)
		}
	}()

	serveCalls(ctx, conn, "inetping", func(w *connWriter, req *Request) {
		client.w = w
		s.dispatch(client, w, req)
	})
}

func (s *PingServer) dispatch(c *pingClient, w *connWriter, req *Request) {
	switch req.Method {
	case MethodCallbackCreate:
		if !c.bound {
			ident, err := s.svc.PingRegister(c)
			if err != nil {
				w.reply(req.ID, nil, err)
				return
			}
			c.ident = ident
			c.bound = true
		}
		w.reply(req.ID, nil, nil)

	case MethodSend:
		if !c.bound {
			log.Println("ping send without callback")
			w.reply(req.ID, nil, inet.ErrInvalid)
			return
		}
		var p PingSendParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		src, err := inet.ParseAddr(p.Src)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		dest, err := inet.ParseAddr(p.Dest)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		sdu := &inetsrv.PingSDU{
			SeqNo: p.SeqNo,
			Src:   src,
			Dest:  dest,
			Data:  p.Data,
		}
		w.reply(req.ID, nil, s.svc.PingSend(c.ident, sdu))

	case MethodGetSrcAddr:
		var p PingGetSrcAddrParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		remote, err := inet.ParseAddr(p.Remote)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		// Echo traffic uses the default type of service.
		local, err := s.svc.GetSrcAddr(remote, 0)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, &GetSrcAddrResult{Local: local.String()}, nil)

	default:
		w.reply(req.ID, nil, inet.ErrInvalid)
	}
}
