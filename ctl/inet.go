package ctl

import (
	"context"
	"net"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/inetsrv"
)

// InetServer serves the generic client port. Each connection is one
// client: it binds a protocol with SET_PROTO and receives EV_RECV events
// on the same connection once it has created its callback.
type InetServer struct {
	svc *inetsrv.Service
	*listener
}

// NewInetServer returns a generic-client-port server on the given
// socket.
func NewInetServer(filename string, svc *inetsrv.Service) *InetServer {
	s := &InetServer{svc: svc}
	s.listener = newListener(filename, s)
	return s
}

// inetClient is the per-connection state: the bound protocol and the
// event sink back to the client.
type inetClient struct {
	w        *connWriter
	callback bool
	proto    uint8
	protoSet bool
	bound    bool
}

// RecvEvent implements inetsrv.EventSink.
func (c *inetClient) RecvEvent(dgram *inet.Datagram) error {
	return c.w.writeLine(&struct {
		Event  string          `json:"event"`
		Params RecvEventParams `json:"params"`
	}{
		Event: EventRecv,
		Params: RecvEventParams{
			TOS:    dgram.TOS,
			LinkID: dgram.LinkID,
			Src:    dgram.Src.String(),
			Dest:   dgram.Dest.String(),
			Data:   dgram.Data,
		},
	})
}

func (s *InetServer) handleConn(ctx context.Context, conn net.Conn) {
	client := &inetClient{}
	defer func() {
		if client.bound {
			s.svc.ClientUnregister(client.proto, client)
		}
	}()

	serveCalls(ctx, conn, "inet", func(w *connWriter, req *Request) {
		client.w = w
		s.dispatch(client, w, req)
	})
}

// bind registers the client once both the callback and the protocol are
// in place.
func (s *InetServer) bind(c *inetClient) {
	if c.callback && c.protoSet && !c.bound {
		s.svc.ClientRegister(c.proto, c)
		c.bound = true
	}
}

func (s *InetServer) dispatch(c *inetClient, w *connWriter, req *Request) {
	switch req.Method {
	case MethodCallbackCreate:
		c.callback = true
		s.bind(c)
		w.reply(req.ID, nil, nil)

	case MethodSetProto:
		var p SetProtoParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		if c.bound {
			s.svc.ClientUnregister(c.proto, c)
			c.bound = false
		}
		c.proto = p.Proto
		c.protoSet = true
		s.bind(c)
		w.reply(req.ID, nil, nil)

	case MethodSend:
		var p SendParams
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
		dgram := &inet.Datagram{
			LinkID: p.LinkID,
			Src:    src,
			Dest:   dest,
			TOS:    p.TOS,
			Data:   p.Data,
		}
		w.reply(req.ID, nil, s.svc.Route(dgram, c.proto, p.TTL, p.DF))

	case MethodGetSrcAddr:
		var p GetSrcAddrParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		remote, err := inet.ParseAddr(p.Remote)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		local, err := s.svc.GetSrcAddr(remote, p.TOS)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, &GetSrcAddrResult{Local: local.String()}, nil)

	default:
		w.reply(req.ID, nil, inet.ErrInvalid)
	}
}
