package ctl

import (
	"context"
	"net"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/inetcfg"
)

// CfgServer serves the configuration port.
type CfgServer struct {
	cfg *inetcfg.Config
	*listener
}

// NewCfgServer returns a configuration-port server on the given socket.
func NewCfgServer(filename string, cfg *inetcfg.Config) *CfgServer {
	s := &CfgServer{cfg: cfg}
	s.listener = newListener(filename, s)
	return s
}

func (s *CfgServer) handleConn(ctx context.Context, conn net.Conn) {
	serveCalls(ctx, conn, "inetcfg", s.dispatch)
}

func (s *CfgServer) dispatch(w *connWriter, req *Request) {
	switch req.Method {
	case MethodAddrCreateStatic:
		var p AddrCreateStaticParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		naddr, err := inet.ParseNAddr(p.NAddr)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		id, err := s.cfg.AddrCreateStatic(p.Name, naddr, p.LinkID)
		w.reply(req.ID, &AddrCreateStaticResult{AddrID: id}, err)

	case MethodAddrDelete:
		var p AddrDeleteParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, nil, s.cfg.AddrDelete(p.AddrID))

	case MethodAddrGet:
		var p AddrGetParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		info, err := s.cfg.AddrGet(p.AddrID)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, &AddrGetResult{
			NAddr:  info.NAddr.String(),
			LinkID: info.LinkID,
			Name:   info.Name,
		}, nil)

	case MethodAddrGetID:
		var p AddrGetIDParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		id, err := s.cfg.AddrGetID(p.Name, p.LinkID)
		w.reply(req.ID, &AddrGetIDResult{AddrID: id}, err)

	case MethodGetAddrList:
		w.reply(req.ID, &IDListResult{IDs: s.cfg.AddrList()}, nil)

	case MethodGetLinkList:
		w.reply(req.ID, &IDListResult{IDs: s.cfg.LinkList()}, nil)

	case MethodGetSrouteList:
		w.reply(req.ID, &IDListResult{IDs: s.cfg.SrouteList()}, nil)

	case MethodLinkAdd:
		var p LinkAddParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, nil, s.cfg.LinkAdd(p.LinkID))

	case MethodLinkGet:
		var p LinkGetParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		info, err := s.cfg.LinkGet(p.LinkID)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, &LinkGetResult{
			Name:       info.Name,
			MAC:        info.MAC.String(),
			DefaultMTU: info.DefaultMTU,
		}, nil)

	case MethodLinkRemove:
		var p LinkRemoveParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, nil, s.cfg.LinkRemove(p.LinkID))

	case MethodSrouteCreate:
		var p SrouteCreateParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		dest, err := inet.ParseNAddr(p.Dest)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		router, err := inet.ParseAddr(p.Router)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		id, err := s.cfg.SrouteCreate(p.Name, dest, router)
		w.reply(req.ID, &SrouteCreateResult{SrouteID: id}, err)

	case MethodSrouteDelete:
		var p SrouteDeleteParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, nil, s.cfg.SrouteDelete(p.SrouteID))

	case MethodSrouteGet:
		var p SrouteGetParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		info, err := s.cfg.SrouteGet(p.SrouteID)
		if err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		w.reply(req.ID, &SrouteGetResult{
			Dest:   info.Dest.String(),
			Router: info.Router.String(),
			Name:   info.Name,
		}, nil)

	case MethodSrouteGetID:
		var p SrouteGetIDParams
		if err := unmarshalParams(req, &p); err != nil {
			w.reply(req.ID, nil, err)
			return
		}
		id, err := s.cfg.SrouteGetID(p.Name)
		w.reply(req.ID, &SrouteGetIDResult{SrouteID: id}, err)

	default:
		w.reply(req.ID, nil, inet.ErrInvalid)
	}
}
