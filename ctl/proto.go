// Package ctl implements the control surface of the service: three
// unix-domain sockets (the generic client port, the configuration port
// and the ping port) speaking a line-delimited JSON protocol. Calls flow
// down each connection, events flow back up the same connection.
package ctl

import "encoding/json"

// Request is one control call.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers one control call. Lines carrying a non-empty Event
// field are server-initiated events, not responses.
type Response struct {
	ID     int64           `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Configuration port methods.
const (
	MethodAddrCreateStatic = "ADDR_CREATE_STATIC"
	MethodAddrDelete       = "ADDR_DELETE"
	MethodAddrGet          = "ADDR_GET"
	MethodAddrGetID        = "ADDR_GET_ID"
	MethodGetAddrList      = "GET_ADDR_LIST"
	MethodGetLinkList      = "GET_LINK_LIST"
	MethodGetSrouteList    = "GET_SROUTE_LIST"
	MethodLinkAdd          = "LINK_ADD"
	MethodLinkGet          = "LINK_GET"
	MethodLinkRemove       = "LINK_REMOVE"
	MethodSrouteCreate     = "SROUTE_CREATE"
	MethodSrouteDelete     = "SROUTE_DELETE"
	MethodSrouteGet        = "SROUTE_GET"
	MethodSrouteGetID      = "SROUTE_GET_ID"
)

// Generic client and ping port methods.
const (
	MethodCallbackCreate = "CALLBACK_CREATE"
	MethodSetProto       = "SET_PROTO"
	MethodSend           = "SEND"
	MethodGetSrcAddr     = "GET_SRCADDR"
)

// EventRecv is the event pushed to clients for each received datagram or
// echo reply.
const EventRecv = "EV_RECV"

// Wire shapes for the configuration port.
type (
	AddrCreateStaticParams struct {
		LinkID uint64 `json:"link_id"`
		NAddr  string `json:"naddr"`
		Name   string `json:"name"`
	}
	AddrCreateStaticResult struct {
		AddrID uint64 `json:"addr_id"`
	}
	AddrDeleteParams struct {
		AddrID uint64 `json:"addr_id"`
	}
	AddrGetParams struct {
		AddrID uint64 `json:"addr_id"`
	}
	AddrGetResult struct {
		NAddr  string `json:"naddr"`
		LinkID uint64 `json:"link_id"`
		Name   string `json:"name"`
	}
	AddrGetIDParams struct {
		Name   string `json:"name"`
		LinkID uint64 `json:"link_id"`
	}
	AddrGetIDResult struct {
		AddrID uint64 `json:"addr_id"`
	}
	IDListResult struct {
		IDs []uint64 `json:"ids"`
	}
	LinkAddParams struct {
		LinkID uint64 `json:"link_id"`
	}
	LinkGetParams struct {
		LinkID uint64 `json:"link_id"`
	}
	LinkGetResult struct {
		Name       string `json:"name"`
		MAC        string `json:"mac"`
		DefaultMTU uint32 `json:"default_mtu"`
	}
	LinkRemoveParams struct {
		LinkID uint64 `json:"link_id"`
	}
	SrouteCreateParams struct {
		Dest   string `json:"dest"`
		Router string `json:"router"`
		Name   string `json:"name"`
	}
	SrouteCreateResult struct {
		SrouteID uint64 `json:"sroute_id"`
	}
	SrouteDeleteParams struct {
		SrouteID uint64 `json:"sroute_id"`
	}
	SrouteGetParams struct {
		SrouteID uint64 `json:"sroute_id"`
	}
	SrouteGetResult struct {
		Dest   string `json:"dest"`
		Router string `json:"router"`
		Name   string `json:"name"`
	}
	SrouteGetIDParams struct {
		Name string `json:"name"`
	}
	SrouteGetIDResult struct {
		SrouteID uint64 `json:"sroute_id"`
	}
)

// Wire shapes for the generic client port.
type (
	SetProtoParams struct {
		Proto uint8 `json:"proto"`
	}
	SendParams struct {
		LinkID uint64 `json:"iplink_id,omitempty"`
		TOS    uint8  `json:"tos"`
		TTL    uint8  `json:"ttl"`
		DF     bool   `json:"df"`
		Src    string `json:"src"`
		Dest   string `json:"dest"`
		Data   []byte `json:"data"`
	}
	GetSrcAddrParams struct {
		TOS    uint8  `json:"tos"`
		Remote string `json:"remote"`
	}
	GetSrcAddrResult struct {
		Local string `json:"local"`
	}
	RecvEventParams struct {
		TOS    uint8  `json:"tos"`
		LinkID uint64 `json:"iplink_id"`
		Src    string `json:"src"`
		Dest   string `json:"dest"`
		Data   []byte `json:"data"`
	}
)

// Wire shapes for the ping port.
type (
	PingSendParams struct {
		SeqNo uint16 `json:"seq_no"`
		Src   string `json:"src"`
		Dest  string `json:"dest"`
		Data  []byte `json:"data"`
	}
	PingGetSrcAddrParams struct {
		Remote string `json:"remote"`
	}
	PingRecvEventParams struct {
		SeqNo uint16 `json:"seq_no"`
		Src   string `json:"src"`
		Dest  string `json:"dest"`
		Data  []byte `json:"data"`
	}
)
