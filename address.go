package rtnl

import (
	"encoding/binary"
	"net/netip"
	"time"

	"grimm.is/rtnl/internal/duplex"
	"grimm.is/rtnl/internal/logging"
	"grimm.is/rtnl/internal/metrics"
	"grimm.is/rtnl/internal/nlattr"
)

// Address subsystem request vocabulary. Every operation is family-typed;
// a v4 request never reads or writes v6 state.

type addrV4ListReq struct{ index uint32 }

type addrV6ListReq struct{ index uint32 }

type addrV4SetReq struct {
	index  uint32
	prefix netip.Prefix
}

type addrV6SetReq struct {
	index  uint32
	prefix netip.Prefix
}

type addrV4DelReq struct {
	index  uint32
	prefix netip.Prefix
}

type addrV6DelReq struct {
	index  uint32
	prefix netip.Prefix
}

func (addrV4ListReq) isAddressRequest() {}
func (addrV6ListReq) isAddressRequest() {}
func (addrV4SetReq) isAddressRequest()  {}
func (addrV6SetReq) isAddressRequest()  {}
func (addrV4DelReq) isAddressRequest()  {}
func (addrV6DelReq) isAddressRequest()  {}

func (addrV4ListReq) name() string { return "ipv4_list" }
func (addrV6ListReq) name() string { return "ipv6_list" }
func (addrV4SetReq) name() string  { return "ipv4_set" }
func (addrV6SetReq) name() string  { return "ipv6_set" }
func (addrV4DelReq) name() string  { return "ipv4_delete" }
func (addrV6DelReq) name() string  { return "ipv6_delete" }

// Address subsystem response vocabulary (plus the shared status variants).
// The list payloads stay family-distinct so a mixed-up reply is caught as
// a contract violation instead of silently crossing families.

type addrV4List struct{ addrs []netip.Addr }

type addrV6List struct{ addrs []netip.Addr }

func (addrV4List) isAddressResponse() {}
func (addrV6List) isAddressResponse() {}

// addressServer answers address requests against the transport's address
// sub-handle, one request at a time.
type addressServer struct {
	ops AddressOps
	log *logging.Logger
}

func (s *addressServer) serve(server *duplex.Server[addressRequest, addressResponse]) error {
	for {
		req, respond, ok := server.Accept()
		if !ok {
			return nil
		}
		start := time.Now()
		resp := s.handle(req)
		metrics.Get().RecordRequest("address", req.name(), resultLabel(resp), start)
		respond(resp)
	}
}

func (s *addressServer) handle(req addressRequest) addressResponse {
	switch r := req.(type) {
	case addrV4ListReq:
		addrs, fail := s.list("IPv4 address list", familyV4, r.index)
		if fail != nil {
			return fail
		}
		return addrV4List{addrs: addrs}
	case addrV6ListReq:
		addrs, fail := s.list("IPv6 address list", familyV6, r.index)
		if fail != nil {
			return fail
		}
		return addrV6List{addrs: addrs}
	case addrV4SetReq:
		return s.set("IPv4 address set", familyV4, r.index, r.prefix)
	case addrV6SetReq:
		return s.set("IPv6 address set", familyV6, r.index, r.prefix)
	case addrV4DelReq:
		return s.del("IPv4 address delete", familyV4, r.index, r.prefix)
	case addrV6DelReq:
		return s.del("IPv6 address delete", familyV6, r.index, r.prefix)
	default:
		return respNotImplemented{}
	}
}

// list dumps one family's addresses, narrowed to a single interface when
// index is non-zero. Only the address itself survives the decode; scope,
// lifetime and peer details are dropped.
func (s *addressServer) list(op string, family int, index uint32) ([]netip.Addr, addressResponse) {
	entries, err := s.ops.List(family)
	if err != nil {
		s.log.Warn("address dump failed", "op", op, "error", err)
		return nil, respFailed{}
	}
	addrs := make([]netip.Addr, 0, len(entries))
	for _, entry := range entries {
		if entry.IPNet == nil {
			continue
		}
		if index != 0 && uint32(entry.LinkIndex) != index {
			continue
		}
		addr, ok := netip.AddrFromSlice(entry.IPNet.IP)
		if !ok {
			continue
		}
		addrs = append(addrs, addr.Unmap())
	}
	return addrs, nil
}

func (s *addressServer) set(op string, family uint8, index uint32, prefix netip.Prefix) addressResponse {
	msg, fail := s.message(op, family, index, prefix)
	if fail != nil {
		return fail
	}
	if err := s.ops.Add(msg); err != nil {
		if isExists(err) {
			// Assigning an address the interface already carries is a no-op.
			return respSuccess{}
		}
		s.log.Warn("address update failed", "op", op, "ifindex", index, "prefix", prefix, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

func (s *addressServer) del(op string, family uint8, index uint32, prefix netip.Prefix) addressResponse {
	msg, fail := s.message(op, family, index, prefix)
	if fail != nil {
		return fail
	}
	if err := s.ops.Delete(msg); err != nil {
		if isAddrGone(err) {
			return respNotFound{}
		}
		s.log.Warn("address update failed", "op", op, "ifindex", index, "prefix", prefix, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

// message assembles the wire form shared by set and delete. Index 0 and
// prefixes outside the operation's family are rejected before any wire
// call.
func (s *addressServer) message(op string, family uint8, index uint32, prefix netip.Prefix) (*AddressMessage, addressResponse) {
	if index == 0 {
		return nil, respFailed{}
	}
	p := netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits())
	addr := p.Addr()
	bad := !p.IsValid() ||
		(family == familyV4 && !addr.Is4()) ||
		(family == familyV6 && !addr.Is6())
	if bad {
		s.log.Warn("address rejected", "op", op, "ifindex", index, "prefix", prefix)
		return nil, respFailed{}
	}
	var attrs []nlattr.Attr
	switch {
	case addr.IsMulticast():
		// Multicast addresses take no local or broadcast attributes;
		// only v6 names the group explicitly.
		if addr.Is6() {
			attrs = append(attrs, nlattr.Address(ifaMulticast, addr))
		}
	case addr.Is4():
		attrs = append(attrs,
			nlattr.Address(ifaAddress, addr),
			nlattr.Address(ifaLocal, addr),
			nlattr.Address(ifaBroadcast, v4Broadcast(p)),
		)
	default:
		attrs = append(attrs,
			nlattr.Address(ifaAddress, addr),
			nlattr.Address(ifaLocal, addr),
		)
	}
	return &AddressMessage{
		Family:    family,
		PrefixLen: uint8(p.Bits()),
		Index:     index,
		Attrs:     attrs,
	}, nil
}

// v4Broadcast is the prefix's address with every host bit set; a /32
// broadcasts to itself.
func v4Broadcast(p netip.Prefix) netip.Addr {
	if p.Bits() >= 32 {
		return p.Addr()
	}
	a4 := p.Addr().As4()
	raw := binary.BigEndian.Uint32(a4[:])
	raw |= uint32(1)<<(32-p.Bits()) - 1
	binary.BigEndian.PutUint32(a4[:], raw)
	return netip.AddrFrom4(a4)
}

// AddressClient issues address subsystem requests. Every method sends
// exactly one request and blocks until its paired response arrives. Safe
// for concurrent use.
type AddressClient struct {
	requests duplex.Client[addressRequest, addressResponse]
}

// IPv4List reports the IPv4 addresses assigned to one interface, or to
// every interface when index is 0.
func (c *AddressClient) IPv4List(index uint32) ([]netip.Addr, error) {
	const op = "IPv4 address list"
	resp, err := c.requests.Send(addrV4ListReq{index: index})
	if err != nil {
		return nil, sendError(op, err)
	}
	if r, ok := resp.(addrV4List); ok {
		return r.addrs, nil
	}
	return nil, dataResult(op, resp)
}

// IPv6List reports the IPv6 addresses assigned to one interface, or to
// every interface when index is 0.
func (c *AddressClient) IPv6List(index uint32) ([]netip.Addr, error) {
	const op = "IPv6 address list"
	resp, err := c.requests.Send(addrV6ListReq{index: index})
	if err != nil {
		return nil, sendError(op, err)
	}
	if r, ok := resp.(addrV6List); ok {
		return r.addrs, nil
	}
	return nil, dataResult(op, resp)
}

// IPv4Set assigns an IPv4 prefix to the interface. Assigning an address
// the interface already carries succeeds.
func (c *AddressClient) IPv4Set(index uint32, prefix netip.Prefix) error {
	const op = "IPv4 address set"
	resp, err := c.requests.Send(addrV4SetReq{index: index, prefix: prefix})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv6Set assigns an IPv6 prefix to the interface. Assigning an address
// the interface already carries succeeds.
func (c *AddressClient) IPv6Set(index uint32, prefix netip.Prefix) error {
	const op = "IPv6 address set"
	resp, err := c.requests.Send(addrV6SetReq{index: index, prefix: prefix})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv4Delete removes an IPv4 prefix from the interface. Removing an
// address the interface does not carry reports ErrNotFound.
func (c *AddressClient) IPv4Delete(index uint32, prefix netip.Prefix) error {
	const op = "IPv4 address delete"
	resp, err := c.requests.Send(addrV4DelReq{index: index, prefix: prefix})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv6Delete removes an IPv6 prefix from the interface. Removing an
// address the interface does not carry reports ErrNotFound.
func (c *AddressClient) IPv6Delete(index uint32, prefix netip.Prefix) error {
	const op = "IPv6 address delete"
	resp, err := c.requests.Send(addrV6DelReq{index: index, prefix: prefix})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}
