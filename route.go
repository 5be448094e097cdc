package rtnl

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/vishvananda/netlink"

	"grimm.is/rtnl/internal/duplex"
	"grimm.is/rtnl/internal/logging"
	"grimm.is/rtnl/internal/metrics"
)

// Route is one kernel routing table entry. IfIndex, Gateway, Source,
// Metric and Table are optional; their zero values mean "absent" and let
// the kernel pick its defaults. The gateway may belong to the other
// address family, in which case it is written as a "via" attribute. A
// non-empty NextHops set supersedes IfIndex and Gateway on the wire,
// though both survive in the decoded form.
type Route struct {
	Dst      netip.Prefix
	IfIndex  uint32
	Gateway  netip.Addr
	Source   netip.Addr
	Metric   uint32
	Table    uint32
	NextHops []NextHop
}

// NextHop is one weighted leg of a multipath route. Weight is one-based;
// the wire carries it as a zero-based hop count.
type NextHop struct {
	IfIndex uint32
	Gateway netip.Addr
	Weight  uint32
	Flags   uint8
}

// Route subsystem request vocabulary. Every operation is family-typed.

type routeV4ListReq struct{}

type routeV6ListReq struct{}

type routeV4AddReq struct{ route Route }

type routeV6AddReq struct{ route Route }

type routeV4ReplaceReq struct{ route Route }

type routeV6ReplaceReq struct{ route Route }

type routeV4DelReq struct{ route Route }

type routeV6DelReq struct{ route Route }

type routeV4GetReq struct{ dst netip.Addr }

type routeV6GetReq struct{ dst netip.Addr }

type routeV4GetPrefixReq struct{ prefix netip.Prefix }

type routeV6GetPrefixReq struct{ prefix netip.Prefix }

func (routeV4ListReq) isRouteRequest()      {}
func (routeV6ListReq) isRouteRequest()      {}
func (routeV4AddReq) isRouteRequest()       {}
func (routeV6AddReq) isRouteRequest()       {}
func (routeV4ReplaceReq) isRouteRequest()   {}
func (routeV6ReplaceReq) isRouteRequest()   {}
func (routeV4DelReq) isRouteRequest()       {}
func (routeV6DelReq) isRouteRequest()       {}
func (routeV4GetReq) isRouteRequest()       {}
func (routeV6GetReq) isRouteRequest()       {}
func (routeV4GetPrefixReq) isRouteRequest() {}
func (routeV6GetPrefixReq) isRouteRequest() {}

func (routeV4ListReq) name() string      { return "ipv4_list" }
func (routeV6ListReq) name() string      { return "ipv6_list" }
func (routeV4AddReq) name() string       { return "ipv4_add" }
func (routeV6AddReq) name() string       { return "ipv6_add" }
func (routeV4ReplaceReq) name() string   { return "ipv4_replace" }
func (routeV6ReplaceReq) name() string   { return "ipv6_replace" }
func (routeV4DelReq) name() string       { return "ipv4_delete" }
func (routeV6DelReq) name() string       { return "ipv6_delete" }
func (routeV4GetReq) name() string       { return "ipv4_get" }
func (routeV6GetReq) name() string       { return "ipv6_get" }
func (routeV4GetPrefixReq) name() string { return "ipv4_get_by_prefix" }
func (routeV6GetPrefixReq) name() string { return "ipv6_get_by_prefix" }

// Route subsystem response vocabulary (plus the shared status variants).

type routeV4List struct{ routes []Route }

type routeV6List struct{ routes []Route }

type routeV4Resp struct{ route Route }

type routeV6Resp struct{ route Route }

func (routeV4List) isRouteResponse() {}
func (routeV6List) isRouteResponse() {}
func (routeV4Resp) isRouteResponse() {}
func (routeV6Resp) isRouteResponse() {}

// routeServer answers route requests against the transport's route
// sub-handle, one request at a time.
type routeServer struct {
	ops RouteOps
	log *logging.Logger
}

func (s *routeServer) serve(server *duplex.Server[routeRequest, routeResponse]) error {
	for {
		req, respond, ok := server.Accept()
		if !ok {
			return nil
		}
		start := time.Now()
		resp := s.handle(req)
		metrics.Get().RecordRequest("route", req.name(), resultLabel(resp), start)
		respond(resp)
	}
}

func (s *routeServer) handle(req routeRequest) routeResponse {
	switch r := req.(type) {
	case routeV4ListReq:
		routes, fail := s.list("IPv4 route list", familyV4)
		if fail != nil {
			return fail
		}
		return routeV4List{routes: routes}
	case routeV6ListReq:
		routes, fail := s.list("IPv6 route list", familyV6)
		if fail != nil {
			return fail
		}
		return routeV6List{routes: routes}
	case routeV4AddReq:
		return s.modify("IPv4 route add", familyV4, &r.route, s.ops.Add)
	case routeV6AddReq:
		return s.modify("IPv6 route add", familyV6, &r.route, s.ops.Add)
	case routeV4ReplaceReq:
		return s.modify("IPv4 route replace", familyV4, &r.route, s.ops.Replace)
	case routeV6ReplaceReq:
		return s.modify("IPv6 route replace", familyV6, &r.route, s.ops.Replace)
	case routeV4DelReq:
		return s.modify("IPv4 route delete", familyV4, &r.route, s.ops.Delete)
	case routeV6DelReq:
		return s.modify("IPv6 route delete", familyV6, &r.route, s.ops.Delete)
	case routeV4GetReq:
		route, fail := s.getByDst("IPv4 route get", familyV4, r.dst)
		if fail != nil {
			return fail
		}
		return routeV4Resp{route: route}
	case routeV6GetReq:
		route, fail := s.getByDst("IPv6 route get", familyV6, r.dst)
		if fail != nil {
			return fail
		}
		return routeV6Resp{route: route}
	case routeV4GetPrefixReq:
		route, fail := s.getByPrefix("IPv4 route get by prefix", familyV4, r.prefix)
		if fail != nil {
			return fail
		}
		return routeV4Resp{route: route}
	case routeV6GetPrefixReq:
		route, fail := s.getByPrefix("IPv6 route get by prefix", familyV6, r.prefix)
		if fail != nil {
			return fail
		}
		return routeV6Resp{route: route}
	default:
		return respNotImplemented{}
	}
}

func (s *routeServer) list(op string, family int) ([]Route, routeResponse) {
	wires, err := s.ops.List(family)
	if err != nil {
		s.log.Warn("route dump failed", "op", op, "error", err)
		return nil, respFailed{}
	}
	routes := make([]Route, 0, len(wires))
	for i := range wires {
		route, ok := decodeRoute(family, &wires[i])
		if !ok {
			continue
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// modify runs one route write. Adds are exclusive: a conflicting entry
// fails rather than being overwritten.
func (s *routeServer) modify(op string, family int, route *Route, verb func(*netlink.Route) error) routeResponse {
	wire, err := encodeRoute(family, route)
	if err != nil {
		s.log.Warn("route rejected", "op", op, "dst", route.Dst, "error", err)
		return respFailed{}
	}
	if err := verb(wire); err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("route update failed", "op", op, "dst", route.Dst, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

// getByDst resolves the route the kernel would pick for one destination
// address.
func (s *routeServer) getByDst(op string, family int, dst netip.Addr) (Route, routeResponse) {
	addr := dst.Unmap()
	if familyMismatch(family, addr) {
		s.log.Warn("route rejected", "op", op, "dst", dst)
		return Route{}, respFailed{}
	}
	wires, err := s.ops.Lookup(net.IP(addr.AsSlice()))
	if err != nil {
		if isNotFound(err) {
			return Route{}, respNotFound{}
		}
		s.log.Warn("route lookup failed", "op", op, "dst", dst, "error", err)
		return Route{}, respFailed{}
	}
	// The kernel may resolve to a looser match; accept only a route
	// whose prefix actually contains the queried address.
	route, ok := findRoute(family, wires, func(p netip.Prefix) bool { return p.Contains(addr) })
	if !ok {
		return Route{}, respNotFound{}
	}
	return route, nil
}

// getByPrefix reports the route whose destination equals the requested
// prefix exactly.
func (s *routeServer) getByPrefix(op string, family int, prefix netip.Prefix) (Route, routeResponse) {
	want := netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits())
	if !want.IsValid() || familyMismatch(family, want.Addr()) {
		s.log.Warn("route rejected", "op", op, "prefix", prefix)
		return Route{}, respFailed{}
	}
	var wires []netlink.Route
	var err error
	if want.Bits() == 0 {
		// The zero prefix has no lookup address; scan the table instead.
		wires, err = s.ops.List(family)
	} else {
		wires, err = s.ops.Lookup(net.IP(want.Addr().AsSlice()))
	}
	if err != nil {
		if isNotFound(err) {
			return Route{}, respNotFound{}
		}
		s.log.Warn("route lookup failed", "op", op, "prefix", prefix, "error", err)
		return Route{}, respFailed{}
	}
	route, ok := findRoute(family, wires, func(p netip.Prefix) bool { return p == want })
	if !ok {
		return Route{}, respNotFound{}
	}
	return route, nil
}

// findRoute scans lookup results for the first decodable match. Local
// and broadcast kernel entries never count as matches here, though the
// plain dumps keep them.
func findRoute(family int, wires []netlink.Route, match func(netip.Prefix) bool) (Route, bool) {
	for i := range wires {
		w := &wires[i]
		if w.Type == rtnLocal || w.Type == rtnBroadcast {
			continue
		}
		route, ok := decodeRoute(family, w)
		if !ok {
			continue
		}
		if match(route.Dst) {
			return route, true
		}
	}
	return Route{}, false
}

func familyMismatch(family int, addr netip.Addr) bool {
	if family == familyV4 {
		return !addr.Is4()
	}
	return !addr.Is6()
}

func familyName(family int) string {
	if family == familyV4 {
		return "IPv4"
	}
	return "IPv6"
}

// encodeRoute translates a domain route into its wire form. A non-empty
// next-hop set supersedes the single gateway and interface fields.
// Gateways outside the route's family become "via" destinations.
func encodeRoute(family int, route *Route) (*netlink.Route, error) {
	dst := netip.PrefixFrom(route.Dst.Addr().Unmap(), route.Dst.Bits())
	if !dst.IsValid() || familyMismatch(family, dst.Addr()) {
		return nil, fmt.Errorf("destination %s is not a valid %s prefix", route.Dst, familyName(family))
	}
	wire := &netlink.Route{
		Family: family,
		Dst: &net.IPNet{
			IP:   net.IP(dst.Addr().AsSlice()),
			Mask: net.CIDRMask(dst.Bits(), dst.Addr().BitLen()),
		},
		Priority: int(route.Metric),
		Table:    int(route.Table),
	}
	if route.Source.IsValid() {
		src := route.Source.Unmap()
		if familyMismatch(family, src) {
			return nil, fmt.Errorf("source %s does not match the route family", route.Source)
		}
		wire.Src = net.IP(src.AsSlice())
	}
	if len(route.NextHops) > 0 {
		for _, hop := range route.NextHops {
			info := &netlink.NexthopInfo{
				LinkIndex: int(hop.IfIndex),
				Hops:      hopCount(hop.Weight),
				Flags:     int(hop.Flags),
			}
			if hop.Gateway.IsValid() {
				gw := hop.Gateway.Unmap()
				if familyMismatch(family, gw) {
					info.Via = newVia(addrFamily(gw), net.IP(gw.AsSlice()))
				} else {
					info.Gw = net.IP(gw.AsSlice())
				}
			}
			wire.MultiPath = append(wire.MultiPath, info)
		}
		return wire, nil
	}
	wire.LinkIndex = int(route.IfIndex)
	if route.Gateway.IsValid() {
		gw := route.Gateway.Unmap()
		if familyMismatch(family, gw) {
			wire.Via = newVia(addrFamily(gw), net.IP(gw.AsSlice()))
		} else {
			wire.Gw = net.IP(gw.AsSlice())
		}
	}
	return wire, nil
}

// decodeRoute converts one wire route, dropping messages from the wrong
// family. A missing destination decodes as the family's zero prefix.
func decodeRoute(family int, w *netlink.Route) (Route, bool) {
	if w.Family != family {
		return Route{}, false
	}
	route := Route{
		IfIndex: uint32(w.LinkIndex),
		Metric:  uint32(w.Priority),
		Table:   uint32(w.Table),
	}
	if w.Dst != nil {
		ip, ok := netip.AddrFromSlice(w.Dst.IP)
		if !ok {
			return Route{}, false
		}
		ones, _ := w.Dst.Mask.Size()
		route.Dst = netip.PrefixFrom(ip.Unmap(), ones)
	} else {
		route.Dst = netip.PrefixFrom(unspecifiedAddr(family), 0)
	}
	if gw, ok := decodeGateway(w.Gw, w.Via); ok {
		route.Gateway = gw
	}
	if src, ok := netip.AddrFromSlice(w.Src); ok {
		src = src.Unmap()
		if !familyMismatch(family, src) {
			route.Source = src
		}
	}
	for _, info := range w.MultiPath {
		hop := NextHop{
			IfIndex: uint32(info.LinkIndex),
			Weight:  uint32(info.Hops) + 1,
			Flags:   uint8(info.Flags),
		}
		if gw, ok := decodeGateway(info.Gw, info.Via); ok {
			hop.Gateway = gw
		}
		route.NextHops = append(route.NextHops, hop)
	}
	return route, true
}

// decodeGateway reads a next hop from either the plain gateway attribute
// or the cross-family via attribute.
func decodeGateway(gw net.IP, via netlink.Destination) (netip.Addr, bool) {
	if len(gw) > 0 {
		if addr, ok := netip.AddrFromSlice(gw); ok {
			return addr.Unmap(), true
		}
		return netip.Addr{}, false
	}
	if via != nil {
		if _, ip, ok := viaDestination(via); ok {
			if addr, ok2 := netip.AddrFromSlice(ip); ok2 {
				return addr.Unmap(), true
			}
		}
	}
	return netip.Addr{}, false
}

// hopCount converts a one-based domain weight to the zero-based wire
// field, saturating at the field's maximum.
func hopCount(weight uint32) int {
	if weight > 0 {
		weight--
	}
	if weight > 255 {
		weight = 255
	}
	return int(weight)
}

func addrFamily(addr netip.Addr) int {
	if addr.Is4() {
		return familyV4
	}
	return familyV6
}

func unspecifiedAddr(family int) netip.Addr {
	if family == familyV4 {
		return netip.IPv4Unspecified()
	}
	return netip.IPv6Unspecified()
}

// RouteClient issues route subsystem requests. Every method sends
// exactly one request and blocks until its paired response arrives. Safe
// for concurrent use.
type RouteClient struct {
	requests duplex.Client[routeRequest, routeResponse]
}

// IPv4List reports every IPv4 route across all routing tables.
func (c *RouteClient) IPv4List() ([]Route, error) {
	const op = "IPv4 route list"
	resp, err := c.requests.Send(routeV4ListReq{})
	if err != nil {
		return nil, sendError(op, err)
	}
	if r, ok := resp.(routeV4List); ok {
		return r.routes, nil
	}
	return nil, dataResult(op, resp)
}

// IPv6List reports every IPv6 route across all routing tables.
func (c *RouteClient) IPv6List() ([]Route, error) {
	const op = "IPv6 route list"
	resp, err := c.requests.Send(routeV6ListReq{})
	if err != nil {
		return nil, sendError(op, err)
	}
	if r, ok := resp.(routeV6List); ok {
		return r.routes, nil
	}
	return nil, dataResult(op, resp)
}

// IPv4Add installs an IPv4 route. Installing a destination the table
// already holds fails; use IPv4Replace to overwrite.
func (c *RouteClient) IPv4Add(route Route) error {
	const op = "IPv4 route add"
	resp, err := c.requests.Send(routeV4AddReq{route: route})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv6Add installs an IPv6 route. Installing a destination the table
// already holds fails; use IPv6Replace to overwrite.
func (c *RouteClient) IPv6Add(route Route) error {
	const op = "IPv6 route add"
	resp, err := c.requests.Send(routeV6AddReq{route: route})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv4Replace installs an IPv4 route, overwriting any existing route for
// the same destination.
func (c *RouteClient) IPv4Replace(route Route) error {
	const op = "IPv4 route replace"
	resp, err := c.requests.Send(routeV4ReplaceReq{route: route})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv6Replace installs an IPv6 route, overwriting any existing route for
// the same destination.
func (c *RouteClient) IPv6Replace(route Route) error {
	const op = "IPv6 route replace"
	resp, err := c.requests.Send(routeV6ReplaceReq{route: route})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv4Delete removes an IPv4 route. A destination the table does not
// hold reports ErrNotFound.
func (c *RouteClient) IPv4Delete(route Route) error {
	const op = "IPv4 route delete"
	resp, err := c.requests.Send(routeV4DelReq{route: route})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv6Delete removes an IPv6 route. A destination the table does not
// hold reports ErrNotFound.
func (c *RouteClient) IPv6Delete(route Route) error {
	const op = "IPv6 route delete"
	resp, err := c.requests.Send(routeV6DelReq{route: route})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IPv4Get resolves the IPv4 route the kernel would use for dst. The
// result's destination prefix always contains dst.
func (c *RouteClient) IPv4Get(dst netip.Addr) (Route, error) {
	const op = "IPv4 route get"
	resp, err := c.requests.Send(routeV4GetReq{dst: dst})
	if err != nil {
		return Route{}, sendError(op, err)
	}
	if r, ok := resp.(routeV4Resp); ok {
		return r.route, nil
	}
	return Route{}, dataResult(op, resp)
}

// IPv6Get resolves the IPv6 route the kernel would use for dst. The
// result's destination prefix always contains dst.
func (c *RouteClient) IPv6Get(dst netip.Addr) (Route, error) {
	const op = "IPv6 route get"
	resp, err := c.requests.Send(routeV6GetReq{dst: dst})
	if err != nil {
		return Route{}, sendError(op, err)
	}
	if r, ok := resp.(routeV6Resp); ok {
		return r.route, nil
	}
	return Route{}, dataResult(op, resp)
}

// IPv4GetByPrefix reports the IPv4 route whose destination equals prefix
// exactly.
func (c *RouteClient) IPv4GetByPrefix(prefix netip.Prefix) (Route, error) {
	const op = "IPv4 route get by prefix"
	resp, err := c.requests.Send(routeV4GetPrefixReq{prefix: prefix})
	if err != nil {
		return Route{}, sendError(op, err)
	}
	if r, ok := resp.(routeV4Resp); ok {
		return r.route, nil
	}
	return Route{}, dataResult(op, resp)
}

// IPv6GetByPrefix reports the IPv6 route whose destination equals prefix
// exactly.
func (c *RouteClient) IPv6GetByPrefix(prefix netip.Prefix) (Route, error) {
	const op = "IPv6 route get by prefix"
	resp, err := c.requests.Send(routeV6GetPrefixReq{prefix: prefix})
	if err != nil {
		return Route{}, sendError(op, err)
	}
	if r, ok := resp.(routeV6Resp); ok {
		return r.route, nil
	}
	return Route{}, dataResult(op, resp)
}
