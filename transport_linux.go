//go:build linux
// +build linux

package rtnl

import (
	"errors"
	"fmt"
	"net"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// sysTransport talks to the kernel over rtnetlink. Typed reads and the
// neighbor/route verbs go through a vishvananda handle; link and address
// writes are assembled as raw requests so the callers control exactly
// which attributes and change masks go on the wire.
type sysTransport struct {
	handle *netlink.Handle
	ns     netns.NsHandle
	hasNS  bool
}

func dialTransport(opts *options) (Transport, error) {
	if opts.nsName == "" && opts.nsPath == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, fmt.Errorf("netlink dial: %w", err)
		}
		return &sysTransport{handle: h, ns: netns.None()}, nil
	}

	var (
		ns  netns.NsHandle
		err error
	)
	if opts.nsName != "" {
		ns, err = netns.GetFromName(opts.nsName)
	} else {
		ns, err = netns.GetFromPath(opts.nsPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open netns: %w", err)
	}
	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		ns.Close()
		return nil, fmt.Errorf("netlink dial in netns: %w", err)
	}
	return &sysTransport{handle: h, ns: ns, hasNS: true}, nil
}

func (t *sysTransport) Link() LinkOps         { return sysLinkOps{t} }
func (t *sysTransport) Address() AddressOps   { return sysAddressOps{t} }
func (t *sysTransport) Neighbor() NeighborOps { return sysNeighborOps{t} }
func (t *sysTransport) Route() RouteOps       { return sysRouteOps{t} }

func (t *sysTransport) Close() error {
	t.handle.Close()
	if t.hasNS {
		return t.ns.Close()
	}
	return nil
}

// execute sends a raw request on a fresh socket and waits for the ack.
// When the transport is bound to a namespace the calling thread enters
// it first, so the socket is opened against the right network stack.
func (t *sysTransport) execute(req *nl.NetlinkRequest) error {
	if !t.hasNS {
		_, err := req.Execute(unix.NETLINK_ROUTE, 0)
		return err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer orig.Close()
	if err := netns.Set(t.ns); err != nil {
		return fmt.Errorf("enter netns: %w", err)
	}
	defer netns.Set(orig)

	_, err = req.Execute(unix.NETLINK_ROUTE, 0)
	return err
}

type sysLinkOps struct {
	t *sysTransport
}

func (o sysLinkOps) List() ([]netlink.Link, error) {
	return o.t.handle.LinkList()
}

func (o sysLinkOps) Get(index int) (netlink.Link, error) {
	link, err := o.t.handle.LinkByIndex(index)
	if err != nil {
		// LinkByIndex swallows the kernel errno behind its own error
		// type. Hand callers the errno so they classify one way.
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil, unix.ENODEV
		}
		return nil, err
	}
	return link, nil
}

func (o sysLinkOps) GetByName(name string) (netlink.Link, error) {
	link, err := o.t.handle.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil, unix.ENODEV
		}
		return nil, err
	}
	return link, nil
}

func (o sysLinkOps) Add(msg *LinkMessage) error {
	return o.t.execute(newLinkRequest(unix.RTM_NEWLINK, unix.NLM_F_CREATE|unix.NLM_F_EXCL, msg))
}

func (o sysLinkOps) Modify(msg *LinkMessage) error {
	return o.t.execute(newLinkRequest(unix.RTM_NEWLINK, 0, msg))
}

func (o sysLinkOps) Delete(index int) error {
	req := nl.NewNetlinkRequest(unix.RTM_DELLINK, unix.NLM_F_ACK)
	msg := nl.NewIfInfomsg(unix.AF_UNSPEC)
	msg.Index = int32(index)
	req.AddData(msg)
	return o.t.execute(req)
}

func newLinkRequest(proto, extraFlags int, msg *LinkMessage) *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(proto, extraFlags|unix.NLM_F_ACK)
	ifmsg := nl.NewIfInfomsg(unix.AF_UNSPEC)
	ifmsg.Index = msg.Index
	ifmsg.Flags = msg.Flags
	ifmsg.Change = msg.Change
	req.AddData(ifmsg)
	for _, a := range msg.Attrs {
		req.AddData(nl.NewRtAttr(int(a.Type), a.Data))
	}
	return req
}

type sysAddressOps struct {
	t *sysTransport
}

func (o sysAddressOps) List(family int) ([]netlink.Addr, error) {
	return o.t.handle.AddrList(nil, family)
}

func (o sysAddressOps) Add(msg *AddressMessage) error {
	return o.t.execute(newAddrRequest(unix.RTM_NEWADDR, unix.NLM_F_CREATE|unix.NLM_F_EXCL, msg))
}

func (o sysAddressOps) Delete(msg *AddressMessage) error {
	return o.t.execute(newAddrRequest(unix.RTM_DELADDR, 0, msg))
}

func newAddrRequest(proto, extraFlags int, msg *AddressMessage) *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(proto, extraFlags|unix.NLM_F_ACK)
	ifmsg := nl.NewIfAddrmsg(int(msg.Family))
	ifmsg.Prefixlen = msg.PrefixLen
	ifmsg.Index = msg.Index
	req.AddData(ifmsg)
	for _, a := range msg.Attrs {
		req.AddData(nl.NewRtAttr(int(a.Type), a.Data))
	}
	return req
}

type sysNeighborOps struct {
	t *sysTransport
}

func (o sysNeighborOps) List(family int) ([]netlink.Neigh, error) {
	return o.t.handle.NeighList(0, family)
}

func (o sysNeighborOps) Add(n *netlink.Neigh) error {
	return o.t.handle.NeighAdd(n)
}

func (o sysNeighborOps) Replace(n *netlink.Neigh) error {
	return o.t.handle.NeighSet(n)
}

func (o sysNeighborOps) Delete(n *netlink.Neigh) error {
	return o.t.handle.NeighDel(n)
}

type sysRouteOps struct {
	t *sysTransport
}

func (o sysRouteOps) List(family int) ([]netlink.Route, error) {
	// Without an explicit table filter the library drops everything
	// outside the main table; RT_TABLE_UNSPEC asks for all of them.
	filter := &netlink.Route{Table: unix.RT_TABLE_UNSPEC}
	return o.t.handle.RouteListFiltered(family, filter, netlink.RT_FILTER_TABLE)
}

func (o sysRouteOps) Lookup(dst net.IP) ([]netlink.Route, error) {
	return o.t.handle.RouteGet(dst)
}

func (o sysRouteOps) Add(r *netlink.Route) error {
	return o.t.handle.RouteAdd(r)
}

func (o sysRouteOps) Replace(r *netlink.Route) error {
	return o.t.handle.RouteReplace(r)
}

func (o sysRouteOps) Delete(r *netlink.Route) error {
	return o.t.handle.RouteDel(r)
}

// newVia builds the RTA_VIA destination for a gateway whose address
// family differs from the route's.
func newVia(family int, ip net.IP) netlink.Destination {
	return &netlink.Via{AddrFamily: family, Addr: ip}
}

func viaDestination(d netlink.Destination) (family int, ip net.IP, ok bool) {
	via, ok := d.(*netlink.Via)
	if !ok {
		return 0, nil, false
	}
	return via.AddrFamily, via.Addr, true
}
