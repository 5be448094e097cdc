package rtnl

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"grimm.is/rtnl/internal/duplex"
	"grimm.is/rtnl/internal/logging"
	"grimm.is/rtnl/internal/metrics"
	"grimm.is/rtnl/internal/nlattr"
)

// Interface identifies one kernel network interface. Index 0 is never a
// valid identity; it means "unspecified" on the wire.
type Interface struct {
	Index uint32
	Name  string
}

// MacAddr is a 6-byte link-layer address. Value type, no identity.
type MacAddr [6]byte

func (m MacAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Link subsystem request vocabulary.

type linkListReq struct{}

type linkGetReq struct{ index uint32 }

type linkGetByNameReq struct{ ifName string }

type linkMACGetReq struct{ index uint32 }

type linkMACSetReq struct {
	index uint32
	mac   MacAddr
}

type linkMTUGetReq struct{ index uint32 }

type linkMTUSetReq struct {
	index uint32
	mtu   uint32
}

type linkAdminSetReq struct {
	index uint32
	up    bool
}

type linkPromiscSetReq struct {
	index  uint32
	enable bool
}

type linkAllmultiSetReq struct {
	index  uint32
	enable bool
}

type linkARPSetReq struct {
	index  uint32
	enable bool
}

type linkRenameReq struct {
	index  uint32
	ifName string
}

func (linkListReq) isLinkRequest()        {}
func (linkGetReq) isLinkRequest()         {}
func (linkGetByNameReq) isLinkRequest()   {}
func (linkMACGetReq) isLinkRequest()      {}
func (linkMACSetReq) isLinkRequest()      {}
func (linkMTUGetReq) isLinkRequest()      {}
func (linkMTUSetReq) isLinkRequest()      {}
func (linkAdminSetReq) isLinkRequest()    {}
func (linkPromiscSetReq) isLinkRequest()  {}
func (linkAllmultiSetReq) isLinkRequest() {}
func (linkARPSetReq) isLinkRequest()      {}
func (linkRenameReq) isLinkRequest()      {}

func (linkListReq) name() string        { return "list" }
func (linkGetReq) name() string         { return "get" }
func (linkGetByNameReq) name() string   { return "get_by_name" }
func (linkMACGetReq) name() string      { return "mac_get" }
func (linkMACSetReq) name() string      { return "mac_set" }
func (linkMTUGetReq) name() string      { return "mtu_get" }
func (linkMTUSetReq) name() string      { return "mtu_set" }
func (linkAdminSetReq) name() string    { return "admin_set" }
func (linkPromiscSetReq) name() string  { return "promisc_set" }
func (linkAllmultiSetReq) name() string { return "allmulti_set" }
func (linkARPSetReq) name() string      { return "arp_set" }
func (linkRenameReq) name() string      { return "rename" }

// Link subsystem response vocabulary (plus the shared status variants).

type linkInterfaces struct{ interfaces []Interface }

type linkInterfaceResp struct{ iface Interface }

type linkMACResp struct{ mac MacAddr }

type linkMTUResp struct{ mtu uint32 }

func (linkInterfaces) isLinkResponse()    {}
func (linkInterfaceResp) isLinkResponse() {}
func (linkMACResp) isLinkResponse()       {}
func (linkMTUResp) isLinkResponse()       {}

// linkServer answers link requests against the transport's link
// sub-handle, one request at a time.
type linkServer struct {
	ops LinkOps
	log *logging.Logger
}

func (s *linkServer) serve(server *duplex.Server[linkRequest, linkResponse]) error {
	for {
		req, respond, ok := server.Accept()
		if !ok {
			return nil
		}
		start := time.Now()
		resp := s.handle(req)
		metrics.Get().RecordRequest("link", req.name(), resultLabel(resp), start)
		respond(resp)
	}
}

func (s *linkServer) handle(req linkRequest) linkResponse {
	switch r := req.(type) {
	case linkListReq:
		return s.list()
	case linkGetReq:
		return s.get(r.index)
	case linkGetByNameReq:
		return s.getByName(r.ifName)
	case linkMACGetReq:
		return s.macGet(r.index)
	case linkMACSetReq:
		return s.modify("mac address set", &LinkMessage{
			Index: int32(r.index),
			Attrs: []nlattr.Attr{nlattr.Bytes(iflaAddress, r.mac[:])},
		})
	case linkMTUGetReq:
		return s.mtuGet(r.index)
	case linkMTUSetReq:
		return s.modify("mtu set", &LinkMessage{
			Index: int32(r.index),
			Attrs: []nlattr.Attr{nlattr.Uint32(iflaMTU, r.mtu)},
		})
	case linkAdminSetReq:
		var flags uint32
		if r.up {
			flags = unix.IFF_UP
		}
		return s.modify("admin state set", &LinkMessage{
			Index:  int32(r.index),
			Flags:  flags,
			Change: unix.IFF_UP,
		})
	case linkPromiscSetReq:
		return s.flagSet("promiscuous set", r.index, unix.IFF_PROMISC, r.enable)
	case linkAllmultiSetReq:
		return s.flagSet("allmulticast set", r.index, unix.IFF_ALLMULTI, r.enable)
	case linkARPSetReq:
		// The kernel flag is NOARP, the inverse of "ARP enabled".
		return s.flagSet("arp set", r.index, unix.IFF_NOARP, !r.enable)
	case linkRenameReq:
		return s.modify("rename", &LinkMessage{
			Index: int32(r.index),
			Attrs: []nlattr.Attr{nlattr.String(iflaIfname, r.ifName)},
		})
	default:
		return respNotImplemented{}
	}
}

func (s *linkServer) list() linkResponse {
	links, err := s.ops.List()
	if err != nil {
		s.log.Warn("interface list failed", "error", err)
		return respFailed{}
	}
	interfaces := make([]Interface, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Index == 0 || attrs.Name == "" {
			continue
		}
		interfaces = append(interfaces, Interface{Index: uint32(attrs.Index), Name: attrs.Name})
	}
	return linkInterfaces{interfaces: interfaces}
}

func (s *linkServer) get(index uint32) linkResponse {
	if index == 0 {
		return respNotFound{}
	}
	link, err := s.ops.Get(int(index))
	if err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("interface get failed", "ifindex", index, "error", err)
		return respFailed{}
	}
	return linkInterfaceResp{iface: Interface{Index: index, Name: link.Attrs().Name}}
}

func (s *linkServer) getByName(name string) linkResponse {
	link, err := s.ops.GetByName(name)
	if err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("interface get failed", "ifname", name, "error", err)
		return respFailed{}
	}
	index := link.Attrs().Index
	if index == 0 {
		return respNotFound{}
	}
	return linkInterfaceResp{iface: Interface{Index: uint32(index), Name: name}}
}

func (s *linkServer) macGet(index uint32) linkResponse {
	if index == 0 {
		return respNotFound{}
	}
	link, err := s.ops.Get(int(index))
	if err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("mac address get failed", "ifindex", index, "error", err)
		return respFailed{}
	}
	hw := link.Attrs().HardwareAddr
	if len(hw) < 6 {
		return respNotFound{}
	}
	var mac MacAddr
	copy(mac[:], hw[:6])
	return linkMACResp{mac: mac}
}

func (s *linkServer) mtuGet(index uint32) linkResponse {
	if index == 0 {
		return respNotFound{}
	}
	link, err := s.ops.Get(int(index))
	if err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("mtu get failed", "ifindex", index, "error", err)
		return respFailed{}
	}
	return linkMTUResp{mtu: uint32(link.Attrs().MTU)}
}

func (s *linkServer) flagSet(op string, index uint32, flag uint32, enable bool) linkResponse {
	var flags uint32
	if enable {
		flags = flag
	}
	return s.modify(op, &LinkMessage{Index: int32(index), Flags: flags, Change: flag})
}

// modify runs a scoped link update. Index 0 short-circuits to not-found
// before any wire call.
func (s *linkServer) modify(op string, msg *LinkMessage) linkResponse {
	if msg.Index == 0 {
		return respNotFound{}
	}
	if err := s.ops.Modify(msg); err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("link update failed", "op", op, "ifindex", msg.Index, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

// LinkClient issues link subsystem requests. Every method sends exactly
// one request and blocks until its paired response arrives. Safe for
// concurrent use.
type LinkClient struct {
	requests duplex.Client[linkRequest, linkResponse]
}

// List enumerates all interfaces, skipping kernel entries that report
// index 0 or carry no name.
func (c *LinkClient) List() ([]Interface, error) {
	const op = "interface list"
	resp, err := c.requests.Send(linkListReq{})
	if err != nil {
		return nil, sendError(op, err)
	}
	if r, ok := resp.(linkInterfaces); ok {
		return r.interfaces, nil
	}
	return nil, dataResult(op, resp)
}

// Get looks an interface up by index.
func (c *LinkClient) Get(index uint32) (Interface, error) {
	const op = "interface get"
	resp, err := c.requests.Send(linkGetReq{index: index})
	if err != nil {
		return Interface{}, sendError(op, err)
	}
	if r, ok := resp.(linkInterfaceResp); ok {
		return r.iface, nil
	}
	return Interface{}, dataResult(op, resp)
}

// GetByName looks an interface up by exact name.
func (c *LinkClient) GetByName(name string) (Interface, error) {
	const op = "interface get by name"
	resp, err := c.requests.Send(linkGetByNameReq{ifName: name})
	if err != nil {
		return Interface{}, sendError(op, err)
	}
	if r, ok := resp.(linkInterfaceResp); ok {
		return r.iface, nil
	}
	return Interface{}, dataResult(op, resp)
}

// MACAddr reports the interface's link-layer address.
func (c *LinkClient) MACAddr(index uint32) (MacAddr, error) {
	const op = "mac address get"
	resp, err := c.requests.Send(linkMACGetReq{index: index})
	if err != nil {
		return MacAddr{}, sendError(op, err)
	}
	if r, ok := resp.(linkMACResp); ok {
		return r.mac, nil
	}
	return MacAddr{}, dataResult(op, resp)
}

// SetMACAddr rewrites the interface's link-layer address.
func (c *LinkClient) SetMACAddr(index uint32, mac MacAddr) error {
	const op = "mac address set"
	resp, err := c.requests.Send(linkMACSetReq{index: index, mac: mac})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// MTU reports the interface's MTU.
func (c *LinkClient) MTU(index uint32) (uint32, error) {
	const op = "mtu get"
	resp, err := c.requests.Send(linkMTUGetReq{index: index})
	if err != nil {
		return 0, sendError(op, err)
	}
	if r, ok := resp.(linkMTUResp); ok {
		return r.mtu, nil
	}
	return 0, dataResult(op, resp)
}

// SetMTU changes the interface's MTU.
func (c *LinkClient) SetMTU(index uint32, mtu uint32) error {
	const op = "mtu set"
	resp, err := c.requests.Send(linkMTUSetReq{index: index, mtu: mtu})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// SetAdminState brings the interface up or down.
func (c *LinkClient) SetAdminState(index uint32, up bool) error {
	const op = "admin state set"
	resp, err := c.requests.Send(linkAdminSetReq{index: index, up: up})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// SetPromiscuous toggles promiscuous mode, touching no other flag.
func (c *LinkClient) SetPromiscuous(index uint32, enable bool) error {
	const op = "promiscuous set"
	resp, err := c.requests.Send(linkPromiscSetReq{index: index, enable: enable})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// SetAllMulticast toggles all-multicast mode, touching no other flag.
func (c *LinkClient) SetAllMulticast(index uint32, enable bool) error {
	const op = "allmulticast set"
	resp, err := c.requests.Send(linkAllmultiSetReq{index: index, enable: enable})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// SetARP enables or disables ARP on the interface.
func (c *LinkClient) SetARP(index uint32, enable bool) error {
	const op = "arp set"
	resp, err := c.requests.Send(linkARPSetReq{index: index, enable: enable})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// Rename changes the interface name.
func (c *LinkClient) Rename(index uint32, newName string) error {
	const op = "rename"
	resp, err := c.requests.Send(linkRenameReq{index: index, ifName: newName})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}
