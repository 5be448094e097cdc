package rtnl

import (
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"grimm.is/rtnl/internal/duplex"
	"grimm.is/rtnl/internal/logging"
	"grimm.is/rtnl/internal/metrics"
	"grimm.is/rtnl/internal/nlattr"
)

// VirtualInterfaceKind selects one virtual interface type and carries its
// kind-specific parameters. The set is closed: GRE and GRE-tap over v4
// and v6, IP-in-IP, IPv6 tunnel, and VLAN.
type VirtualInterfaceKind interface {
	infoKind() string
	infoData() []nlattr.Attr
	baseLink() uint32
}

// GREConfig parameterizes the four GRE kinds. For the IPv6 variants TTL
// carries the hop limit and ToS the traffic class; the wire attributes
// are the same. Local and Remote are written only when set. Key, when
// set, is applied to both the receive and transmit side. EncapLimit
// defaults to 255 when unset.
type GREConfig struct {
	Local      netip.Addr
	Remote     netip.Addr
	TTL        *uint8
	ToS        *uint8
	Key        *uint32
	EncapLimit *uint8
	PMTUDisc   bool
	IgnoreDF   bool
	Link       uint32
}

func (c GREConfig) infoData() []nlattr.Attr {
	attrs := make([]nlattr.Attr, 0, 10)
	if c.Local.IsValid() {
		attrs = append(attrs, nlattr.Address(iflaGreLocal, c.Local.Unmap()))
	}
	if c.Remote.IsValid() {
		attrs = append(attrs, nlattr.Address(iflaGreRemote, c.Remote.Unmap()))
	}
	if c.TTL != nil {
		attrs = append(attrs, nlattr.Uint8(iflaGreTTL, *c.TTL))
	}
	if c.ToS != nil {
		attrs = append(attrs, nlattr.Uint8(iflaGreTos, *c.ToS))
	}
	if c.Key != nil {
		attrs = append(attrs,
			nlattr.BigUint32(iflaGreIkey, *c.Key),
			nlattr.BigUint32(iflaGreOkey, *c.Key),
		)
	}
	attrs = append(attrs,
		nlattr.Uint8(iflaGreEncapLimit, encapLimit(c.EncapLimit)),
		nlattr.Flag(iflaGrePmtudisc, c.PMTUDisc),
		nlattr.Flag(iflaGreIgnoreDf, c.IgnoreDF),
	)
	if c.Link != 0 {
		attrs = append(attrs, nlattr.Uint32(iflaGreLink, c.Link))
	}
	return attrs
}

func (c GREConfig) baseLink() uint32 { return c.Link }

// GRETunnel is a point-to-point GRE tunnel over IPv4.
type GRETunnel struct{ GREConfig }

// GRETap is the layer-2 GRE variant over IPv4.
type GRETap struct{ GREConfig }

// GRE6Tunnel is a point-to-point GRE tunnel over IPv6.
type GRE6Tunnel struct{ GREConfig }

// GRE6Tap is the layer-2 GRE variant over IPv6.
type GRE6Tap struct{ GREConfig }

func (GRETunnel) infoKind() string  { return "gre" }
func (GRETap) infoKind() string     { return "gretap" }
func (GRE6Tunnel) infoKind() string { return "ip6gre" }
func (GRE6Tap) infoKind() string    { return "ip6gretap" }

// IPIPConfig parameterizes an IPv4-in-IPv4 tunnel. EncapLimit defaults
// to 255 when unset.
type IPIPConfig struct {
	Local      netip.Addr
	Remote     netip.Addr
	TTL        *uint8
	ToS        *uint8
	EncapLimit *uint8
	PMTUDisc   bool
	Link       uint32
}

func (c IPIPConfig) infoData() []nlattr.Attr {
	attrs := make([]nlattr.Attr, 0, 7)
	if c.Local.IsValid() {
		attrs = append(attrs, nlattr.Address(iflaIptunLocal, c.Local.Unmap()))
	}
	if c.Remote.IsValid() {
		attrs = append(attrs, nlattr.Address(iflaIptunRemote, c.Remote.Unmap()))
	}
	if c.TTL != nil {
		attrs = append(attrs, nlattr.Uint8(iflaIptunTTL, *c.TTL))
	}
	if c.ToS != nil {
		attrs = append(attrs, nlattr.Uint8(iflaIptunTos, *c.ToS))
	}
	attrs = append(attrs,
		nlattr.Uint8(iflaIptunEncapLimit, encapLimit(c.EncapLimit)),
		nlattr.Flag(iflaIptunPmtudisc, c.PMTUDisc),
	)
	if c.Link != 0 {
		attrs = append(attrs, nlattr.Uint32(iflaIptunLink, c.Link))
	}
	return attrs
}

func (c IPIPConfig) baseLink() uint32 { return c.Link }

// IPIPTunnel is an IPv4-in-IPv4 tunnel.
type IPIPTunnel struct{ IPIPConfig }

func (IPIPTunnel) infoKind() string { return "ipip" }

// IP6TunnelConfig parameterizes an IPv6 tunnel (the kernel's "ip6tnl"
// kind). The flow label is carried in network byte order. EncapLimit
// defaults to 255 when unset.
type IP6TunnelConfig struct {
	Local        netip.Addr
	Remote       netip.Addr
	HopLimit     *uint8
	TrafficClass *uint8
	FlowLabel    *uint32
	EncapLimit   *uint8
	PMTUDisc     bool
	Link         uint32
}

func (c IP6TunnelConfig) infoData() []nlattr.Attr {
	attrs := make([]nlattr.Attr, 0, 8)
	if c.Local.IsValid() {
		attrs = append(attrs, nlattr.Address(iflaIptunLocal, c.Local.Unmap()))
	}
	if c.Remote.IsValid() {
		attrs = append(attrs, nlattr.Address(iflaIptunRemote, c.Remote.Unmap()))
	}
	if c.HopLimit != nil {
		attrs = append(attrs, nlattr.Uint8(iflaIptunTTL, *c.HopLimit))
	}
	if c.TrafficClass != nil {
		attrs = append(attrs, nlattr.Uint8(iflaIptunTos, *c.TrafficClass))
	}
	if c.FlowLabel != nil {
		attrs = append(attrs, nlattr.BigUint32(iflaIptunFlowinfo, *c.FlowLabel))
	}
	attrs = append(attrs,
		nlattr.Uint8(iflaIptunEncapLimit, encapLimit(c.EncapLimit)),
		nlattr.Flag(iflaIptunPmtudisc, c.PMTUDisc),
	)
	if c.Link != 0 {
		attrs = append(attrs, nlattr.Uint32(iflaIptunLink, c.Link))
	}
	return attrs
}

func (c IP6TunnelConfig) baseLink() uint32 { return c.Link }

// IP6Tunnel is an IPv6 tunnel of the kernel's "ip6tnl" kind.
type IP6Tunnel struct{ IP6TunnelConfig }

func (IP6Tunnel) infoKind() string { return "ip6tnl" }

// VLANConfig parameterizes an 802.1Q VLAN on top of a base interface.
// Creation requires both fields.
type VLANConfig struct {
	BaseIndex uint32
	VLANID    *uint16
}

func (c VLANConfig) infoData() []nlattr.Attr {
	if c.VLANID == nil {
		return nil
	}
	return []nlattr.Attr{nlattr.Uint16(iflaVlanID, *c.VLANID)}
}

func (c VLANConfig) baseLink() uint32 { return c.BaseIndex }

// VLAN is an 802.1Q VLAN interface.
type VLAN struct{ VLANConfig }

func (VLAN) infoKind() string { return "vlan" }

func encapLimit(v *uint8) uint8 {
	if v == nil {
		return 0xff
	}
	return *v
}

// VirtualInterfaceSpec describes one virtual interface to create.
type VirtualInterfaceSpec struct {
	Name    string
	Kind    VirtualInterfaceKind
	AdminUp bool
}

// VirtualInterfaceUpdate reconfigures an existing virtual interface by
// index. NewName and AdminUp are applied only when set; the kind's
// parameters are always refreshed.
type VirtualInterfaceUpdate struct {
	Index   uint32
	NewName string
	Kind    VirtualInterfaceKind
	AdminUp *bool
}

// Virtual interface subsystem request vocabulary.

type virtCreateReq struct{ spec VirtualInterfaceSpec }

type virtConfigureReq struct{ update VirtualInterfaceUpdate }

type virtDeleteIndexReq struct{ index uint32 }

type virtDeleteNameReq struct{ ifName string }

type virtIndexReq struct{ ifName string }

func (virtCreateReq) isVirtualRequest()      {}
func (virtConfigureReq) isVirtualRequest()   {}
func (virtDeleteIndexReq) isVirtualRequest() {}
func (virtDeleteNameReq) isVirtualRequest()  {}
func (virtIndexReq) isVirtualRequest()       {}

func (virtCreateReq) name() string      { return "create" }
func (virtConfigureReq) name() string   { return "configure" }
func (virtDeleteIndexReq) name() string { return "delete" }
func (virtDeleteNameReq) name() string  { return "delete_by_name" }
func (virtIndexReq) name() string       { return "index_by_name" }

// Virtual interface subsystem response vocabulary (plus the shared
// status variants).

type virtualIndexResp struct{ index uint32 }

func (virtualIndexResp) isVirtualResponse() {}

// virtualServer answers virtual interface requests. It rides the link
// sub-handle: creation, reconfiguration and deletion are all link
// messages carrying nested info attributes.
type virtualServer struct {
	ops LinkOps
	log *logging.Logger
}

func (s *virtualServer) serve(server *duplex.Server[virtualRequest, virtualResponse]) error {
	for {
		req, respond, ok := server.Accept()
		if !ok {
			return nil
		}
		start := time.Now()
		resp := s.handle(req)
		metrics.Get().RecordRequest("virtual_interface", req.name(), resultLabel(resp), start)
		respond(resp)
	}
}

func (s *virtualServer) handle(req virtualRequest) virtualResponse {
	switch r := req.(type) {
	case virtCreateReq:
		return s.create(r.spec)
	case virtConfigureReq:
		return s.configure(r.update)
	case virtDeleteIndexReq:
		return s.deleteByIndex(r.index)
	case virtDeleteNameReq:
		index, fail := s.resolve(r.ifName)
		if fail != nil {
			return fail
		}
		return s.deleteByIndex(index)
	case virtIndexReq:
		index, fail := s.resolve(r.ifName)
		if fail != nil {
			return fail
		}
		return virtualIndexResp{index: index}
	default:
		return respNotImplemented{}
	}
}

func (s *virtualServer) create(spec VirtualInterfaceSpec) virtualResponse {
	msg := &LinkMessage{
		Attrs: []nlattr.Attr{nlattr.String(iflaIfname, spec.Name)},
	}
	if spec.AdminUp {
		msg.Flags = unix.IFF_UP
		msg.Change = unix.IFF_UP
	}
	if link := spec.Kind.baseLink(); link != 0 {
		msg.Attrs = append(msg.Attrs, nlattr.Uint32(iflaLink, link))
	}
	msg.Attrs = append(msg.Attrs, linkInfo(spec.Kind))
	if err := s.ops.Add(msg); err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("virtual interface create failed", "ifname", spec.Name, "kind", spec.Kind.infoKind(), "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

func (s *virtualServer) configure(update VirtualInterfaceUpdate) virtualResponse {
	if update.Index == 0 {
		return respNotFound{}
	}
	msg := &LinkMessage{Index: int32(update.Index)}
	if update.AdminUp != nil {
		if *update.AdminUp {
			msg.Flags = unix.IFF_UP
		}
		msg.Change = unix.IFF_UP
	}
	if update.NewName != "" {
		msg.Attrs = append(msg.Attrs, nlattr.String(iflaIfname, update.NewName))
	}
	if link := update.Kind.baseLink(); link != 0 {
		msg.Attrs = append(msg.Attrs, nlattr.Uint32(iflaLink, link))
	}
	msg.Attrs = append(msg.Attrs, linkInfo(update.Kind))
	if err := s.ops.Modify(msg); err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("virtual interface configure failed", "ifindex", update.Index, "kind", update.Kind.infoKind(), "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

func (s *virtualServer) deleteByIndex(index uint32) virtualResponse {
	if index == 0 {
		return respNotFound{}
	}
	if err := s.ops.Delete(int(index)); err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("virtual interface delete failed", "ifindex", index, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

// resolve maps a name to a non-zero interface index.
func (s *virtualServer) resolve(name string) (uint32, virtualResponse) {
	link, err := s.ops.GetByName(name)
	if err != nil {
		if isNotFound(err) {
			return 0, respNotFound{}
		}
		s.log.Warn("virtual interface lookup failed", "ifname", name, "error", err)
		return 0, respFailed{}
	}
	index := link.Attrs().Index
	if index == 0 {
		return 0, respNotFound{}
	}
	return uint32(index), nil
}

// linkInfo builds the nested info attribute naming the kind and carrying
// its parameter block. The kind tag is written without a trailing NUL.
func linkInfo(kind VirtualInterfaceKind) nlattr.Attr {
	children := []nlattr.Attr{nlattr.Bytes(iflaInfoKind, []byte(kind.infoKind()))}
	if data := kind.infoData(); len(data) > 0 {
		children = append(children, nlattr.Nested(iflaInfoData, data))
	}
	return nlattr.Nested(iflaLinkinfo, children)
}

// VirtualInterfaceClient issues virtual interface requests. Every method
// sends exactly one request and blocks until its paired response arrives.
// Safe for concurrent use.
type VirtualInterfaceClient struct {
	requests duplex.Client[virtualRequest, virtualResponse]
}

// Create builds a new virtual interface. The spec must carry a name and
// a kind; VLANs additionally need a base interface and a VLAN id.
// Violations surface as a *ConfigError before anything reaches the
// kernel.
func (c *VirtualInterfaceClient) Create(spec VirtualInterfaceSpec) error {
	const op = "virtual interface create"
	if spec.Name == "" {
		return &ConfigError{Reason: "virtual interface creation requires a name"}
	}
	if err := validateKind(spec.Kind, true); err != nil {
		return err
	}
	resp, err := c.requests.Send(virtCreateReq{spec: spec})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// Configure updates an existing virtual interface: optional rename,
// optional admin state change, and a refresh of the kind's parameters.
func (c *VirtualInterfaceClient) Configure(update VirtualInterfaceUpdate) error {
	const op = "virtual interface configure"
	if err := validateKind(update.Kind, false); err != nil {
		return err
	}
	resp, err := c.requests.Send(virtConfigureReq{update: update})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// Delete removes a virtual interface by index.
func (c *VirtualInterfaceClient) Delete(index uint32) error {
	const op = "virtual interface delete"
	resp, err := c.requests.Send(virtDeleteIndexReq{index: index})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// DeleteByName resolves a virtual interface by exact name and removes
// it. An unknown name reports ErrNotFound.
func (c *VirtualInterfaceClient) DeleteByName(name string) error {
	const op = "virtual interface delete by name"
	resp, err := c.requests.Send(virtDeleteNameReq{ifName: name})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// IndexByName resolves an interface name to its non-zero index.
func (c *VirtualInterfaceClient) IndexByName(name string) (uint32, error) {
	const op = "virtual interface index by name"
	resp, err := c.requests.Send(virtIndexReq{ifName: name})
	if err != nil {
		return 0, sendError(op, err)
	}
	if r, ok := resp.(virtualIndexResp); ok {
		return r.index, nil
	}
	return 0, dataResult(op, resp)
}

// validateKind rejects requests no wire message could express. VLAN
// completeness is only demanded at creation time.
func validateKind(kind VirtualInterfaceKind, creating bool) error {
	switch k := kind.(type) {
	case nil:
		return &ConfigError{Reason: "virtual interface kind is required"}
	case VLAN:
		if !creating {
			return nil
		}
		if k.BaseIndex == 0 {
			return &ConfigError{Reason: "VLAN creation requires a base interface"}
		}
		if k.VLANID == nil {
			return &ConfigError{Reason: "VLAN creation requires a VLAN id"}
		}
	}
	return nil
}
