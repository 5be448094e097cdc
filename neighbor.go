package rtnl

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/vishvananda/netlink"

	"grimm.is/rtnl/internal/duplex"
	"grimm.is/rtnl/internal/logging"
	"grimm.is/rtnl/internal/metrics"
)

// NeighborState is the kernel's cache state for one neighbor entry.
// The zero value means no recorded state.
type NeighborState uint16

const (
	NeighborStateNone       NeighborState = 0
	NeighborStateIncomplete NeighborState = 0x01
	NeighborStateReachable  NeighborState = 0x02
	NeighborStateStale      NeighborState = 0x04
	NeighborStateDelay      NeighborState = 0x08
	NeighborStateProbe      NeighborState = 0x10
	NeighborStateFailed     NeighborState = 0x20
	NeighborStateNoARP      NeighborState = 0x40
	NeighborStatePermanent  NeighborState = 0x80
)

func (s NeighborState) String() string {
	switch s {
	case NeighborStateNone:
		return "none"
	case NeighborStateIncomplete:
		return "incomplete"
	case NeighborStateReachable:
		return "reachable"
	case NeighborStateStale:
		return "stale"
	case NeighborStateDelay:
		return "delay"
	case NeighborStateProbe:
		return "probe"
	case NeighborStateFailed:
		return "failed"
	case NeighborStateNoARP:
		return "noarp"
	case NeighborStatePermanent:
		return "permanent"
	default:
		return fmt.Sprintf("0x%02x", uint16(s))
	}
}

// NeighborFlags is a bit set of kernel neighbor flags. The zero value
// means no flags.
type NeighborFlags uint8

const (
	NeighborFlagProxy  NeighborFlags = 0x08
	NeighborFlagSticky NeighborFlags = 0x40
	NeighborFlagRouter NeighborFlags = 0x80
)

func (f NeighborFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&NeighborFlagProxy != 0 {
		parts = append(parts, "proxy")
	}
	if f&NeighborFlagSticky != 0 {
		parts = append(parts, "sticky")
	}
	if f&NeighborFlagRouter != 0 {
		parts = append(parts, "router")
	}
	if rest := f &^ (NeighborFlagProxy | NeighborFlagSticky | NeighborFlagRouter); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// NeighborEntry is one ARP/NDP table entry. LLAddr, State and Flags are
// optional; their zero values mean the field is absent.
type NeighborEntry struct {
	Dst     netip.Addr
	IfIndex uint32
	LLAddr  net.HardwareAddr
	State   NeighborState
	Flags   NeighborFlags
}

// Neighbor subsystem request vocabulary.

type neighAddReq struct{ entry NeighborEntry }

type neighChangeReq struct{ entry NeighborEntry }

type neighDelReq struct{ entry NeighborEntry }

type neighListReq struct{ index uint32 }

type neighGetReq struct {
	dst   netip.Addr
	index uint32
}

func (neighAddReq) isNeighborRequest()    {}
func (neighChangeReq) isNeighborRequest() {}
func (neighDelReq) isNeighborRequest()    {}
func (neighListReq) isNeighborRequest()   {}
func (neighGetReq) isNeighborRequest()    {}

func (neighAddReq) name() string    { return "add" }
func (neighChangeReq) name() string { return "change" }
func (neighDelReq) name() string    { return "delete" }
func (neighListReq) name() string   { return "list" }
func (neighGetReq) name() string    { return "get" }

// Neighbor subsystem response vocabulary (plus the shared status variants).

type neighborList struct{ entries []NeighborEntry }

type neighborEntryResp struct{ entry NeighborEntry }

func (neighborList) isNeighborResponse()      {}
func (neighborEntryResp) isNeighborResponse() {}

// neighborServer answers neighbor requests against the transport's
// neighbor sub-handle, one request at a time.
type neighborServer struct {
	ops NeighborOps
	log *logging.Logger
}

func (s *neighborServer) serve(server *duplex.Server[neighborRequest, neighborResponse]) error {
	for {
		req, respond, ok := server.Accept()
		if !ok {
			return nil
		}
		start := time.Now()
		resp := s.handle(req)
		metrics.Get().RecordRequest("neighbor", req.name(), resultLabel(resp), start)
		respond(resp)
	}
}

func (s *neighborServer) handle(req neighborRequest) neighborResponse {
	switch r := req.(type) {
	case neighAddReq:
		return s.write("neighbor add", r.entry, false)
	case neighChangeReq:
		return s.write("neighbor change", r.entry, true)
	case neighDelReq:
		return s.del(r.entry)
	case neighListReq:
		return s.list(r.index)
	case neighGetReq:
		return s.get(r.dst, r.index)
	default:
		return respNotImplemented{}
	}
}

// write adds a neighbor entry, either exclusively or overwriting any
// existing entry for the same destination.
func (s *neighborServer) write(op string, entry NeighborEntry, replace bool) neighborResponse {
	n, fail := s.wire(op, entry, NeighborStatePermanent)
	if fail != nil {
		return fail
	}
	var err error
	if replace {
		err = s.ops.Replace(n)
	} else {
		err = s.ops.Add(n)
	}
	if err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("neighbor update failed", "op", op, "ifindex", entry.IfIndex, "dst", entry.Dst, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

func (s *neighborServer) del(entry NeighborEntry) neighborResponse {
	const op = "neighbor delete"
	n, fail := s.wire(op, entry, NeighborStateNone)
	if fail != nil {
		return fail
	}
	if err := s.ops.Delete(n); err != nil {
		if isNotFound(err) {
			return respNotFound{}
		}
		s.log.Warn("neighbor update failed", "op", op, "ifindex", entry.IfIndex, "dst", entry.Dst, "error", err)
		return respFailed{}
	}
	return respSuccess{}
}

// wire assembles the kernel message for one write. Index 0 and an unset
// destination are rejected before any wire call. A write with no state
// takes defaultState.
func (s *neighborServer) wire(op string, entry NeighborEntry, defaultState NeighborState) (*netlink.Neigh, neighborResponse) {
	if entry.IfIndex == 0 {
		return nil, respFailed{}
	}
	dst := entry.Dst.Unmap()
	if !dst.IsValid() {
		s.log.Warn("neighbor rejected", "op", op, "ifindex", entry.IfIndex)
		return nil, respFailed{}
	}
	state := entry.State
	if state == NeighborStateNone {
		state = defaultState
	}
	n := &netlink.Neigh{
		LinkIndex: int(entry.IfIndex),
		IP:        net.IP(dst.AsSlice()),
		State:     int(state),
		Flags:     int(entry.Flags),
	}
	if len(entry.LLAddr) > 0 {
		n.HardwareAddr = entry.LLAddr
	}
	return n, nil
}

// list dumps the full neighbor table (both families) and filters by
// interface client-side. No matches is an empty list.
func (s *neighborServer) list(index uint32) neighborResponse {
	table, err := s.ops.List(familyAll)
	if err != nil {
		s.log.Warn("neighbor dump failed", "error", err)
		return respFailed{}
	}
	entries := make([]NeighborEntry, 0, len(table))
	for _, n := range table {
		entry, ok := decodeNeighbor(n)
		if !ok {
			continue
		}
		if index != 0 && entry.IfIndex != index {
			continue
		}
		entries = append(entries, entry)
	}
	return neighborList{entries: entries}
}

func (s *neighborServer) get(dst netip.Addr, index uint32) neighborResponse {
	table, err := s.ops.List(familyAll)
	if err != nil {
		s.log.Warn("neighbor dump failed", "error", err)
		return respFailed{}
	}
	want := dst.Unmap()
	for _, n := range table {
		entry, ok := decodeNeighbor(n)
		if !ok {
			continue
		}
		if index != 0 && entry.IfIndex != index {
			continue
		}
		if entry.Dst == want {
			return neighborEntryResp{entry: entry}
		}
	}
	return respNotFound{}
}

// decodeNeighbor converts one dumped table entry, dropping entries that
// carry no destination.
func decodeNeighbor(n netlink.Neigh) (NeighborEntry, bool) {
	dst, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return NeighborEntry{}, false
	}
	entry := NeighborEntry{
		Dst:     dst.Unmap(),
		IfIndex: uint32(n.LinkIndex),
		State:   NeighborState(n.State),
		Flags:   NeighborFlags(n.Flags),
	}
	if len(n.HardwareAddr) > 0 {
		entry.LLAddr = append(net.HardwareAddr(nil), n.HardwareAddr...)
	}
	return entry, true
}

// NeighborClient issues neighbor subsystem requests. Every method sends
// exactly one request and blocks until its paired response arrives. Safe
// for concurrent use.
type NeighborClient struct {
	requests duplex.Client[neighborRequest, neighborResponse]
}

// Add inserts a neighbor entry. An entry with no state is written as
// permanent. Adding a destination the table already holds fails; use
// Change to overwrite.
func (c *NeighborClient) Add(entry NeighborEntry) error {
	const op = "neighbor add"
	resp, err := c.requests.Send(neighAddReq{entry: entry})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// Change inserts a neighbor entry, overwriting any existing entry for
// the same destination. An entry with no state is written as permanent.
func (c *NeighborClient) Change(entry NeighborEntry) error {
	const op = "neighbor change"
	resp, err := c.requests.Send(neighChangeReq{entry: entry})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// Delete removes the table entry for entry.Dst on entry.IfIndex.
func (c *NeighborClient) Delete(entry NeighborEntry) error {
	const op = "neighbor delete"
	resp, err := c.requests.Send(neighDelReq{entry: entry})
	if err != nil {
		return sendError(op, err)
	}
	return statusResult(op, resp)
}

// List reports neighbor entries across both address families, narrowed
// to one interface when index is non-zero. No matches yields an empty
// list, not an error.
func (c *NeighborClient) List(index uint32) ([]NeighborEntry, error) {
	const op = "neighbor list"
	resp, err := c.requests.Send(neighListReq{index: index})
	if err != nil {
		return nil, sendError(op, err)
	}
	if r, ok := resp.(neighborList); ok {
		return r.entries, nil
	}
	return nil, dataResult(op, resp)
}

// Get reports the entry for dst, searching one interface when index is
// non-zero and the whole table otherwise.
func (c *NeighborClient) Get(dst netip.Addr, index uint32) (NeighborEntry, error) {
	const op = "neighbor get"
	resp, err := c.requests.Send(neighGetReq{dst: dst, index: index})
	if err != nil {
		return NeighborEntry{}, sendError(op, err)
	}
	if r, ok := resp.(neighborEntryResp); ok {
		return r.entry, nil
	}
	return NeighborEntry{}, dataResult(op, resp)
}
