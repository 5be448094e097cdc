package rtnl

import (
	"net"

	"github.com/vishvananda/netlink"

	"grimm.is/rtnl/internal/nlattr"
)

// LinkMessage is a wire-level link request: netlink header fields plus
// the attribute list to apply. Handlers build it; the transport only
// frames and executes it.
type LinkMessage struct {
	// Index scopes the request to one interface. 0 on create.
	Index int32
	// Flags holds the IFF_* bits to set; Change is the mask selecting
	// which flag bits are meaningful to the kernel.
	Flags  uint32
	Change uint32
	Attrs  []nlattr.Attr
}

// AddressMessage is a wire-level address add/delete request.
type AddressMessage struct {
	Family    uint8
	PrefixLen uint8
	Index     uint32
	Attrs     []nlattr.Attr
}

// LinkOps is the link sub-handle of the transport. Get, GetByName and
// List return decoded kernel state; Add creates exclusively, Modify
// updates an existing link, Delete removes by index.
type LinkOps interface {
	List() ([]netlink.Link, error)
	Get(index int) (netlink.Link, error)
	GetByName(name string) (netlink.Link, error)
	Add(msg *LinkMessage) error
	Modify(msg *LinkMessage) error
	Delete(index int) error
}

// AddressOps is the address sub-handle of the transport.
type AddressOps interface {
	// List dumps addresses for the family across all interfaces; each
	// entry reports its owning link index.
	List(family int) ([]netlink.Addr, error)
	// Add creates exclusively: an existing identical address surfaces
	// the kernel's exists error untouched.
	Add(msg *AddressMessage) error
	Delete(msg *AddressMessage) error
}

// NeighborOps is the neighbor sub-handle of the transport.
type NeighborOps interface {
	// List dumps the neighbor table for the family (0 for all).
	List(family int) ([]netlink.Neigh, error)
	// Add creates exclusively; Replace creates or overwrites.
	Add(n *netlink.Neigh) error
	Replace(n *netlink.Neigh) error
	Delete(n *netlink.Neigh) error
}

// RouteOps is the route sub-handle of the transport.
type RouteOps interface {
	// List dumps all routes of the family, all tables.
	List(family int) ([]netlink.Route, error)
	// Lookup asks the kernel to resolve the route for one destination
	// address. The kernel answers with its best match, which may be
	// looser than the destination.
	Lookup(dst net.IP) ([]netlink.Route, error)
	// Add creates exclusively; Replace creates or overwrites.
	Add(r *netlink.Route) error
	Replace(r *netlink.Route) error
	Delete(r *netlink.Route) error
}

// Transport supplies the kernel-facing operations, one sub-handle per
// rtnetlink subsystem. The worker owns the transport exclusively; façades
// never touch it. Errors are returned unclassified (errno values and
// transport error types); handlers map them into the response vocabulary.
type Transport interface {
	Link() LinkOps
	Address() AddressOps
	Neighbor() NeighborOps
	Route() RouteOps
	Close() error
}
