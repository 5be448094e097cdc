// Package rtnl is a synchronous client for Linux network configuration
// over rtnetlink.
//
// # Overview
//
// This package manages network interfaces, IP addresses, ARP/NDP neighbor
// tables, routes, and virtual interfaces (GRE, IP-in-IP, IPv6 tunnels,
// VLANs) by speaking the kernel's routing netlink protocol. One
// background worker owns one kernel connection for the life of the
// client; callers use plain blocking methods and never see the
// asynchronous machinery.
//
// # Key Components
//
//   - [Client]: owns the worker and hands out the subsystem façades
//   - [LinkClient]: interface enumeration, lookup, MAC/MTU/flag updates
//   - [AddressClient]: per-family address listing, assignment, removal
//   - [NeighborClient]: neighbor table reads and writes
//   - [RouteClient]: per-family route listing, writes, and kernel lookups
//   - [VirtualInterfaceClient]: tunnel and VLAN creation, reconfiguration,
//     deletion
//
// # Concurrency
//
// Each subsystem runs its own server loop inside the worker: requests to
// different subsystems proceed concurrently, requests to the same
// subsystem serialize in submission order. Calls block until the kernel
// answered; there is no cancellation or timeout at this layer.
//
// # Errors
//
// Operation failures unwrap to the package sentinels: [ErrNotFound],
// [ErrOpFailed], [ErrUnsupported], and [ErrConnClosed] when the worker is
// gone. Requests rejected before reaching the kernel surface as
// [ConfigError]. A response of the wrong variant is never coerced; it is
// reported as an [UnexpectedResponseError].
//
// # Dependencies
//
// Uses github.com/vishvananda/netlink for the kernel transport and
// github.com/vishvananda/netns for namespace-scoped dials. Tunnel and
// VLAN parameter blocks are hand-encoded, as the typed builders do not
// express them.
//
// # Example
//
//	client := rtnl.New()
//	defer client.Close()
//
//	iface, err := client.Link().GetByName("eth0")
//	if err != nil {
//	    return err
//	}
//
//	prefix := netip.MustParsePrefix("192.0.2.1/24")
//	if err := client.Address().IPv4Set(iface.Index, prefix); err != nil {
//	    return err
//	}
package rtnl
