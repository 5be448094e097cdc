//go:build !linux
// +build !linux

package rtnl

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// rtnetlink only exists on Linux. On other platforms dialing fails and
// every request is answered with ErrConnClosed by the workers.
func dialTransport(opts *options) (Transport, error) {
	return nil, fmt.Errorf("rtnetlink not supported on this platform")
}

func newVia(family int, ip net.IP) netlink.Destination {
	return nil
}

func viaDestination(d netlink.Destination) (family int, ip net.IP, ok bool) {
	return 0, nil, false
}
