//go:build linux

package rtnl

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vishvananda/netlink"
)

func TestRouteCrossFamilyGateway(t *testing.T) {
	mt, c := newTestClient(t)

	// Test case: a v6 gateway on a v4 route rides the via attribute
	mt.RouteMock.On("Add", &netlink.Route{
		Family:    familyV4,
		Dst:       wireIPNet("10.0.0.0/8"),
		LinkIndex: 2,
		Via:       &netlink.Via{AddrFamily: familyV6, Addr: wireIP("2001:db8::1")},
	}).Return(nil).Once()

	err := c.Route().IPv4Add(Route{
		Dst:     netip.MustParsePrefix("10.0.0.0/8"),
		Gateway: netip.MustParseAddr("2001:db8::1"),
		IfIndex: 2,
	})
	assert.NoError(t, err)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteCrossFamilyGatewayDecode(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("List", familyV4).Return([]netlink.Route{
		{
			Family:    familyV4,
			Dst:       wireIPNet("10.0.0.0/8"),
			LinkIndex: 2,
			Via:       &netlink.Via{AddrFamily: familyV6, Addr: wireIP("2001:db8::1")},
		},
	}, nil).Once()

	routes, err := c.Route().IPv4List()
	assert.NoError(t, err)
	assert.Equal(t, []Route{{
		Dst:     netip.MustParsePrefix("10.0.0.0/8"),
		Gateway: netip.MustParseAddr("2001:db8::1"),
		IfIndex: 2,
	}}, routes)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteMultipathCrossFamily(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("Add", &netlink.Route{
		Family: familyV4,
		Dst:    wireIPNet("10.0.0.0/8"),
		MultiPath: []*netlink.NexthopInfo{
			{LinkIndex: 2, Hops: 0, Via: &netlink.Via{AddrFamily: familyV6, Addr: wireIP("2001:db8::1")}},
		},
	}).Return(nil).Once()

	err := c.Route().IPv4Add(Route{
		Dst: netip.MustParsePrefix("10.0.0.0/8"),
		NextHops: []NextHop{
			{IfIndex: 2, Gateway: netip.MustParseAddr("2001:db8::1"), Weight: 1},
		},
	})
	assert.NoError(t, err)
	mt.RouteMock.AssertExpectations(t)
}
