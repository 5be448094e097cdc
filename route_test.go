package rtnl

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// wireIP builds the canonical wire form of an address: 4 bytes for v4,
// 16 for v6.
func wireIP(s string) net.IP {
	return net.IP(netip.MustParseAddr(s).AsSlice())
}

func wireIPNet(s string) *net.IPNet {
	p := netip.MustParsePrefix(s)
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

func TestRouteIPv4Add(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("Add", &netlink.Route{
		Family:    familyV4,
		Dst:       wireIPNet("10.0.0.0/8"),
		Gw:        wireIP("192.0.2.254"),
		LinkIndex: 2,
		Priority:  100,
		Table:     254,
	}).Return(nil).Once()

	err := c.Route().IPv4Add(Route{
		Dst:     netip.MustParsePrefix("10.0.0.0/8"),
		Gateway: netip.MustParseAddr("192.0.2.254"),
		IfIndex: 2,
		Metric:  100,
		Table:   254,
	})
	assert.NoError(t, err)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteIPv6Add(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("Add", &netlink.Route{
		Family:    familyV6,
		Dst:       wireIPNet("2001:db8::/32"),
		Gw:        wireIP("fe80::1"),
		LinkIndex: 2,
		Src:       wireIP("2001:db8::2"),
	}).Return(nil).Once()

	err := c.Route().IPv6Add(Route{
		Dst:     netip.MustParsePrefix("2001:db8::/32"),
		Gateway: netip.MustParseAddr("fe80::1"),
		Source:  netip.MustParseAddr("2001:db8::2"),
		IfIndex: 2,
	})
	assert.NoError(t, err)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteAddConflict(t *testing.T) {
	mt, c := newTestClient(t)

	// Test case: add is exclusive, a held destination fails
	mt.RouteMock.On("Add", mock.Anything).Return(unix.EEXIST).Once()
	err := c.Route().IPv4Add(Route{Dst: netip.MustParsePrefix("10.0.0.0/8")})
	assert.ErrorIs(t, err, ErrOpFailed)

	// Test case: replace overwrites instead
	mt.RouteMock.On("Replace", mock.Anything).Return(nil).Once()
	assert.NoError(t, c.Route().IPv4Replace(Route{Dst: netip.MustParsePrefix("10.0.0.0/8")}))
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteDelete(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("Delete", &netlink.Route{
		Family: familyV6,
		Dst:    wireIPNet("2001:db8::/32"),
	}).Return(nil).Once()
	assert.NoError(t, c.Route().IPv6Delete(Route{Dst: netip.MustParsePrefix("2001:db8::/32")}))

	// Test case: the kernel's no-such-route answer maps to ErrNotFound
	mt.RouteMock.On("Delete", mock.Anything).Return(unix.ESRCH).Once()
	err := c.Route().IPv6Delete(Route{Dst: netip.MustParsePrefix("2001:db8::/32")})
	assert.ErrorIs(t, err, ErrNotFound)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteFamilyValidation(t *testing.T) {
	mt, c := newTestClient(t)

	// Test case: a v6 destination on the v4 operation is rejected locally
	err := c.Route().IPv4Add(Route{Dst: netip.MustParsePrefix("2001:db8::/32")})
	assert.ErrorIs(t, err, ErrOpFailed)

	// Test case: the preferred source must match the route family
	err = c.Route().IPv4Add(Route{
		Dst:    netip.MustParsePrefix("10.0.0.0/8"),
		Source: netip.MustParseAddr("2001:db8::1"),
	})
	assert.ErrorIs(t, err, ErrOpFailed)
	mt.RouteMock.AssertNotCalled(t, "Add", mock.Anything)

	// Test case: lookups reject cross-family destinations the same way
	_, err = c.Route().IPv4Get(netip.MustParseAddr("2001:db8::1"))
	assert.ErrorIs(t, err, ErrOpFailed)
	_, err = c.Route().IPv6GetByPrefix(netip.MustParsePrefix("10.0.0.0/8"))
	assert.ErrorIs(t, err, ErrOpFailed)
	mt.RouteMock.AssertNotCalled(t, "Lookup", mock.Anything)
}

func TestRouteMultipathEncoding(t *testing.T) {
	mt, c := newTestClient(t)

	// Weights are one-based in the domain and zero-based hop counts on
	// the wire; the wire field saturates at 255.
	mt.RouteMock.On("Add", &netlink.Route{
		Family: familyV4,
		Dst:    wireIPNet("10.0.0.0/8"),
		MultiPath: []*netlink.NexthopInfo{
			{LinkIndex: 2, Gw: wireIP("192.0.2.253"), Hops: 0},
			{LinkIndex: 3, Gw: wireIP("192.0.2.254"), Hops: 1},
			{LinkIndex: 4, Hops: 255},
		},
	}).Return(nil).Once()

	err := c.Route().IPv4Add(Route{
		Dst: netip.MustParsePrefix("10.0.0.0/8"),
		// Superseded by the next-hop set.
		Gateway: netip.MustParseAddr("192.0.2.1"),
		IfIndex: 9,
		NextHops: []NextHop{
			{IfIndex: 2, Gateway: netip.MustParseAddr("192.0.2.253"), Weight: 1},
			{IfIndex: 3, Gateway: netip.MustParseAddr("192.0.2.254"), Weight: 2},
			{IfIndex: 4, Weight: 1000},
		},
	})
	assert.NoError(t, err)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteMultipathDecoding(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("List", familyV4).Return([]netlink.Route{
		{
			Family: familyV4,
			Dst:    wireIPNet("10.0.0.0/8"),
			MultiPath: []*netlink.NexthopInfo{
				{LinkIndex: 2, Gw: wireIP("192.0.2.253"), Hops: 0},
				{LinkIndex: 3, Gw: wireIP("192.0.2.254"), Hops: 255},
			},
		},
	}, nil).Once()

	routes, err := c.Route().IPv4List()
	assert.NoError(t, err)
	assert.Equal(t, []Route{{
		Dst: netip.MustParsePrefix("10.0.0.0/8"),
		NextHops: []NextHop{
			{IfIndex: 2, Gateway: netip.MustParseAddr("192.0.2.253"), Weight: 1},
			{IfIndex: 3, Gateway: netip.MustParseAddr("192.0.2.254"), Weight: 256},
		},
	}}, routes)
	mt.RouteMock.AssertExpectations(t)
}

func TestHopCount(t *testing.T) {
	tests := []struct {
		weight uint32
		want   int
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{256, 255},
		{1000, 255},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, hopCount(tc.weight), "weight %d", tc.weight)
	}
}

func TestRouteList(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("List", familyV4).Return([]netlink.Route{
		{Family: familyV4, Dst: wireIPNet("10.0.0.0/8"), Gw: wireIP("192.0.2.254"), LinkIndex: 2, Priority: 100, Table: 254},
		// A missing destination is the default route.
		{Family: familyV4, Gw: wireIP("192.0.2.254"), LinkIndex: 2},
		// Answers from the other family are dropped, not misdecoded.
		{Family: familyV6, Dst: wireIPNet("2001:db8::/32")},
	}, nil).Once()

	routes, err := c.Route().IPv4List()
	assert.NoError(t, err)
	assert.Equal(t, []Route{
		{Dst: netip.MustParsePrefix("10.0.0.0/8"), Gateway: netip.MustParseAddr("192.0.2.254"), IfIndex: 2, Metric: 100, Table: 254},
		{Dst: netip.MustParsePrefix("0.0.0.0/0"), Gateway: netip.MustParseAddr("192.0.2.254"), IfIndex: 2},
	}, routes)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteIPv4Get(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("Lookup", wireIP("10.9.9.9")).Return([]netlink.Route{
		// Local and broadcast entries never answer a get.
		{Family: familyV4, Type: rtnLocal, Dst: wireIPNet("10.9.9.9/32")},
		{Family: familyV4, Dst: wireIPNet("10.0.0.0/8"), Gw: wireIP("192.0.2.254"), LinkIndex: 2},
	}, nil).Once()

	route, err := c.Route().IPv4Get(netip.MustParseAddr("10.9.9.9"))
	assert.NoError(t, err)
	assert.Equal(t, Route{
		Dst:     netip.MustParsePrefix("10.0.0.0/8"),
		Gateway: netip.MustParseAddr("192.0.2.254"),
		IfIndex: 2,
	}, route)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteGetNoMatch(t *testing.T) {
	mt, c := newTestClient(t)

	// Test case: the answer must actually contain the queried address
	mt.RouteMock.On("Lookup", wireIP("10.9.9.9")).Return([]netlink.Route{
		{Family: familyV4, Dst: wireIPNet("192.168.0.0/16")},
	}, nil).Once()
	_, err := c.Route().IPv4Get(netip.MustParseAddr("10.9.9.9"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Test case: the kernel's no-route answer maps to ErrNotFound
	mt.RouteMock.On("Lookup", wireIP("10.9.9.9")).Return(nil, unix.ESRCH).Once()
	_, err = c.Route().IPv4Get(netip.MustParseAddr("10.9.9.9"))
	assert.ErrorIs(t, err, ErrNotFound)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteGetByPrefix(t *testing.T) {
	mt, c := newTestClient(t)

	mt.RouteMock.On("Lookup", wireIP("10.0.0.0")).Return([]netlink.Route{
		{Family: familyV4, Dst: wireIPNet("10.0.0.0/8"), Gw: wireIP("192.0.2.254")},
	}, nil).Twice()

	route, err := c.Route().IPv4GetByPrefix(netip.MustParsePrefix("10.0.0.0/8"))
	assert.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.0/8"), route.Dst)

	// Test case: only an exact prefix match answers, a covering route
	// does not
	_, err = c.Route().IPv4GetByPrefix(netip.MustParsePrefix("10.0.0.0/16"))
	assert.ErrorIs(t, err, ErrNotFound)
	mt.RouteMock.AssertExpectations(t)
}

func TestRouteGetByZeroPrefix(t *testing.T) {
	mt, c := newTestClient(t)

	// Test case: the zero prefix has no address to look up, so the table
	// is scanned instead
	mt.RouteMock.On("List", familyV4).Return([]netlink.Route{
		{Family: familyV4, Dst: wireIPNet("10.0.0.0/8")},
		{Family: familyV4, Gw: wireIP("192.0.2.254"), LinkIndex: 2},
	}, nil).Once()

	route, err := c.Route().IPv4GetByPrefix(netip.MustParsePrefix("0.0.0.0/0"))
	assert.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("0.0.0.0/0"), route.Dst)
	assert.Equal(t, netip.MustParseAddr("192.0.2.254"), route.Gateway)
	mt.RouteMock.AssertNotCalled(t, "Lookup", mock.Anything)
	mt.RouteMock.AssertExpectations(t)
}
