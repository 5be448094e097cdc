//go:build linux

package rtnl

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/rtnl/internal/testutil"
)

// These tests dial the real netlink socket and only read from it.

func TestClient_KernelLinkDump_Integration(t *testing.T) {
	testutil.RequireVM(t)

	c := New()
	defer c.Close()

	interfaces, err := c.Link().List()
	assert.NoError(t, err)

	// Every kernel has the loopback at index 1.
	lo, err := c.Link().Get(1)
	assert.NoError(t, err)
	assert.Equal(t, "lo", lo.Name)
	assert.Contains(t, interfaces, lo)

	byName, err := c.Link().GetByName("lo")
	assert.NoError(t, err)
	assert.Equal(t, lo, byName)

	mtu, err := c.Link().MTU(1)
	assert.NoError(t, err)
	assert.NotZero(t, mtu)

	// The loopback reports an all-zero link-layer address.
	mac, err := c.Link().MACAddr(1)
	assert.NoError(t, err)
	assert.Equal(t, MacAddr{}, mac)
}

func TestClient_KernelTableDumps_Integration(t *testing.T) {
	testutil.RequireVM(t)

	c := New()
	defer c.Close()

	addrs, err := c.Address().IPv4List(1)
	assert.NoError(t, err)
	assert.Contains(t, addrs, netip.MustParseAddr("127.0.0.1"))

	_, err = c.Route().IPv4List()
	assert.NoError(t, err)
	_, err = c.Route().IPv6List()
	assert.NoError(t, err)

	_, err = c.Neighbor().List(0)
	assert.NoError(t, err)
}
