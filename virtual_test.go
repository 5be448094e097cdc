package rtnl

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/rtnl/internal/nlattr"
)

func TestVirtualCreateVLAN(t *testing.T) {
	mt, c := newTestClient(t)

	vlanID := uint16(100)
	mt.LinkMock.On("Add", &LinkMessage{
		Flags:  unix.IFF_UP,
		Change: unix.IFF_UP,
		Attrs: []nlattr.Attr{
			nlattr.String(iflaIfname, "vlan100"),
			nlattr.Uint32(iflaLink, 2),
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("vlan")),
				nlattr.Nested(iflaInfoData, []nlattr.Attr{
					nlattr.Uint16(iflaVlanID, vlanID),
				}),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Create(VirtualInterfaceSpec{
		Name:    "vlan100",
		Kind:    VLAN{VLANConfig{BaseIndex: 2, VLANID: &vlanID}},
		AdminUp: true,
	})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualCreateValidation(t *testing.T) {
	mt, c := newTestClient(t)

	vlanID := uint16(100)
	tests := []struct {
		name string
		spec VirtualInterfaceSpec
		want string
	}{
		{
			name: "MissingName",
			spec: VirtualInterfaceSpec{Kind: VLAN{VLANConfig{BaseIndex: 2, VLANID: &vlanID}}},
			want: "invalid configuration: virtual interface creation requires a name",
		},
		{
			name: "MissingKind",
			spec: VirtualInterfaceSpec{Name: "veth0"},
			want: "invalid configuration: virtual interface kind is required",
		},
		{
			name: "VLANWithoutBase",
			spec: VirtualInterfaceSpec{Name: "vlan100", Kind: VLAN{VLANConfig{VLANID: &vlanID}}},
			want: "invalid configuration: VLAN creation requires a base interface",
		},
		{
			name: "VLANWithoutID",
			spec: VirtualInterfaceSpec{Name: "vlan100", Kind: VLAN{VLANConfig{BaseIndex: 2}}},
			want: "invalid configuration: VLAN creation requires a VLAN id",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := c.VirtualInterface().Create(tc.spec)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.EqualError(t, err, tc.want)
		})
	}
	mt.LinkMock.AssertNotCalled(t, "Add", mock.Anything)
}

func TestVirtualCreateGRE(t *testing.T) {
	mt, c := newTestClient(t)

	local := netip.MustParseAddr("192.0.2.1")
	remote := netip.MustParseAddr("198.51.100.1")
	ttl := uint8(64)
	key := uint32(0x01020304)

	mt.LinkMock.On("Add", &LinkMessage{
		Attrs: []nlattr.Attr{
			nlattr.String(iflaIfname, "gre1"),
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("gre")),
				nlattr.Nested(iflaInfoData, []nlattr.Attr{
					nlattr.Address(iflaGreLocal, local),
					nlattr.Address(iflaGreRemote, remote),
					nlattr.Uint8(iflaGreTTL, 64),
					nlattr.BigUint32(iflaGreIkey, key),
					nlattr.BigUint32(iflaGreOkey, key),
					nlattr.Uint8(iflaGreEncapLimit, 0xff),
					nlattr.Flag(iflaGrePmtudisc, true),
					nlattr.Flag(iflaGreIgnoreDf, false),
				}),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Create(VirtualInterfaceSpec{
		Name: "gre1",
		Kind: GRETunnel{GREConfig{
			Local:    local,
			Remote:   remote,
			TTL:      &ttl,
			Key:      &key,
			PMTUDisc: true,
		}},
	})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualCreateGRE6(t *testing.T) {
	mt, c := newTestClient(t)

	local := netip.MustParseAddr("2001:db8::1")
	remote := netip.MustParseAddr("2001:db8::2")

	// Test case: the base link rides both the outer message and the GRE
	// parameter block
	mt.LinkMock.On("Add", &LinkMessage{
		Attrs: []nlattr.Attr{
			nlattr.String(iflaIfname, "gre6-0"),
			nlattr.Uint32(iflaLink, 3),
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("ip6gre")),
				nlattr.Nested(iflaInfoData, []nlattr.Attr{
					nlattr.Address(iflaGreLocal, local),
					nlattr.Address(iflaGreRemote, remote),
					nlattr.Uint8(iflaGreEncapLimit, 0xff),
					nlattr.Flag(iflaGrePmtudisc, false),
					nlattr.Flag(iflaGreIgnoreDf, false),
					nlattr.Uint32(iflaGreLink, 3),
				}),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Create(VirtualInterfaceSpec{
		Name: "gre6-0",
		Kind: GRE6Tunnel{GREConfig{Local: local, Remote: remote, Link: 3}},
	})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualCreateIP6Tunnel(t *testing.T) {
	mt, c := newTestClient(t)

	local := netip.MustParseAddr("2001:db8::1")
	remote := netip.MustParseAddr("2001:db8::2")
	flowLabel := uint32(0x12345)

	mt.LinkMock.On("Add", &LinkMessage{
		Attrs: []nlattr.Attr{
			nlattr.String(iflaIfname, "ip6tnl1"),
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("ip6tnl")),
				nlattr.Nested(iflaInfoData, []nlattr.Attr{
					nlattr.Address(iflaIptunLocal, local),
					nlattr.Address(iflaIptunRemote, remote),
					nlattr.BigUint32(iflaIptunFlowinfo, flowLabel),
					nlattr.Uint8(iflaIptunEncapLimit, 0xff),
					nlattr.Flag(iflaIptunPmtudisc, false),
				}),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Create(VirtualInterfaceSpec{
		Name: "ip6tnl1",
		Kind: IP6Tunnel{IP6TunnelConfig{Local: local, Remote: remote, FlowLabel: &flowLabel}},
	})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualCreateIPIP(t *testing.T) {
	mt, c := newTestClient(t)

	local := netip.MustParseAddr("192.0.2.1")
	remote := netip.MustParseAddr("198.51.100.1")
	ttl := uint8(32)

	mt.LinkMock.On("Add", &LinkMessage{
		Attrs: []nlattr.Attr{
			nlattr.String(iflaIfname, "ipip1"),
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("ipip")),
				nlattr.Nested(iflaInfoData, []nlattr.Attr{
					nlattr.Address(iflaIptunLocal, local),
					nlattr.Address(iflaIptunRemote, remote),
					nlattr.Uint8(iflaIptunTTL, 32),
					nlattr.Uint8(iflaIptunEncapLimit, 0xff),
					nlattr.Flag(iflaIptunPmtudisc, false),
				}),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Create(VirtualInterfaceSpec{
		Name: "ipip1",
		Kind: IPIPTunnel{IPIPConfig{Local: local, Remote: remote, TTL: &ttl}},
	})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualConfigure(t *testing.T) {
	mt, c := newTestClient(t)

	up := true
	mt.LinkMock.On("Modify", &LinkMessage{
		Index:  7,
		Flags:  unix.IFF_UP,
		Change: unix.IFF_UP,
		Attrs: []nlattr.Attr{
			nlattr.String(iflaIfname, "gre-new"),
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("gre")),
				nlattr.Nested(iflaInfoData, []nlattr.Attr{
					nlattr.Uint8(iflaGreEncapLimit, 0xff),
					nlattr.Flag(iflaGrePmtudisc, false),
					nlattr.Flag(iflaGreIgnoreDf, false),
				}),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Configure(VirtualInterfaceUpdate{
		Index:   7,
		NewName: "gre-new",
		Kind:    GRETunnel{},
		AdminUp: &up,
	})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualConfigureAdminUntouched(t *testing.T) {
	mt, c := newTestClient(t)

	// Test case: a nil admin state leaves the flag mask empty, and an
	// incomplete VLAN kind is fine outside creation
	mt.LinkMock.On("Modify", &LinkMessage{
		Index: 7,
		Attrs: []nlattr.Attr{
			nlattr.Nested(iflaLinkinfo, []nlattr.Attr{
				nlattr.Bytes(iflaInfoKind, []byte("vlan")),
			}),
		},
	}).Return(nil).Once()

	err := c.VirtualInterface().Configure(VirtualInterfaceUpdate{Index: 7, Kind: VLAN{}})
	assert.NoError(t, err)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualConfigureIndexZero(t *testing.T) {
	mt, c := newTestClient(t)

	err := c.VirtualInterface().Configure(VirtualInterfaceUpdate{Kind: GRETunnel{}})
	assert.ErrorIs(t, err, ErrNotFound)
	mt.LinkMock.AssertNotCalled(t, "Modify", mock.Anything)
}

func TestVirtualDelete(t *testing.T) {
	mt, c := newTestClient(t)

	mt.LinkMock.On("Delete", 7).Return(nil).Once()
	assert.NoError(t, c.VirtualInterface().Delete(7))

	// Test case: index zero is rejected before touching the wire
	assert.ErrorIs(t, c.VirtualInterface().Delete(0), ErrNotFound)

	mt.LinkMock.On("Delete", 9).Return(unix.ENODEV).Once()
	assert.ErrorIs(t, c.VirtualInterface().Delete(9), ErrNotFound)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualDeleteByName(t *testing.T) {
	mt, c := newTestClient(t)

	gre1 := &netlink.Gretun{LinkAttrs: netlink.LinkAttrs{Index: 7, Name: "gre1"}}
	mt.LinkMock.On("GetByName", "gre1").Return(gre1, nil).Once()
	mt.LinkMock.On("Delete", 7).Return(nil).Once()
	assert.NoError(t, c.VirtualInterface().DeleteByName("gre1"))

	// Test case: an unknown name never reaches the delete
	mt.LinkMock.On("GetByName", "missing0").Return(nil, unix.ENODEV).Once()
	assert.ErrorIs(t, c.VirtualInterface().DeleteByName("missing0"), ErrNotFound)
	mt.LinkMock.AssertNotCalled(t, "Delete", 0)
	mt.LinkMock.AssertExpectations(t)
}

func TestVirtualIndexByName(t *testing.T) {
	mt, c := newTestClient(t)

	mt.LinkMock.On("GetByName", "vlan100").Return(&netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{Index: 12, Name: "vlan100"},
	}, nil).Once()

	index, err := c.VirtualInterface().IndexByName("vlan100")
	assert.NoError(t, err)
	assert.Equal(t, uint32(12), index)

	// Test case: a zero-index answer is treated as absent
	mt.LinkMock.On("GetByName", "ghost0").Return(&netlink.Device{}, nil).Once()
	_, err = c.VirtualInterface().IndexByName("ghost0")
	assert.ErrorIs(t, err, ErrNotFound)
	mt.LinkMock.AssertExpectations(t)
}
