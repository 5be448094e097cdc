package rtnl

import (
	"net"

	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
)

// MockTransport is a mock implementation of the Transport interface.
// Tests hand it to NewWith to drive the workers without a kernel.
type MockTransport struct {
	mock.Mock

	LinkMock     MockLinkOps
	AddressMock  MockAddressOps
	NeighborMock MockNeighborOps
	RouteMock    MockRouteOps
}

func (m *MockTransport) Link() LinkOps         { return &m.LinkMock }
func (m *MockTransport) Address() AddressOps   { return &m.AddressMock }
func (m *MockTransport) Neighbor() NeighborOps { return &m.NeighborMock }
func (m *MockTransport) Route() RouteOps       { return &m.RouteMock }

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockLinkOps is a mock implementation of the LinkOps interface.
type MockLinkOps struct {
	mock.Mock
}

func (m *MockLinkOps) List() ([]netlink.Link, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Link), args.Error(1)
}

func (m *MockLinkOps) Get(index int) (netlink.Link, error) {
	args := m.Called(index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(netlink.Link), args.Error(1)
}

func (m *MockLinkOps) GetByName(name string) (netlink.Link, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(netlink.Link), args.Error(1)
}

func (m *MockLinkOps) Add(msg *LinkMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockLinkOps) Modify(msg *LinkMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockLinkOps) Delete(index int) error {
	args := m.Called(index)
	return args.Error(0)
}

// MockAddressOps is a mock implementation of the AddressOps interface.
type MockAddressOps struct {
	mock.Mock
}

func (m *MockAddressOps) List(family int) ([]netlink.Addr, error) {
	args := m.Called(family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Addr), args.Error(1)
}

func (m *MockAddressOps) Add(msg *AddressMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockAddressOps) Delete(msg *AddressMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

// MockNeighborOps is a mock implementation of the NeighborOps interface.
type MockNeighborOps struct {
	mock.Mock
}

func (m *MockNeighborOps) List(family int) ([]netlink.Neigh, error) {
	args := m.Called(family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Neigh), args.Error(1)
}

func (m *MockNeighborOps) Add(n *netlink.Neigh) error {
	args := m.Called(n)
	return args.Error(0)
}

func (m *MockNeighborOps) Replace(n *netlink.Neigh) error {
	args := m.Called(n)
	return args.Error(0)
}

func (m *MockNeighborOps) Delete(n *netlink.Neigh) error {
	args := m.Called(n)
	return args.Error(0)
}

// MockRouteOps is a mock implementation of the RouteOps interface.
type MockRouteOps struct {
	mock.Mock
}

func (m *MockRouteOps) List(family int) ([]netlink.Route, error) {
	args := m.Called(family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Route), args.Error(1)
}

func (m *MockRouteOps) Lookup(dst net.IP) ([]netlink.Route, error) {
	args := m.Called(dst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Route), args.Error(1)
}

func (m *MockRouteOps) Add(r *netlink.Route) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockRouteOps) Replace(r *netlink.Route) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockRouteOps) Delete(r *netlink.Route) error {
	args := m.Called(r)
	return args.Error(0)
}
