package rtnl

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
)

// newTestClient wires a worker to a fresh mock transport. Close is
// pre-registered because the worker always closes the transport on its
// way out.
func newTestClient(t *testing.T) (*MockTransport, *Client) {
	mt := new(MockTransport)
	mt.On("Close").Return(nil).Maybe()
	c := NewWith(mt)
	t.Cleanup(c.Close)
	return mt, c
}

func TestClientClose(t *testing.T) {
	closed := make(chan struct{})
	mt := new(MockTransport)
	mt.On("Close").Run(func(mock.Arguments) { close(closed) }).Return(nil).Once()
	c := NewWith(mt)

	c.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not close the transport")
	}

	// Test case: requests after Close fail with ErrConnClosed
	_, err := c.Link().List()
	assert.ErrorIs(t, err, ErrConnClosed)
	err = c.Address().IPv4Set(2, netip.MustParsePrefix("192.0.2.1/24"))
	assert.ErrorIs(t, err, ErrConnClosed)

	// Test case: Close is idempotent
	assert.NotPanics(t, c.Close)
	mt.AssertExpectations(t)
}

func TestClientDialFailure(t *testing.T) {
	c := New(WithNamespacePath("/nonexistent/netns/path"))
	defer c.Close()

	// The dial happens on the worker goroutine; its failure surfaces as
	// ErrConnClosed on every façade, never as a hang.
	_, err := c.Link().List()
	assert.ErrorIs(t, err, ErrConnClosed)
	_, err = c.Route().IPv4List()
	assert.ErrorIs(t, err, ErrConnClosed)
	err = c.Neighbor().Delete(NeighborEntry{Dst: netip.MustParseAddr("192.0.2.7"), IfIndex: 2})
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestClientCrossSubsystemConcurrency(t *testing.T) {
	mt, c := newTestClient(t)

	started := make(chan struct{})
	release := make(chan struct{})
	eth0 := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Index: 2, Name: "eth0"}}
	mt.LinkMock.On("Get", 2).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(eth0, nil).Once()
	mt.RouteMock.On("List", familyV4).Return([]netlink.Route{}, nil).Once()

	linkDone := make(chan error, 1)
	go func() {
		_, err := c.Link().Get(2)
		linkDone <- err
	}()
	<-started

	// Test case: a route request completes while the link server is busy
	routeDone := make(chan error, 1)
	go func() {
		_, err := c.Route().IPv4List()
		routeDone <- err
	}()
	select {
	case err := <-routeDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("route request blocked behind a link request")
	}

	close(release)
	assert.NoError(t, <-linkDone)
	mt.LinkMock.AssertExpectations(t)
	mt.RouteMock.AssertExpectations(t)
}

func TestClientSubsystemSerialization(t *testing.T) {
	mt, c := newTestClient(t)

	started := make(chan struct{})
	release := make(chan struct{})
	eth0 := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Index: 2, Name: "eth0"}}
	mt.LinkMock.On("Get", 2).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(eth0, nil).Once()
	mt.LinkMock.On("List").Return([]netlink.Link{eth0}, nil).Once()

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Link().Get(2)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan error, 1)
	go func() {
		_, err := c.Link().List()
		secondDone <- err
	}()

	// Test case: the second link request waits for the first to finish
	time.Sleep(50 * time.Millisecond)
	mt.LinkMock.AssertNotCalled(t, "List")

	close(release)
	assert.NoError(t, <-firstDone)
	assert.NoError(t, <-secondDone)
	mt.LinkMock.AssertExpectations(t)
}

func TestDefaultSharedClient(t *testing.T) {
	assert.Same(t, Default(), Default())
}
