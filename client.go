package rtnl

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"grimm.is/rtnl/internal/duplex"
	"grimm.is/rtnl/internal/logging"
	"grimm.is/rtnl/internal/metrics"
)

// requestQueue is the per-subsystem request channel depth. Senders block
// once a subsystem has this many requests waiting.
const requestQueue = 16

type options struct {
	nsName string
	nsPath string
	logger *logging.Logger
}

// Option adjusts client construction.
type Option func(*options)

// WithLogger routes the worker's logs through log instead of the package
// default.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithNamespace dials the kernel inside a named network namespace, as
// created by "ip netns add".
func WithNamespace(name string) Option {
	return func(o *options) { o.nsName = name }
}

// WithNamespacePath dials the kernel inside the network namespace bound
// at path.
func WithNamespacePath(path string) Option {
	return func(o *options) { o.nsPath = path }
}

// Client is the handle to one netlink worker. The worker owns one kernel
// connection for its whole life; the five subsystem façades share it.
// Operations on different subsystems run concurrently, operations within
// one subsystem serialize in submission order. All façades are safe for
// concurrent use from any goroutine.
type Client struct {
	link     LinkClient
	address  AddressClient
	neighbor NeighborClient
	route    RouteClient
	virtual  VirtualInterfaceClient

	stop func()
}

// New dials the kernel and starts the worker. The dial happens on the
// worker goroutine: New never blocks, and a failed dial surfaces as
// ErrConnClosed on every façade call instead of a hang.
func New(opts ...Option) *Client {
	return newClient(nil, opts...)
}

// NewWith runs the worker against a supplied transport instead of
// dialing the kernel. Tests inject fake transports this way.
func NewWith(t Transport, opts ...Option) *Client {
	return newClient(t, opts...)
}

func newClient(t Transport, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	linkClient, linkSrv := duplex.NewPair[linkRequest, linkResponse](requestQueue)
	addrClient, addrSrv := duplex.NewPair[addressRequest, addressResponse](requestQueue)
	neighClient, neighSrv := duplex.NewPair[neighborRequest, neighborResponse](requestQueue)
	routeClient, routeSrv := duplex.NewPair[routeRequest, routeResponse](requestQueue)
	virtClient, virtSrv := duplex.NewPair[virtualRequest, virtualResponse](requestQueue)

	w := &worker{
		log:      o.logger.WithComponent("worker"),
		linkSrv:  linkSrv,
		addrSrv:  addrSrv,
		neighSrv: neighSrv,
		routeSrv: routeSrv,
		virtSrv:  virtSrv,
	}
	c := &Client{
		link:     LinkClient{requests: linkClient},
		address:  AddressClient{requests: addrClient},
		neighbor: NeighborClient{requests: neighClient},
		route:    RouteClient{requests: routeClient},
		virtual:  VirtualInterfaceClient{requests: virtClient},
		stop:     w.close,
	}
	go w.run(o, t)
	return c
}

// Close shuts the worker down. The request being served still completes;
// queued and later sends fail with ErrConnClosed. Close is idempotent
// and safe to call concurrently.
func (c *Client) Close() {
	c.stop()
}

// Link returns the link subsystem façade.
func (c *Client) Link() *LinkClient { return &c.link }

// Address returns the address subsystem façade.
func (c *Client) Address() *AddressClient { return &c.address }

// Neighbor returns the neighbor subsystem façade.
func (c *Client) Neighbor() *NeighborClient { return &c.neighbor }

// Route returns the route subsystem façade.
func (c *Client) Route() *RouteClient { return &c.route }

// VirtualInterface returns the virtual interface subsystem façade.
func (c *Client) VirtualInterface() *VirtualInterfaceClient { return &c.virtual }

// worker owns the transport. Nothing outside the worker goroutine and
// the server loops it spawns ever touches the connection.
type worker struct {
	log      *logging.Logger
	linkSrv  *duplex.Server[linkRequest, linkResponse]
	addrSrv  *duplex.Server[addressRequest, addressResponse]
	neighSrv *duplex.Server[neighborRequest, neighborResponse]
	routeSrv *duplex.Server[routeRequest, routeResponse]
	virtSrv  *duplex.Server[virtualRequest, virtualResponse]
}

func (w *worker) close() {
	w.linkSrv.Close()
	w.addrSrv.Close()
	w.neighSrv.Close()
	w.routeSrv.Close()
	w.virtSrv.Close()
}

// run dials unless a transport was injected, then drives all five
// subsystem server loops until the client is closed. A failed dial kills
// this worker only: the pairings are torn down so that racing senders
// observe a closed channel instead of hanging.
func (w *worker) run(o *options, t Transport) {
	if t == nil {
		var err error
		t, err = dialTransport(o)
		if err != nil {
			w.log.Error("netlink transport dial failed", "error", err)
			metrics.Get().WorkerDialErrors.Inc()
			w.close()
			return
		}
	}

	var eg errgroup.Group
	eg.Go(func() error {
		s := &linkServer{ops: t.Link(), log: o.logger.WithComponent("link")}
		return s.serve(w.linkSrv)
	})
	eg.Go(func() error {
		s := &addressServer{ops: t.Address(), log: o.logger.WithComponent("address")}
		return s.serve(w.addrSrv)
	})
	eg.Go(func() error {
		s := &neighborServer{ops: t.Neighbor(), log: o.logger.WithComponent("neighbor")}
		return s.serve(w.neighSrv)
	})
	eg.Go(func() error {
		s := &routeServer{ops: t.Route(), log: o.logger.WithComponent("route")}
		return s.serve(w.routeSrv)
	})
	eg.Go(func() error {
		s := &virtualServer{ops: t.Link(), log: o.logger.WithComponent("virtual")}
		return s.serve(w.virtSrv)
	})
	if err := eg.Wait(); err != nil {
		w.log.Error("subsystem server failed", "error", err)
	}
	if err := t.Close(); err != nil {
		w.log.Warn("netlink transport close failed", "error", err)
	}
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// Default returns the process-wide shared client, dialing the kernel on
// first use. Every caller receives the same handle. Callers that need a
// network namespace or their own logger construct a Client via New.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = New()
	})
	return defaultClient
}
