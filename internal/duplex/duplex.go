// Package duplex provides the bounded request/response pairing the
// subsystem bridge runs on. One half sends a typed request and blocks
// until the paired typed response arrives; the other half accepts one
// request at a time together with a single-use responder. When either
// half is gone the other fails cleanly with ErrClosed instead of hanging.
package duplex

import (
	"errors"
	"sync"
)

// ErrClosed reports that the peer side of the pairing is gone.
var ErrClosed = errors.New("duplex: pairing closed")

type envelope[Req, Resp any] struct {
	req   Req
	reply chan Resp
}

// Client is the sending half. Copies share the same pairing and are safe
// for concurrent use from multiple goroutines.
type Client[Req, Resp any] struct {
	requests chan<- envelope[Req, Resp]
	done     <-chan struct{}
}

// Server is the accepting half, owned by exactly one loop.
type Server[Req, Resp any] struct {
	requests  <-chan envelope[Req, Resp]
	done      chan struct{}
	closeOnce sync.Once
}

// NewPair builds a connected client/server pairing with the given request
// queue capacity.
func NewPair[Req, Resp any](capacity int) (Client[Req, Resp], *Server[Req, Resp]) {
	requests := make(chan envelope[Req, Resp], capacity)
	done := make(chan struct{})
	client := Client[Req, Resp]{requests: requests, done: done}
	server := &Server[Req, Resp]{requests: requests, done: done}
	return client, server
}

// Send delivers req and blocks until the paired response arrives. It
// returns ErrClosed if the server is gone before or after delivery.
func (c Client[Req, Resp]) Send(req Req) (Resp, error) {
	env := envelope[Req, Resp]{req: req, reply: make(chan Resp, 1)}
	select {
	case c.requests <- env:
	case <-c.done:
		var zero Resp
		return zero, ErrClosed
	}
	select {
	case resp := <-env.reply:
		return resp, nil
	case <-c.done:
		// A response may have raced the close; deliver it if so.
		select {
		case resp := <-env.reply:
			return resp, nil
		default:
		}
		var zero Resp
		return zero, ErrClosed
	}
}

// Accept blocks for the next request and returns it with its responder.
// The responder must be called exactly once. Accept returns ok=false once
// the server has been closed.
func (s *Server[Req, Resp]) Accept() (req Req, respond func(Resp), ok bool) {
	select {
	case env := <-s.requests:
		return env.req, func(resp Resp) { env.reply <- resp }, true
	case <-s.done:
		var zero Req
		return zero, nil, false
	}
}

// Close tears the pairing down: pending and future Sends fail with
// ErrClosed and Accept returns ok=false. Close is idempotent.
func (s *Server[Req, Resp]) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
