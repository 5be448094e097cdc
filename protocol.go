package rtnl

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Each subsystem speaks a closed request/response vocabulary over its
// channel pair. The marker methods seal the vocabularies: variants from
// one subsystem cannot cross into another, and a façade that receives a
// variant it does not recognize reports an UnexpectedResponseError
// instead of coercing it.

type linkRequest interface {
	isLinkRequest()
	name() string
}

type linkResponse interface{ isLinkResponse() }

type addressRequest interface {
	isAddressRequest()
	name() string
}

type addressResponse interface{ isAddressResponse() }

type neighborRequest interface {
	isNeighborRequest()
	name() string
}

type neighborResponse interface{ isNeighborResponse() }

type routeRequest interface {
	isRouteRequest()
	name() string
}

type routeResponse interface{ isRouteResponse() }

type virtualRequest interface {
	isVirtualRequest()
	name() string
}

type virtualResponse interface{ isVirtualResponse() }

// Status variants shared by every subsystem vocabulary.

// respSuccess acknowledges a mutation.
type respSuccess struct{}

// respFailed reports a kernel rejection or transport failure.
type respFailed struct{}

// respNotFound reports the target object absent, including requests
// aimed at interface index 0.
type respNotFound struct{}

// respNotImplemented reports a request variant the server does not
// handle.
type respNotImplemented struct{}

func (respSuccess) isLinkResponse()     {}
func (respSuccess) isAddressResponse()  {}
func (respSuccess) isNeighborResponse() {}
func (respSuccess) isRouteResponse()    {}
func (respSuccess) isVirtualResponse()  {}

func (respFailed) isLinkResponse()     {}
func (respFailed) isAddressResponse()  {}
func (respFailed) isNeighborResponse() {}
func (respFailed) isRouteResponse()    {}
func (respFailed) isVirtualResponse()  {}

func (respNotFound) isLinkResponse()     {}
func (respNotFound) isAddressResponse()  {}
func (respNotFound) isNeighborResponse() {}
func (respNotFound) isRouteResponse()    {}
func (respNotFound) isVirtualResponse()  {}

func (respNotImplemented) isLinkResponse()     {}
func (respNotImplemented) isAddressResponse()  {}
func (respNotImplemented) isNeighborResponse() {}
func (respNotImplemented) isRouteResponse()    {}
func (respNotImplemented) isVirtualResponse()  {}

// statusResult maps a status response into the façade error model,
// attaching the operation's human-readable name.
func statusResult(op string, resp any) error {
	switch resp.(type) {
	case respSuccess:
		return nil
	case respNotFound:
		return opError(op, ErrNotFound)
	case respFailed:
		return opError(op, ErrOpFailed)
	case respNotImplemented:
		return opError(op, ErrUnsupported)
	default:
		return &UnexpectedResponseError{Op: op, Response: resp}
	}
}

// dataResult is statusResult for operations that expect a data-carrying
// response; a bare success acknowledgment is itself a contract violation
// for those.
func dataResult(op string, resp any) error {
	switch resp.(type) {
	case respNotFound:
		return opError(op, ErrNotFound)
	case respFailed:
		return opError(op, ErrOpFailed)
	case respNotImplemented:
		return opError(op, ErrUnsupported)
	default:
		return &UnexpectedResponseError{Op: op, Response: resp}
	}
}

// resultLabel names a response outcome for metrics. Data-carrying
// responses count as successes.
func resultLabel(resp any) string {
	switch resp.(type) {
	case respFailed:
		return "failed"
	case respNotFound:
		return "not_found"
	case respNotImplemented:
		return "not_implemented"
	default:
		return "success"
	}
}

// isNotFound reports whether the kernel said the object is absent.
func isNotFound(err error) bool {
	return errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.ESRCH) ||
		errors.Is(err, unix.ENOENT)
}

// isExists reports the kernel already-exists conflict.
func isExists(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

// isAddrGone reports the conditions address deletion maps to not-found.
func isAddrGone(err error) bool {
	return errors.Is(err, unix.EADDRNOTAVAIL) || errors.Is(err, unix.ENOENT)
}
