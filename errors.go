package rtnl

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped in an *OpError) by the subsystem
// façades. Test with errors.Is.
var (
	// ErrNotFound reports that the requested kernel object does not
	// exist, or that the request targeted interface index 0.
	ErrNotFound = errors.New("not found")

	// ErrOpFailed reports a kernel rejection or transport failure that
	// is not a not-found condition.
	ErrOpFailed = errors.New("operation failed")

	// ErrUnsupported reports a request variant the server intentionally
	// does not handle.
	ErrUnsupported = errors.New("operation not implemented")

	// ErrConnClosed reports that the netlink worker is gone: the
	// request could not be delivered or its response never arrived.
	// Distinct from protocol-level failures.
	ErrConnClosed = errors.New("netlink worker unavailable")
)

// OpError wraps a subsystem error with the operation's human-readable
// name.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid local configuration detected before any
// kernel round trip, such as a VLAN spec missing its parent interface.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

// UnexpectedResponseError reports a protocol contract violation: a façade
// received a response variant it does not recognize for the request it
// sent. Never silently coerced into another error kind.
type UnexpectedResponseError struct {
	Op       string
	Response any
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response variant %T", e.Op, e.Response)
}

// opError pairs op with a sentinel or underlying error.
func opError(op string, err error) error {
	return &OpError{Op: op, Err: err}
}

// sendError converts a pairing failure into the caller's error model.
func sendError(op string, err error) error {
	return &OpError{Op: op, Err: fmt.Errorf("%w: %v", ErrConnClosed, err)}
}
