package rtnl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestStatusResult(t *testing.T) {
	tests := []struct {
		resp any
		want error
	}{
		{respSuccess{}, nil},
		{respNotFound{}, ErrNotFound},
		{respFailed{}, ErrOpFailed},
		{respNotImplemented{}, ErrUnsupported},
	}

	for _, tc := range tests {
		err := statusResult("mtu set", tc.resp)
		if tc.want == nil {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, tc.want, "response %T", tc.resp)
		assert.EqualError(t, err, fmt.Sprintf("mtu set: %v", tc.want))
	}
}

func TestStatusResultUnexpectedVariant(t *testing.T) {
	// A variant outside the request's vocabulary is reported by name,
	// never coerced into another error kind.
	err := statusResult("mtu set", linkMTUResp{mtu: 1500})
	var unexpected *UnexpectedResponseError
	assert.ErrorAs(t, err, &unexpected)
	assert.Contains(t, err.Error(), "mtu set")
	assert.Contains(t, err.Error(), "linkMTUResp")
}

func TestDataResultRejectsBareSuccess(t *testing.T) {
	// A data-carrying operation answered with a bare acknowledgment is a
	// contract violation, not a success.
	err := dataResult("interface get", respSuccess{})
	var unexpected *UnexpectedResponseError
	assert.ErrorAs(t, err, &unexpected)
	assert.Contains(t, err.Error(), "respSuccess")
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		resp any
		want string
	}{
		{respSuccess{}, "success"},
		{respFailed{}, "failed"},
		{respNotFound{}, "not_found"},
		{respNotImplemented{}, "not_implemented"},
		{linkInterfaces{}, "success"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, resultLabel(tc.resp), "response %T", tc.resp)
	}
}

func TestErrnoClassification(t *testing.T) {
	assert.True(t, isNotFound(unix.ENODEV))
	assert.True(t, isNotFound(unix.ESRCH))
	assert.True(t, isNotFound(unix.ENOENT))
	assert.True(t, isNotFound(fmt.Errorf("netlink: %w", unix.ENODEV)))
	assert.False(t, isNotFound(unix.EEXIST))
	assert.False(t, isNotFound(unix.EPERM))

	assert.True(t, isExists(unix.EEXIST))
	assert.False(t, isExists(unix.ENOENT))

	assert.True(t, isAddrGone(unix.EADDRNOTAVAIL))
	assert.True(t, isAddrGone(unix.ENOENT))
	assert.False(t, isAddrGone(unix.ENODEV))
}

func TestSendError(t *testing.T) {
	err := sendError("interface list", errors.New("request channel closed"))
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.Contains(t, err.Error(), "interface list")
}
