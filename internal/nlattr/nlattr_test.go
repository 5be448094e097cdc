package nlattr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, 0, Align(0))
	assert.Equal(t, 4, Align(1))
	assert.Equal(t, 4, Align(4))
	assert.Equal(t, 8, Align(5))
	assert.Equal(t, 8, Align(7))
	assert.Equal(t, 8, Align(8))
}

func TestMarshalUint8Padding(t *testing.T) {
	// 1-byte payload: length 5, padded out to 8 bytes total.
	buf := Marshal([]Attr{Uint8(8, 64)})
	assert.Equal(t, []byte{5, 0, 8, 0, 64, 0, 0, 0}, buf)
}

func TestMarshalUint16(t *testing.T) {
	buf := Marshal([]Attr{Uint16(1, 100)})
	assert.Equal(t, []byte{6, 0, 1, 0, 100, 0, 0, 0}, buf)
}

func TestMarshalUint32NoPadding(t *testing.T) {
	// 4-byte payload needs no padding.
	buf := Marshal([]Attr{Uint32(5, 7)})
	assert.Equal(t, []byte{8, 0, 5, 0, 7, 0, 0, 0}, buf)
}

func TestBigUint32IsNetworkOrder(t *testing.T) {
	a := BigUint32(4, 0x01020304)
	assert.Equal(t, []byte{1, 2, 3, 4}, a.Data)
}

func TestFlag(t *testing.T) {
	assert.Equal(t, []byte{1}, Flag(10, true).Data)
	assert.Equal(t, []byte{0}, Flag(10, false).Data)
}

func TestAddressPayloads(t *testing.T) {
	v4 := Address(6, netip.MustParseAddr("192.0.2.1"))
	assert.Equal(t, []byte{192, 0, 2, 1}, v4.Data)

	v6 := Address(6, netip.MustParseAddr("2001:db8::1"))
	assert.Equal(t, []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, v6.Data)
}

func TestStringIsNulTerminated(t *testing.T) {
	buf := Marshal([]Attr{String(3, "gre0")})
	assert.Equal(t, []byte{9, 0, 3, 0, 'g', 'r', 'e', '0', 0, 0, 0, 0}, buf)
}

func TestMarshalConcatenatesAligned(t *testing.T) {
	buf := Marshal([]Attr{
		Uint8(8, 64),
		Uint32(1, 2),
	})
	assert.Equal(t, []byte{
		5, 0, 8, 0, 64, 0, 0, 0,
		8, 0, 1, 0, 2, 0, 0, 0,
	}, buf)
}

func TestNested(t *testing.T) {
	inner := []Attr{Uint16(1, 100)}
	outer := Marshal([]Attr{Nested(18, inner)})
	// Outer length covers header plus the 8-byte marshaled child.
	assert.Equal(t, []byte{12, 0, 18, 0, 6, 0, 1, 0, 100, 0, 0, 0}, outer)
}
