// Package nlattr hand-encodes netlink route attributes (NLAs) for message
// payloads the typed netlink builders cannot express, such as tunnel link
// info blocks. Attributes are type-length-value encoded: a 16-bit length
// that includes the 4-byte header, a 16-bit type, the payload, and zero
// padding up to the 4-byte attribute boundary. Lengths and types are
// native endian, as the kernel expects.
package nlattr

import (
	"encoding/binary"
	"net/netip"
)

// Attr is a single netlink attribute: a kernel type code and its payload.
type Attr struct {
	Type uint16
	Data []byte
}

const headerLen = 4
const alignTo = 4

// Align rounds a length up to the 4-byte attribute boundary.
func Align(n int) int {
	return (n + alignTo - 1) &^ (alignTo - 1)
}

// Marshal encodes attrs back to back into kernel TLV wire format.
func Marshal(attrs []Attr) []byte {
	var size int
	for _, a := range attrs {
		size += Align(headerLen + len(a.Data))
	}
	buf := make([]byte, size)
	off := 0
	for _, a := range attrs {
		payloadLen := headerLen + len(a.Data)
		binary.NativeEndian.PutUint16(buf[off:], uint16(payloadLen))
		binary.NativeEndian.PutUint16(buf[off+2:], a.Type)
		copy(buf[off+headerLen:], a.Data)
		// trailing pad bytes are already zero
		off += Align(payloadLen)
	}
	return buf
}

// Uint8 builds a one-byte attribute.
func Uint8(typ uint16, v uint8) Attr {
	return Attr{Type: typ, Data: []byte{v}}
}

// Flag builds a one-byte boolean attribute (0 or 1).
func Flag(typ uint16, v bool) Attr {
	b := byte(0)
	if v {
		b = 1
	}
	return Attr{Type: typ, Data: []byte{b}}
}

// Uint16 builds a native-endian 16-bit attribute.
func Uint16(typ uint16, v uint16) Attr {
	data := make([]byte, 2)
	binary.NativeEndian.PutUint16(data, v)
	return Attr{Type: typ, Data: data}
}

// Uint32 builds a native-endian 32-bit attribute.
func Uint32(typ uint16, v uint32) Attr {
	data := make([]byte, 4)
	binary.NativeEndian.PutUint32(data, v)
	return Attr{Type: typ, Data: data}
}

// BigUint32 builds a big-endian 32-bit attribute. Tunnel keys and flow
// labels are carried in network byte order regardless of host order.
func BigUint32(typ uint16, v uint32) Attr {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, v)
	return Attr{Type: typ, Data: data}
}

// Address builds an attribute from an IP address payload (4 or 16 bytes).
func Address(typ uint16, addr netip.Addr) Attr {
	return Attr{Type: typ, Data: addr.AsSlice()}
}

// String builds a NUL-terminated string attribute.
func String(typ uint16, s string) Attr {
	data := make([]byte, len(s)+1)
	copy(data, s)
	return Attr{Type: typ, Data: data}
}

// Bytes builds a raw attribute from an opaque payload.
func Bytes(typ uint16, data []byte) Attr {
	return Attr{Type: typ, Data: data}
}

// Nested builds an attribute whose payload is the marshaled children.
func Nested(typ uint16, children []Attr) Attr {
	return Attr{Type: typ, Data: Marshal(children)}
}
