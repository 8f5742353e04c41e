// Package endian provides the byte order descriptors and engines used
// to move fixed-width values between memory and the file.
//
// The format declares the byte order of 32-bit and 64-bit payloads
// independently. A declared order is one of a small set of descriptors
// (big-endian, little-endian, and the historical swapped variants);
// an engine turns a descriptor into concrete load and store routines.
//
// The plain big- and little-endian engines are the standard library's
// binary.BigEndian and binary.LittleEndian. The swapped variants are
// byte shuffles expressed relative to big-endian storage.
//
// All engines are immutable and safe for concurrent use.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// Order32 is the on-disk descriptor for 32-bit payload byte order.
type Order32 uint64

// Order64 is the on-disk descriptor for 64-bit payload byte order.
type Order64 uint64

const (
	Big32      Order32 = 0 // bytes stored most significant first
	Little32   Order32 = 1 // bytes stored least significant first
	PairSwap32 Order32 = 2 // 16-bit halves swapped relative to big-endian
)

const (
	Big64      Order64 = 0 // bytes stored most significant first
	Little64   Order64 = 1 // bytes stored least significant first
	QuadSwap64 Order64 = 2 // 32-bit halves swapped relative to big-endian
	PairSwap64 Order64 = 3 // 16-bit pairs reversed relative to big-endian
	ByteSwap64 Order64 = 4 // bytes swapped within each 16-bit pair
)

// Engine32 loads and stores 32-bit values in a declared byte order.
type Engine32 interface {
	Uint32(b []byte) uint32
	PutUint32(b []byte, v uint32)
	AppendUint32(b []byte, v uint32) []byte
}

// Engine64 loads and stores 64-bit values in a declared byte order.
type Engine64 interface {
	Uint64(b []byte) uint64
	PutUint64(b []byte, v uint64)
	AppendUint64(b []byte, v uint64) []byte
}

// EndianEngine combines ByteOrder and AppendByteOrder from
// encoding/binary into a single interface. binary.BigEndian and
// binary.LittleEndian satisfy it, as well as Engine32 and Engine64.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Valid reports whether the descriptor is one the format defines.
func (o Order32) Valid() bool { return o <= PairSwap32 }

// Valid reports whether the descriptor is one the format defines.
func (o Order64) Valid() bool { return o <= ByteSwap64 }

func (o Order32) String() string {
	switch o {
	case Big32:
		return "BigEndian32"
	case Little32:
		return "LittleEndian32"
	case PairSwap32:
		return "BytePairSwap32"
	default:
		return "Unknown"
	}
}

func (o Order64) String() string {
	switch o {
	case Big64:
		return "BigEndian64"
	case Little64:
		return "LittleEndian64"
	case QuadSwap64:
		return "QuadSwap64"
	case PairSwap64:
		return "BytePairSwap64"
	case ByteSwap64:
		return "ByteSwap64"
	default:
		return "Unknown"
	}
}

// Engine returns the engine for the descriptor, or false for an
// unknown descriptor.
func (o Order32) Engine() (Engine32, bool) {
	switch o {
	case Big32:
		return binary.BigEndian, true
	case Little32:
		return binary.LittleEndian, true
	case PairSwap32:
		return pairSwap32Engine, true
	default:
		return nil, false
	}
}

// Engine returns the engine for the descriptor, or false for an
// unknown descriptor.
func (o Order64) Engine() (Engine64, bool) {
	switch o {
	case Big64:
		return binary.BigEndian, true
	case Little64:
		return binary.LittleEndian, true
	case QuadSwap64:
		return quadSwap64Engine, true
	case PairSwap64:
		return pairSwap64Engine, true
	case ByteSwap64:
		return byteSwap64Engine, true
	default:
		return nil, false
	}
}

// swapped32 shuffles bytes relative to big-endian storage: stored byte
// i holds big-endian byte perm[i].
type swapped32 struct {
	perm [4]int
}

func (s swapped32) Uint32(b []byte) uint32 {
	_ = b[3]
	var be [4]byte
	for i, p := range s.perm {
		be[p] = b[i]
	}

	return binary.BigEndian.Uint32(be[:])
}

func (s swapped32) PutUint32(b []byte, v uint32) {
	_ = b[3]
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], v)
	for i, p := range s.perm {
		b[i] = be[p]
	}
}

func (s swapped32) AppendUint32(b []byte, v uint32) []byte {
	var out [4]byte
	s.PutUint32(out[:], v)

	return append(b, out[:]...)
}

type swapped64 struct {
	perm [8]int
}

func (s swapped64) Uint64(b []byte) uint64 {
	_ = b[7]
	var be [8]byte
	for i, p := range s.perm {
		be[p] = b[i]
	}

	return binary.BigEndian.Uint64(be[:])
}

func (s swapped64) PutUint64(b []byte, v uint64) {
	_ = b[7]
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], v)
	for i, p := range s.perm {
		b[i] = be[p]
	}
}

func (s swapped64) AppendUint64(b []byte, v uint64) []byte {
	var out [8]byte
	s.PutUint64(out[:], v)

	return append(b, out[:]...)
}

var (
	pairSwap32Engine = swapped32{perm: [4]int{2, 3, 0, 1}}
	quadSwap64Engine = swapped64{perm: [8]int{4, 5, 6, 7, 0, 1, 2, 3}}
	pairSwap64Engine = swapped64{perm: [8]int{6, 7, 4, 5, 2, 3, 0, 1}}
	byteSwap64Engine = swapped64{perm: [8]int{1, 0, 3, 2, 5, 4, 7, 6}}
)

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. For a little-endian system, the LSB (0x00) is first.
	// For a big-endian system, the MSB (0x01) is first.
	var i uint16 = 0x0100

	b := (*[2]byte)(unsafe.Pointer(&i))

	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}

func IsNativeBigEndian() bool {
	return CheckEndianness() == binary.BigEndian
}

// NativeOrders returns the descriptors matching the host byte order.
// Writers record these so that payloads move without conversion.
func NativeOrders() (Order32, Order64) {
	if IsNativeBigEndian() {
		return Big32, Big64
	}

	return Little32, Little64
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
